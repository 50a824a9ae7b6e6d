package jit

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/interp"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/metrics"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

const tracerName = "github.com/wippyai/wasm-kernels/jit"

// Cache compiles each kernel once per Type Signature and reuses the result.
// It is safe for concurrent use.
type Cache struct {
	backend  Backend
	store    Store
	interp   *interp.Interpreter
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
	collapse bool
	group    singleflight.Group

	hits         atomic.Uint64
	misses       atomic.Uint64
	compilations atomic.Uint64
	failures     atomic.Uint64
	fallbacks    atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithInterpreter sets the interpreter used by the interpreted paths.
func WithInterpreter(in *interp.Interpreter) Option {
	return func(c *Cache) { c.interp = in }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics records cache activity on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTracer sets the tracer for compile spans. Defaults to the global
// OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Cache) { c.tracer = t }
}

// WithSingleflight controls whether concurrent misses on the same key share
// one compilation. Enabled by default. When disabled, each concurrent miss
// compiles and all but the first stored result are discarded.
func WithSingleflight(enabled bool) Option {
	return func(c *Cache) { c.collapse = enabled }
}

// New creates a cache compiling with backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:  backend,
		logger:   zap.NewNop(),
		collapse: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMapStore()
	}
	if c.interp == nil {
		c.interp = interp.New(interp.WithLogger(c.logger))
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Interpreter returns the interpreter used by the interpreted paths.
func (c *Cache) Interpreter() *interp.Interpreter { return c.interp }

// Invoke runs k compiled for the Type Signature of args, compiling it on
// first use. If the kernel cannot be compiled for that signature the error
// matches errors.ErrUnsupportedSpecialization and nothing is cached.
// Errors raised by the kernel body are returned unchanged.
func (c *Cache) Invoke(ctx context.Context, k *kernel.Kernel, args ...any) (any, error) {
	sig, err := typing.CallSignature(k, args)
	if err != nil {
		return nil, err
	}
	s, err := c.Specialize(ctx, k, sig)
	if err != nil {
		return nil, err
	}
	return s.Call(ctx, args...)
}

// InvokeInterpreted runs k with the interpreter. It never compiles.
func (c *Cache) InvokeInterpreted(ctx context.Context, k *kernel.Kernel, args ...any) (any, error) {
	return c.interp.Call(ctx, k, args...)
}

// InvokeWithFallback is Invoke, falling back to the interpreter when the
// kernel cannot be compiled for the arguments.
func (c *Cache) InvokeWithFallback(ctx context.Context, k *kernel.Kernel, args ...any) (any, error) {
	res, err := c.Invoke(ctx, k, args...)
	if errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		c.fallback(k, err)
		return c.InvokeInterpreted(ctx, k, args...)
	}
	return res, err
}

func (c *Cache) fallback(k *kernel.Kernel, err error) {
	c.fallbacks.Add(1)
	c.metrics.Fallback(k.Name())
	c.logger.Debug("falling back to interpreter",
		zap.String("kernel", k.Name()),
		zap.Error(err))
}

// Specialize returns the specialization of k for sig, compiling it on a miss.
func (c *Cache) Specialize(ctx context.Context, k *kernel.Kernel, sig types.Signature) (Compiled, error) {
	key := KeyOf(k, sig)
	if s, ok := c.store.Load(key); ok {
		c.hits.Add(1)
		c.metrics.Hit(k.Name())
		return s, nil
	}
	c.misses.Add(1)
	c.metrics.Miss(k.Name())

	if !c.collapse {
		return c.compile(ctx, k, sig, key)
	}
	// The shared compilation outlives any one caller; each waiter stops on
	// its own context.
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.compile(context.WithoutCancel(ctx), k, sig, key)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(Compiled), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// compile runs the backend outside any lock and publishes the result with
// LoadOrStore. A result that loses the race is closed.
func (c *Cache) compile(ctx context.Context, k *kernel.Kernel, sig types.Signature, key Key) (Compiled, error) {
	if s, ok := c.store.Load(key); ok {
		return s, nil
	}

	name := k.Name()
	ctx, span := c.tracer.Start(ctx, "jit.compile", trace.WithAttributes(
		attribute.String("kernel", name),
		attribute.String("signature", sig.String()),
	))
	defer span.End()

	c.logger.Debug("compiling specialization",
		zap.String("kernel", name),
		zap.String("signature", sig.String()))

	start := time.Now()
	s, err := c.backend.Compile(ctx, k, sig)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return nil, err
		}
		c.failures.Add(1)
		c.metrics.CompileFailed(name)
		c.logger.Warn("specialization not supported",
			zap.String("kernel", name),
			zap.String("signature", sig.String()),
			zap.Error(err))
		return nil, unsupported(k, sig, err)
	}
	elapsed := time.Since(start)
	c.compilations.Add(1)
	c.metrics.Compiled(name, elapsed)
	span.SetStatus(codes.Ok, "")

	actual, loaded := c.store.LoadOrStore(key, s)
	if loaded {
		_ = s.Close(ctx)
	} else {
		c.metrics.SetEntries(c.store.Len())
	}
	c.logger.Debug("compiled specialization",
		zap.String("kernel", name),
		zap.String("signature", sig.String()),
		zap.Duration("elapsed", elapsed),
		zap.Bool("discarded", loaded))
	return actual, nil
}

func unsupported(k *kernel.Kernel, sig types.Signature, err error) error {
	if errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		return err
	}
	return kerrors.New(kerrors.PhaseSpecialize, kerrors.KindUnsupported).
		Kernel(k.Name()).
		Signature(sig.String()).
		Detail("compilation failed").
		Cause(err).
		Build()
}

// Signatures lists the signatures k is specialized for, ordered by key.
func (c *Cache) Signatures(k *kernel.Kernel) []types.Signature {
	var keys []Key
	byKey := make(map[Key]types.Signature)
	c.store.Range(func(key Key, s Compiled) bool {
		if key.Kernel == k.ID() {
			keys = append(keys, key)
			byKey[key] = s.Signature()
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i].Signature < keys[j].Signature })
	sigs := make([]types.Signature, len(keys))
	for i, key := range keys {
		sigs[i] = byKey[key]
	}
	return sigs
}

// Evict removes and closes every specialization of k. It returns the number
// removed.
func (c *Cache) Evict(ctx context.Context, k *kernel.Kernel) int {
	n := 0
	c.store.Range(func(key Key, s Compiled) bool {
		if key.Kernel == k.ID() {
			c.store.Delete(key)
			_ = s.Close(ctx)
			n++
		}
		return true
	})
	c.metrics.SetEntries(c.store.Len())
	return n
}

// Close closes and removes every specialization.
func (c *Cache) Close(ctx context.Context) error {
	var errs []error
	c.store.Range(func(key Key, s Compiled) bool {
		c.store.Delete(key)
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	c.metrics.SetEntries(0)
	return errors.Join(errs...)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	Compilations    uint64 `json:"compilations"`
	CompileFailures uint64 `json:"compile_failures"`
	Fallbacks       uint64 `json:"fallbacks"`
	Entries         int    `json:"entries"`
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Compilations:    c.compilations.Load(),
		CompileFailures: c.failures.Load(),
		Fallbacks:       c.fallbacks.Load(),
		Entries:         c.store.Len(),
	}
}

// checkSignature fails with errors.ErrSignatureMismatch unless args produce want.
func checkSignature(k *kernel.Kernel, want types.Signature, args []any) error {
	sig, err := typing.CallSignature(k, args)
	if err != nil {
		return err
	}
	if !sig.Equal(want) {
		return kerrors.SignatureMismatch(k.Name(), want.String(), sig.String())
	}
	return nil
}
