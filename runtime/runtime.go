package runtime

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-kernels/compiler"
	"github.com/wippyai/wasm-kernels/config"
	"github.com/wippyai/wasm-kernels/engine"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/interp"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/metrics"
	"github.com/wippyai/wasm-kernels/numexpr"
)

type Runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *engine.Engine
	cache   *jit.Cache
	metrics *metrics.Collector
	eval    *numexpr.Evaluator

	mu      sync.RWMutex
	modules []*Module
	handles map[string]*jit.Handle
}

type options struct {
	logger     *zap.Logger
	output     io.Writer
	registerer prometheus.Registerer
}

// Option configures a Runtime.
type Option func(*options)

// WithLogger sets the logger of the runtime and everything it creates.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOutput sets where interpreted kernels print.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithRegisterer registers the cache metrics with r when metrics are
// enabled in the configuration.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// New creates a runtime from cfg and loads its kernel libraries. A nil cfg
// uses config.Default.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		cfg:     cfg,
		logger:  o.logger,
		handles: make(map[string]*jit.Handle),
	}

	interpOpts := []interp.Option{interp.WithLogger(o.logger)}
	if o.output != nil {
		interpOpts = append(interpOpts, interp.WithOutput(o.output))
	}
	in := interp.New(interpOpts...)

	var backend jit.Backend
	switch cfg.Cache.Backend {
	case config.BackendInterp:
		backend = jit.Inferred(in)
	default:
		eng, err := engine.New(ctx, &engine.Config{
			MemoryLimitPages:    cfg.Engine.MemoryLimitPages,
			CompilationCacheDir: cfg.Engine.CompilationCacheDir,
			CloseOnContextDone:  cfg.Engine.CloseOnContextDone,
		})
		if err != nil {
			return nil, kerrors.Wrap(kerrors.PhaseLoad, kerrors.KindInstantiation, err, "create engine")
		}
		r.engine = eng
		backend = jit.Wasm(compiler.New(eng, compiler.WithLogger(o.logger)))
	}

	cacheOpts := []jit.Option{
		jit.WithInterpreter(in),
		jit.WithLogger(o.logger),
		jit.WithSingleflight(cfg.Cache.SingleflightEnabled()),
	}
	if cfg.Cache.Metrics {
		r.metrics = metrics.NewCollector(cfg.Cache.MetricsNamespace)
		if o.registerer != nil {
			if err := r.metrics.Register(o.registerer); err != nil {
				_ = r.closeEngine(ctx)
				return nil, kerrors.Wrap(kerrors.PhaseConfig, kerrors.KindInvalidInput, err, "register metrics")
			}
		}
		cacheOpts = append(cacheOpts, jit.WithMetrics(r.metrics))
	}
	r.cache = jit.New(backend, cacheOpts...)

	evalOpts := []numexpr.Option{numexpr.WithLogger(o.logger)}
	if cfg.Eval.Workers > 0 {
		evalOpts = append(evalOpts, numexpr.WithWorkers(cfg.Eval.Workers))
	}
	if cfg.Eval.ChunkSize > 0 {
		evalOpts = append(evalOpts, numexpr.WithChunkSize(cfg.Eval.ChunkSize))
	}
	if cfg.Eval.Compile {
		evalOpts = append(evalOpts, numexpr.WithCache(r.cache))
	}
	r.eval = numexpr.NewEvaluator(evalOpts...)

	for _, src := range cfg.Kernels {
		if _, err := r.Load(ctx, src); err != nil {
			_ = r.Close(ctx)
			return nil, err
		}
	}

	r.logger.Info("runtime ready",
		zap.String("backend", cfg.Cache.Backend),
		zap.Int("kernels", len(r.handles)))
	return r, nil
}

// Close releases every specialization and the engine.
func (r *Runtime) Close(ctx context.Context) error {
	return errors.Join(r.cache.Close(ctx), r.closeEngine(ctx))
}

func (r *Runtime) closeEngine(ctx context.Context) error {
	if r.engine == nil {
		return nil
	}
	return r.engine.Close(ctx)
}

func (r *Runtime) Config() *config.Config { return r.cfg }

// Cache returns the kernel cache of the runtime.
func (r *Runtime) Cache() *jit.Cache { return r.cache }

// Metrics returns the cache metrics, or nil when they are disabled.
func (r *Runtime) Metrics() *metrics.Collector { return r.metrics }

// Kernel returns the handle of the named kernel.
func (r *Runtime) Kernel(name string) (*jit.Handle, error) {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()
	if !ok {
		return nil, kerrors.NotFound(kerrors.PhaseInvoke, "kernel", name)
	}
	return h, nil
}

// NewObject returns an unset instance of the named class of a loaded
// library. Its methods are the kernels named Class.method.
func (r *Runtime) NewObject(class string) (*jit.Object, error) {
	for _, m := range r.Modules() {
		if c, err := m.lib.Class(class); err == nil {
			return r.cache.NewObject(c), nil
		}
	}
	return nil, kerrors.NotFound(kerrors.PhaseInvoke, "class", class)
}

// Kernels returns the sorted names of the loaded kernels.
func (r *Runtime) Kernels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Modules returns the loaded kernel libraries in load order.
func (r *Runtime) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Module(nil), r.modules...)
}

// Invoke runs the named kernel compiled for the arguments.
func (r *Runtime) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	h, err := r.Kernel(name)
	if err != nil {
		return nil, err
	}
	return h.Call(ctx, args...)
}

// InvokeInterpreted runs the named kernel without compiling it.
func (r *Runtime) InvokeInterpreted(ctx context.Context, name string, args ...any) (any, error) {
	h, err := r.Kernel(name)
	if err != nil {
		return nil, err
	}
	return h.CallInterpreted(ctx, args...)
}

// InvokeWithFallback runs the named kernel compiled, or interpreted when it
// cannot be compiled for the arguments.
func (r *Runtime) InvokeWithFallback(ctx context.Context, name string, args ...any) (any, error) {
	h, err := r.Kernel(name)
	if err != nil {
		return nil, err
	}
	return h.CallWithFallback(ctx, args...)
}

// Evaluate evaluates an element-wise expression over vars.
func (r *Runtime) Evaluate(ctx context.Context, expr string, vars map[string]any) (any, error) {
	return r.eval.Evaluate(ctx, expr, vars)
}

// Stats returns the cache counters.
func (r *Runtime) Stats() jit.Stats { return r.cache.Stats() }
