package compiler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-kernels/engine"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

// Compiler lowers kernels to WebAssembly and loads them into an engine.
// It is safe for concurrent use.
type Compiler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// New creates a compiler that loads modules into e.
func New(e *engine.Engine, opts ...Option) *Compiler {
	c := &Compiler{engine: e, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// program is a lowered kernel specialization.
type program struct {
	info     *typing.Info
	bin      []byte
	messages []string
}

func build(k *kernel.Kernel, sig types.Signature) (*program, error) {
	if err := CheckSignature(k.Name(), sig); err != nil {
		return nil, err
	}
	info, err := typing.Infer(k, sig)
	if err != nil {
		if errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
			return nil, err
		}
		return nil, kerrors.New(kerrors.PhaseSpecialize, kerrors.KindUnsupported).
			Kernel(k.Name()).
			Signature(sig.String()).
			Detail("type inference failed").
			Cause(err).
			Build()
	}
	mod, messages, err := lower(info)
	if err != nil {
		return nil, err
	}
	return &program{info: info, bin: mod.Encode(), messages: messages}, nil
}

// Emit returns the WebAssembly binary of k specialized for sig without
// loading it. The entry function is exported as EntryExport.
func Emit(k *kernel.Kernel, sig types.Signature) ([]byte, error) {
	p, err := build(k, sig)
	if err != nil {
		return nil, err
	}
	return p.bin, nil
}

// Compile specializes k for sig. Kinds, constructs and features compiled
// code cannot express yield an error matching
// errors.ErrUnsupportedSpecialization; the interpreter still runs them.
func (c *Compiler) Compile(ctx context.Context, k *kernel.Kernel, sig types.Signature) (*Specialization, error) {
	p, err := build(k, sig)
	if err != nil {
		c.logger.Debug("specialization rejected",
			zap.String("kernel", k.Name()),
			zap.String("signature", sig.String()),
			zap.Error(err))
		return nil, err
	}

	mod, err := c.engine.Load(ctx, p.bin)
	if err != nil {
		return nil, kerrors.New(kerrors.PhaseLoad, kerrors.KindInstantiation).
			Kernel(k.Name()).
			Signature(sig.String()).
			Cause(err).
			Build()
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, kerrors.New(kerrors.PhaseLoad, kerrors.KindInstantiation).
			Kernel(k.Name()).
			Signature(sig.String()).
			Cause(err).
			Build()
	}

	c.logger.Debug("specialization compiled",
		zap.String("kernel", k.Name()),
		zap.String("signature", sig.String()),
		zap.Int("bytes", len(p.bin)),
		zap.Int("functions", len(p.info.Closure())))
	return newSpecialization(p, mod, inst), nil
}
