package jit

import (
	"context"

	"github.com/wippyai/wasm-kernels/compiler"
	"github.com/wippyai/wasm-kernels/interp"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

// Compiled is a specialization held by the cache.
type Compiled interface {
	// Call runs the specialization. Arguments whose runtime types do not
	// produce Signature fail with errors.ErrSignatureMismatch.
	Call(ctx context.Context, args ...any) (any, error)
	Signature() types.Signature
	Close(ctx context.Context) error
}

// Backend compiles a kernel for one Type Signature. Any error is reported to
// callers as errors.ErrUnsupportedSpecialization.
type Backend interface {
	Compile(ctx context.Context, k *kernel.Kernel, sig types.Signature) (Compiled, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, k *kernel.Kernel, sig types.Signature) (Compiled, error)

func (f BackendFunc) Compile(ctx context.Context, k *kernel.Kernel, sig types.Signature) (Compiled, error) {
	return f(ctx, k, sig)
}

// Wasm returns the backend that compiles kernels to WebAssembly.
func Wasm(c *compiler.Compiler) Backend {
	return BackendFunc(func(ctx context.Context, k *kernel.Kernel, sig types.Signature) (Compiled, error) {
		s, err := c.Compile(ctx, k, sig)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Inferred returns a backend whose specializations are type-inferred once and
// executed by the interpreter. It accepts every kernel the interpreter does
// and serves hosts without a WebAssembly engine.
func Inferred(in *interp.Interpreter) Backend {
	return BackendFunc(func(_ context.Context, k *kernel.Kernel, sig types.Signature) (Compiled, error) {
		info, err := typing.Infer(k, sig)
		if err != nil {
			return nil, err
		}
		return &inferred{in: in, info: info}, nil
	})
}

type inferred struct {
	in   *interp.Interpreter
	info *typing.Info
}

func (s *inferred) Call(ctx context.Context, args ...any) (any, error) {
	if err := checkSignature(s.info.Kernel, s.info.Sig, args); err != nil {
		return nil, err
	}
	return s.in.Run(ctx, s.info, args...)
}

func (s *inferred) Signature() types.Signature { return s.info.Sig }

func (s *inferred) Close(context.Context) error { return nil }
