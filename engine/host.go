package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-kernels/kernel"
)

// HostModule is the import module name of functions the engine provides to
// compiled kernels.
const HostModule = "kernel"

// RaiseImport is the name of the host function compiled code calls before
// trapping with unreachable. Its i32 argument is a message code chosen by
// the compiler.
const RaiseImport = "raise"

type raiseKey struct{}

// raiseSlot receives the code passed to raise during one call.
type raiseSlot struct {
	code   int32
	raised bool
}

func withRaiseSlot(ctx context.Context, s *raiseSlot) context.Context {
	return context.WithValue(ctx, raiseKey{}, s)
}

func hostRaise(ctx context.Context, stack []uint64) {
	if s, ok := ctx.Value(raiseKey{}).(*raiseSlot); ok {
		s.code = api.DecodeI32(stack[0])
		s.raised = true
	}
}

// instantiateHost builds the host module: raise plus every math function
// compiled code imports rather than lowering to an instruction.
func instantiateHost(ctx context.Context, r wazero.Runtime) error {
	b := r.NewHostModuleBuilder(HostModule)
	b.NewFunctionBuilder().
		WithGoFunction(api.GoFunc(hostRaise), []api.ValueType{api.ValueTypeI32}, nil).
		WithParameterNames("code").
		Export(RaiseImport)

	f64 := api.ValueTypeF64
	for _, m := range kernel.HostMath() {
		switch m.Arity {
		case 1:
			fn := m.F1
			b.NewFunctionBuilder().
				WithGoFunction(api.GoFunc(func(_ context.Context, stack []uint64) {
					stack[0] = api.EncodeF64(fn(api.DecodeF64(stack[0])))
				}), []api.ValueType{f64}, []api.ValueType{f64}).
				Export(m.Import())
		case 2:
			fn := m.F2
			b.NewFunctionBuilder().
				WithGoFunction(api.GoFunc(func(_ context.Context, stack []uint64) {
					stack[0] = api.EncodeF64(fn(api.DecodeF64(stack[0]), api.DecodeF64(stack[1])))
				}), []api.ValueType{f64, f64}, []api.ValueType{f64}).
				Export(m.Import())
		}
	}
	_, err := b.Instantiate(ctx)
	return err
}
