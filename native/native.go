// Package native calls compiled kernels from host routines through the raw
// calling convention, the way C library routines call function pointers.
//
// Contracts are checked when a callback is created. A kernel whose
// specialization does not have the exact contract of the routine fails
// with errors.ErrNativeContract and is never called.
//
//	k, _ := lib.Kernel("cmp") // func cmp(a, b []int32) int32 { return a[0] - b[0] }
//	cmp, err := native.NewComparator(ctx, cache, k)
//	if err != nil {
//		return err
//	}
//	err = native.Sort(ctx, data, cmp)
package native

import (
	"context"

	"github.com/wippyai/wasm-kernels/compiler"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// Contracts of the callbacks in this package.
var (
	ComparatorContract = types.FuncSig{
		Result: types.Scalar(types.Int32),
		Params: types.Signature{types.ArrayOf(types.Int32, 1), types.ArrayOf(types.Int32, 1)},
	}
	IntegrandContract = types.FuncSig{
		Result: types.Scalar(types.Float64),
		Params: types.Signature{types.Scalar(types.Float64)},
	}
)

// bind compiles k for the parameter types of contract and checks the result.
func bind(ctx context.Context, cache *jit.Cache, k *kernel.Kernel, contract types.FuncSig) (*compiler.Specialization, error) {
	want := contract.String()
	if k.NumParams() != len(contract.Params) {
		return nil, kerrors.NativeContract(k.Name(), want, k.String())
	}
	for i, p := range k.Params() {
		if !p.Lazy && p.Type != contract.Params[i] {
			return nil, kerrors.NativeContract(k.Name(), want, k.String())
		}
	}

	c, err := cache.Specialize(ctx, k, contract.Params)
	if err != nil {
		return nil, err
	}
	s, ok := c.(*compiler.Specialization)
	if !ok {
		return nil, kerrors.New(kerrors.PhaseNative, kerrors.KindUnsupported).
			Kernel(k.Name()).
			Signature(contract.Params.String()).
			Detail("native callbacks need a WebAssembly specialization").
			Build()
	}
	got := types.FuncSig{Result: s.Result(), Params: s.Signature()}
	if s.Result() != contract.Result {
		return nil, kerrors.NativeContract(k.Name(), want, got.String())
	}
	return s, nil
}
