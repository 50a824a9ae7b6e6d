package compiler

import (
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

// Supported reports whether compiled code can represent values of kind k.
func Supported(k types.Kind) bool {
	switch k.Default() {
	case types.Bool, types.Int32, types.Int64, types.Float32, types.Float64:
		return true
	}
	return false
}

// CheckSignature rejects signatures compiled code cannot take.
func CheckSignature(name string, sig types.Signature) error {
	for i, t := range sig {
		if !Supported(t.Kind) {
			return unsupported(name, sig, "argument %d has type %s", i, t)
		}
	}
	return nil
}

// check rejects inferred kernels that use interpreter-only features.
func check(info *typing.Info) error {
	name, sig := info.Kernel.Name(), info.Sig
	switch {
	case info.Prints:
		return unsupported(name, sig, "print and println run only interpreted")
	case info.DynamicPanic:
		return unsupported(name, sig, "panic with a non-constant message")
	case info.ArrayLocals:
		return unsupported(name, sig, "local array variables")
	case info.Result.IsArray():
		return unsupported(name, sig, "array results")
	case !info.Result.IsVoid() && !Supported(info.Result.Kind):
		return unsupported(name, sig, "result type %s", info.Result)
	}
	for local, t := range info.Locals {
		if !Supported(t.Kind) {
			return unsupported(name, sig, "variable %s has type %s", local, t)
		}
	}
	for e, t := range info.Types {
		if !t.IsVoid() && !Supported(t.Kind) {
			return unsupported(name, sig, "%s has type %s", info.Kernel.Pos(e.Pos()), t)
		}
	}
	for e, k := range info.Ops {
		if !Supported(k) {
			return unsupported(name, sig, "%s operates on %s", info.Kernel.Pos(e.Pos()), k)
		}
	}
	return nil
}

func unsupported(name string, sig types.Signature, format string, args ...any) error {
	return kerrors.New(kerrors.PhaseSpecialize, kerrors.KindUnsupported).
		Kernel(name).
		Signature(sig.String()).
		Detail(format, args...).
		Build()
}
