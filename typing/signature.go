package typing

import (
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// CallSignature derives the Type Signature of a call to k from its arguments.
// Lazy parameters take the runtime type of their argument. A scalar argument
// of a concretely typed parameter takes the declared type only when it
// converts without loss; any other difference fails with
// errors.ErrSignatureMismatch.
func CallSignature(k *kernel.Kernel, args []any) (types.Signature, error) {
	if len(args) != k.NumParams() {
		return nil, kerrors.New(kerrors.PhaseInvoke, kerrors.KindInvalidInput).
			Kernel(k.Name()).
			Detail("%d arguments for %d parameters", len(args), k.NumParams()).
			Build()
	}
	sig, err := types.SignatureOf(args...)
	if err != nil {
		return nil, err
	}
	for i, t := range sig {
		p := k.Param(i)
		if p.Lazy || t == p.Type {
			continue
		}
		if t.IsArray() || p.Type.IsArray() || !types.IsSafeCast(t.Kind, p.Type.Kind) {
			return nil, kerrors.New(kerrors.PhaseInvoke, kerrors.KindSignatureMismatch).
				Kernel(k.Name()).
				Detail("argument %d: cannot use %s as %s", i, t, p.Type).
				Build()
		}
		sig[i] = p.Type
	}
	return sig, nil
}
