package jit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// Handle is a registered kernel. A sealed handle only runs the signatures
// compiled at registration.
type Handle struct {
	cache  *Cache
	kernel *kernel.Kernel
	sigs   []types.Signature
}

type registration struct {
	sigs []types.Signature
	lazy bool
}

// RegisterOption configures Register.
type RegisterOption func(*registration)

// WithSignatures declares the signatures to compile eagerly. The handle is
// sealed to them.
func WithSignatures(sigs ...types.Signature) RegisterOption {
	return func(r *registration) { r.sigs = append(r.sigs, sigs...) }
}

// Lazily leaves a fully declared kernel unsealed; it is compiled on first call.
func Lazily() RegisterOption {
	return func(r *registration) { r.lazy = true }
}

// Register registers k. With WithSignatures, or when every parameter of k has
// a declared type, the signatures are compiled now and the handle is sealed.
// Registration fails if a signature given with WithSignatures cannot be
// compiled. A kernel whose declared types cannot be compiled is registered
// unsealed instead, so its calls can still fall back to the interpreter.
func (c *Cache) Register(ctx context.Context, k *kernel.Kernel, opts ...RegisterOption) (*Handle, error) {
	var r registration
	for _, opt := range opts {
		opt(&r)
	}
	sigs := r.sigs
	if len(sigs) == 0 && !r.lazy {
		if sig, ok := k.Signature(); ok {
			if _, err := c.Specialize(ctx, k, sig); err != nil {
				if !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
					return nil, err
				}
				c.logger.Warn("declared signature not compiled, registering lazily",
					zap.String("kernel", k.Name()),
					zap.String("signature", sig.String()),
					zap.Error(err))
				return &Handle{cache: c, kernel: k}, nil
			}
			sigs = []types.Signature{sig}
		}
	}
	for _, sig := range r.sigs {
		if err := declarable(k, sig); err != nil {
			return nil, err
		}
		if _, err := c.Specialize(ctx, k, sig); err != nil {
			return nil, err
		}
	}
	c.logger.Debug("registered kernel",
		zap.String("kernel", k.Name()),
		zap.Int("signatures", len(sigs)))
	return &Handle{cache: c, kernel: k, sigs: sigs}, nil
}

// declarable checks sig against the parameters of k.
func declarable(k *kernel.Kernel, sig types.Signature) error {
	if len(sig) != k.NumParams() {
		return kerrors.New(kerrors.PhaseSpecialize, kerrors.KindInvalidInput).
			Kernel(k.Name()).
			Signature(sig.String()).
			Detail("%d types for %d parameters", len(sig), k.NumParams()).
			Build()
	}
	for i, t := range sig {
		if t.IsVoid() {
			return kerrors.New(kerrors.PhaseSpecialize, kerrors.KindInvalidInput).
				Kernel(k.Name()).
				Signature(sig.String()).
				Detail("parameter %d has no type", i).
				Build()
		}
		p := k.Param(i)
		if !p.Lazy && p.Type != t {
			return kerrors.New(kerrors.PhaseSpecialize, kerrors.KindTypeMismatch).
				Kernel(k.Name()).
				Signature(sig.String()).
				Detail("parameter %s is declared %s", p.Name, p.Type).
				Build()
		}
	}
	return nil
}

func (h *Handle) Kernel() *kernel.Kernel { return h.kernel }

// Sealed reports whether the handle is restricted to its declared signatures.
func (h *Handle) Sealed() bool { return len(h.sigs) > 0 }

// Signatures returns the declared signatures of a sealed handle, or the
// signatures compiled so far otherwise.
func (h *Handle) Signatures() []types.Signature {
	if h.Sealed() {
		return append([]types.Signature(nil), h.sigs...)
	}
	return h.cache.Signatures(h.kernel)
}

// Call runs the compiled kernel. A sealed handle uses the declared signature
// equal to the arguments' types, else the first one the arguments convert to
// without loss; if none does the error matches
// errors.ErrUnsupportedSpecialization.
func (h *Handle) Call(ctx context.Context, args ...any) (any, error) {
	if !h.Sealed() {
		return h.cache.Invoke(ctx, h.kernel, args...)
	}
	got, err := types.SignatureOf(args...)
	if err != nil {
		return nil, err
	}
	sig, ok := Dispatch(h.sigs, got)
	if !ok {
		return nil, kerrors.New(kerrors.PhaseInvoke, kerrors.KindUnsupported).
			Kernel(h.kernel.Name()).
			Signature(got.String()).
			Detail("no declared signature accepts %s", got).
			Build()
	}
	s, err := h.cache.Specialize(ctx, h.kernel, sig)
	if err != nil {
		return nil, err
	}
	args, err = Cast(args, sig)
	if err != nil {
		return nil, err
	}
	return s.Call(ctx, args...)
}

// CallInterpreted runs the kernel with the interpreter.
func (h *Handle) CallInterpreted(ctx context.Context, args ...any) (any, error) {
	return h.cache.InvokeInterpreted(ctx, h.kernel, args...)
}

// CallWithFallback is Call, falling back to the interpreter when no
// specialization serves the arguments.
func (h *Handle) CallWithFallback(ctx context.Context, args ...any) (any, error) {
	res, err := h.Call(ctx, args...)
	if errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		h.cache.fallback(h.kernel, err)
		return h.CallInterpreted(ctx, args...)
	}
	return res, err
}

// Dispatch picks the declared signature for arguments of type got: an exact
// match, else the first signature every argument converts to without loss.
// Array arguments must match exactly.
func Dispatch(sigs []types.Signature, got types.Signature) (types.Signature, bool) {
	for _, sig := range sigs {
		if sig.Equal(got) {
			return sig, true
		}
	}
	for _, sig := range sigs {
		if accepts(sig, got) {
			return sig, true
		}
	}
	return nil, false
}

func accepts(sig, got types.Signature) bool {
	if len(sig) != len(got) {
		return false
	}
	for i, t := range sig {
		g := got[i]
		if t.IsArray() || g.IsArray() {
			if t != g {
				return false
			}
			continue
		}
		if !types.IsSafeCast(g.Kind, t.Kind) {
			return false
		}
	}
	return true
}

// Cast converts scalar arguments to the kinds of sig. Arrays are passed
// through.
func Cast(args []any, sig types.Signature) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		t := sig[i]
		if t.IsArray() {
			out[i] = a
			continue
		}
		bits, f, from, ok := types.Unpack(a)
		if !ok || !types.CanCast(from, t.Kind) {
			return nil, kerrors.InvalidInput(kerrors.PhaseInvoke,
				fmt.Sprintf("argument %d: cannot convert %T to %s", i, a, t))
		}
		bits, f = types.Convert(bits, f, from, t.Kind)
		out[i] = types.Pack(bits, f, t.Kind)
	}
	return out, nil
}
