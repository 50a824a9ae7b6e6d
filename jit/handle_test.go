package jit

import (
	"context"
	"errors"
	"testing"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

func sig(t *testing.T, s string) types.Signature {
	t.Helper()
	fs, err := types.ParseFuncSig(s)
	if err != nil {
		t.Fatalf("ParseFuncSig(%q): %v", s, err)
	}
	return fs.Params
}

func TestRegister_SealedSignatures(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	c := New(b)
	add := mustKernel(t, "add")

	h, err := c.Register(ctx, add, WithSignatures(sig(t, "float64(float64, float64)")))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !h.Sealed() {
		t.Fatal("handle is not sealed")
	}
	if got := b.calls.Load(); got != 1 {
		t.Fatalf("compiled %d times at registration, want 1", got)
	}

	tests := []struct {
		name string
		args []any
		want any
	}{
		{"exact", []any{2.5, 0.5}, 3.0},
		{"int32 widens", []any{int32(2), int32(3)}, 5.0},
		{"float32 widens", []any{float32(1.5), 2.0}, 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.Call(ctx, tt.args...)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if res != tt.want {
				t.Errorf("Call = %v (%T), want %v", res, res, tt.want)
			}
		})
	}
	if got := b.calls.Load(); got != 1 {
		t.Errorf("sealed handle compiled %d times, want 1", got)
	}

	_, err = h.Call(ctx, int64(2), 3.0)
	if !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Fatalf("Call(int64, float64) err = %v, want unsupported specialization", err)
	}
	res, err := h.CallWithFallback(ctx, int64(2), 3.0)
	if err != nil || res != 5.0 {
		t.Fatalf("CallWithFallback = %v, %v", res, err)
	}
	if got := c.Stats().Fallbacks; got != 1 {
		t.Errorf("Fallbacks = %d, want 1", got)
	}
	if sigs := h.Signatures(); len(sigs) != 1 {
		t.Errorf("Signatures = %v", sigs)
	}
}

func TestRegister_Declared(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	c := New(b)
	div := mustKernel(t, "div")

	h, err := c.Register(ctx, div)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !h.Sealed() || b.calls.Load() != 1 {
		t.Fatalf("declared kernel: sealed=%v compiled=%d", h.Sealed(), b.calls.Load())
	}
	res, err := h.Call(ctx, int32(9), int32(3))
	if err != nil || res != int64(3) {
		t.Fatalf("Call = %v, %v", res, err)
	}

	lazy, err := c.Register(ctx, div, Lazily())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if lazy.Sealed() {
		t.Error("Lazily handle is sealed")
	}
}

func TestRegister_DeclaredUncompilable(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	b.reject["div"] = true
	c := New(b)

	h, err := c.Register(ctx, mustKernel(t, "div"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.Sealed() {
		t.Fatal("uncompilable declared kernel is sealed")
	}
	if got := c.Stats().CompileFailures; got != 1 {
		t.Errorf("CompileFailures = %d, want 1", got)
	}
	res, err := h.CallWithFallback(ctx, int64(9), int64(3))
	if err != nil || res != int64(3) {
		t.Fatalf("CallWithFallback = %v, %v", res, err)
	}
	if got := c.Stats().Fallbacks; got != 1 {
		t.Errorf("Fallbacks = %d, want 1", got)
	}

	_, err = c.Register(ctx, mustKernel(t, "div"), WithSignatures(sig(t, "(int64, int64)")))
	if !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Errorf("explicit signature err = %v, want unsupported specialization", err)
	}
}

func TestRegister_Lazy(t *testing.T) {
	ctx := context.Background()
	c := New(newCountingBackend())
	h, err := c.Register(ctx, mustKernel(t, "add"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.Sealed() {
		t.Fatal("lazy kernel handle is sealed")
	}
	if len(h.Signatures()) != 0 {
		t.Fatalf("Signatures before first call = %v", h.Signatures())
	}
	if _, err := h.Call(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Call(ctx, 1.0, 2.0); err != nil {
		t.Fatal(err)
	}
	if got := len(h.Signatures()); got != 2 {
		t.Errorf("Signatures = %d, want 2", got)
	}
	res, err := h.CallInterpreted(ctx, 1, 2)
	if err != nil || res != int64(3) {
		t.Errorf("CallInterpreted = %v, %v", res, err)
	}
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	b.reject["add"] = true
	c := New(b)

	_, err := c.Register(ctx, mustKernel(t, "add"), WithSignatures(sig(t, "(float64)")))
	if !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Errorf("arity err = %v, want invalid input", err)
	}
	_, err = c.Register(ctx, mustKernel(t, "div"), WithSignatures(sig(t, "(float64, float64)")))
	if !errors.Is(err, kerrors.ErrTypeMismatch) {
		t.Errorf("declared type err = %v, want type mismatch", err)
	}
	_, err = c.Register(ctx, mustKernel(t, "add"), WithSignatures(sig(t, "(int64, int64)")))
	if !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Errorf("rejected err = %v, want unsupported specialization", err)
	}
}

func TestDispatch(t *testing.T) {
	f64 := types.Scalar(types.Float64)
	i32 := types.Scalar(types.Int32)
	i64 := types.Scalar(types.Int64)
	arr := types.ArrayOf(types.Float64, 1)
	sigs := []types.Signature{{f64, f64}, {i64, i64}, {arr, f64}}

	tests := []struct {
		got  types.Signature
		want types.Signature
		ok   bool
	}{
		{types.Signature{i64, i64}, sigs[1], true},
		{types.Signature{i32, i32}, sigs[0], true},
		{types.Signature{arr, i32}, sigs[2], true},
		{types.Signature{types.ArrayOf(types.Float32, 1), f64}, nil, false},
		{types.Signature{i64, f64}, nil, false},
		{types.Signature{f64}, nil, false},
	}
	for _, tt := range tests {
		got, ok := Dispatch(sigs, tt.got)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("Dispatch(%s) = %s, %v; want %s, %v", tt.got, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCast(t *testing.T) {
	out, err := Cast([]any{int32(3), 2.75, true}, types.Signature{
		types.Scalar(types.Float64), types.Scalar(types.Int64), types.Scalar(types.Bool),
	})
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if out[0] != 3.0 || out[1] != int64(2) || out[2] != true {
		t.Errorf("Cast = %#v", out)
	}
	if _, err := Cast([]any{true}, types.Signature{types.Scalar(types.Int64)}); err == nil {
		t.Error("Cast(bool -> int64) succeeded")
	}
}
