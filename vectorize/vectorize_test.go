package vectorize

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/compiler"
	"github.com/wippyai/wasm-kernels/engine"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/interp"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

var lib = kernel.MustParse(`
func f(x, y any) any { return x + y }

func gt(x, y float64) bool { return x > y }

func hyp(x, y float64) float64 { return math.Sqrt(sq(x) + sq(y)) }

func sq(v float64) float64 { return v * v }

func noisy(x float64) float64 {
	println(x)
	return x * 2
}

func ratio(x, y int64) int64 {
	if y == 0 {
		panic("zero divisor")
	}
	return x / y
}
`)

func newCache(t *testing.T) *jit.Cache {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(ctx, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	c := jit.New(jit.Wasm(compiler.New(e)),
		jit.WithInterpreter(interp.New(interp.WithOutput(io.Discard))))
	t.Cleanup(func() {
		_ = c.Close(ctx)
		_ = e.Close(ctx)
	})
	return c
}

func newUfunc(t *testing.T, cache *jit.Cache, name string, sigs ...string) *Ufunc {
	t.Helper()
	k, err := lib.Kernel(name)
	if err != nil {
		t.Fatalf("Kernel(%q): %v", name, err)
	}
	var fs []types.FuncSig
	for _, s := range sigs {
		sig, err := types.ParseFuncSig(s)
		if err != nil {
			t.Fatalf("ParseFuncSig(%q): %v", s, err)
		}
		fs = append(fs, sig)
	}
	u, err := New(cache, k, fs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return u
}

func floats(t *testing.T, v any) []float64 {
	t.Helper()
	a, ok := v.(*array.Array)
	if !ok {
		t.Fatalf("result %T is not an array", v)
	}
	s, ok := array.Slice[float64](a)
	if !ok {
		t.Fatalf("result kind %s, want float64", a.Kind())
	}
	return s
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	u := newUfunc(t, cache, "f", "float64(float64, float64)")

	x := array.MustFromSlice([]float64{1, 2, 3})
	y := array.MustFromSlice([]float64{10, 20, 30})

	tests := []struct {
		name string
		args []any
		want []float64
	}{
		{"arrays", []any{x, y}, []float64{11, 22, 33}},
		{"broadcast scalar", []any{x, 2.5}, []float64{3.5, 4.5, 5.5}},
		{"broadcast first", []any{0.5, y}, []float64{10.5, 20.5, 30.5}},
		{"int32 widens", []any{array.MustFromSlice([]int32{1, 2, 3}), y}, []float64{11, 22, 33}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := u.Apply(ctx, tt.args...)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got := floats(t, res); !slices.Equal(got, tt.want) {
				t.Errorf("Apply = %v, want %v", got, tt.want)
			}
		})
	}

	before := cache.Stats().Compilations
	if _, err := u.Apply(ctx, y, x); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := cache.Stats().Compilations; got != before {
		t.Errorf("repeat Apply compiled %d more loops", got-before)
	}

	res, err := u.Apply(ctx, 1.0, 2.0)
	if err != nil || res != 3.0 {
		t.Errorf("Apply(scalars) = %v, %v", res, err)
	}
}

func TestApply_Shapes(t *testing.T) {
	ctx := context.Background()
	u := newUfunc(t, newCache(t), "hyp")

	a := array.MustFromSlice([]float64{3, 5, 8, 7, 9, 12}, 2, 3)
	b := array.MustFromSlice([]float64{4, 12, 15, 24, 40, 35}, 2, 3)
	res, err := u.Apply(ctx, a, b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out := res.(*array.Array)
	if !slices.Equal(out.Shape(), []int{2, 3}) {
		t.Errorf("shape = %v", out.Shape())
	}
	if got := floats(t, res); !slices.Equal(got, []float64{5, 13, 17, 25, 41, 37}) {
		t.Errorf("hyp = %v", got)
	}

	_, err = u.Apply(ctx, a, array.MustFromSlice([]float64{1, 2, 3}))
	if !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Errorf("shape mismatch err = %v, want invalid input", err)
	}
}

func TestApply_BoolResult(t *testing.T) {
	ctx := context.Background()
	u := newUfunc(t, newCache(t), "gt")
	res, err := u.Apply(ctx, array.MustFromSlice([]float64{1, 5, 3}), 2.0)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, ok := array.Slice[bool](res.(*array.Array))
	if !ok || !slices.Equal(got, []bool{false, true, true}) {
		t.Errorf("gt = %v", res)
	}
}

func TestApply_Lazy(t *testing.T) {
	ctx := context.Background()
	u := newUfunc(t, newCache(t), "f")
	res, err := u.Apply(ctx, array.MustFromSlice([]int64{1, 2}), int64(40))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, ok := array.Slice[int64](res.(*array.Array))
	if !ok || !slices.Equal(got, []int64{41, 42}) {
		t.Errorf("f = %v", res)
	}
}

func TestApply_NoMatchingSignature(t *testing.T) {
	u := newUfunc(t, newCache(t), "f", "float64(float64, float64)")
	_, err := u.Apply(context.Background(), array.MustFromSlice([]int64{1}), 1.0)
	if !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Fatalf("err = %v, want unsupported specialization", err)
	}
}

func TestApply_InterpretedFallback(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	u := newUfunc(t, cache, "noisy", "float64(float64)")
	res, err := u.Apply(ctx, array.MustFromSlice([]float64{1, 2}))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := floats(t, res); !slices.Equal(got, []float64{2, 4}) {
		t.Errorf("noisy = %v", got)
	}
	if cache.Stats().Fallbacks == 0 {
		t.Error("expected an interpreted fallback")
	}
}

func TestApply_RaiseNamesKernel(t *testing.T) {
	ctx := context.Background()
	u := newUfunc(t, newCache(t), "ratio", "int64(int64, int64)")

	x := array.MustFromSlice([]int64{4, 6})
	_, err := u.Apply(ctx, x, array.MustFromSlice([]int64{2, 0}))
	var re *kerrors.RaiseError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want a raise", err)
	}
	if re.Kernel != "ratio" || re.Message != "zero divisor" {
		t.Errorf("raise = %+v, want ratio: zero divisor", re)
	}

	_, err = u.Apply(ctx, int64(1), int64(0))
	if !errors.As(err, &re) || re.Kernel != "ratio" {
		t.Errorf("scalar raise = %v", err)
	}
}

func TestNew_InvalidSignature(t *testing.T) {
	cache := newCache(t)
	k, _ := lib.Kernel("gt")
	for _, s := range []string{"bool(float64)", "bool(float32, float64)", "(float64[:], float64)"} {
		fs, err := types.ParseFuncSig(s)
		if err != nil {
			t.Fatalf("ParseFuncSig: %v", err)
		}
		if _, err := New(cache, k, []types.FuncSig{fs}); !errors.Is(err, kerrors.ErrInvalidInput) {
			t.Errorf("New(%s) err = %v, want invalid input", s, err)
		}
	}
}

func TestNew_Method(t *testing.T) {
	cls := kernel.MustParse("type P struct{ x float64 }\nfunc (p P) scaled(f float64) float64 { return p.x * f }")
	k, err := cls.Kernel("P.scaled")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(newCache(t), k, nil); !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Errorf("err = %v, want unsupported specialization", err)
	}
}
