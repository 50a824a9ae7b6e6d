package numexpr

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/compiler"
	"github.com/wippyai/wasm-kernels/engine"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/jit"
)

func operands(n int) (*array.Array, []int64, []bool) {
	a := array.Arange(n)
	b := make([]int64, n)
	want := make([]bool, n)
	for i := range b {
		b[i] = int64((i * 7) % 10)
		x, y := float64(i), float64(b[i])
		want[i] = float64(x*y)-float64(4.1*x) > 2.5*y
	}
	return a, b, want
}

func newCache(t *testing.T) *jit.Cache {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(ctx, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	c := jit.New(jit.Wasm(compiler.New(e)))
	t.Cleanup(func() {
		_ = c.Close(ctx)
		_ = e.Close(ctx)
	})
	return c
}

func bools(t *testing.T, v any) []bool {
	t.Helper()
	a, ok := v.(*array.Array)
	if !ok {
		t.Fatalf("result %T is not an array", v)
	}
	s, ok := array.Slice[bool](a)
	if !ok {
		t.Fatalf("result kind %s, want bool", a.Kind())
	}
	return s
}

func TestEvaluate_Chunked(t *testing.T) {
	a, b, want := operands(20000)
	res, err := Evaluate(context.Background(), "a*b-4.1*a > 2.5*b",
		map[string]any{"a": a, "b": b},
		WithWorkers(4), WithChunkSize(1500))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := bools(t, res); !slices.Equal(got, want) {
		t.Error("chunked result differs from direct evaluation")
	}
}

func TestEvaluate_Cache(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	e := NewEvaluator(WithCache(cache))
	a, b, want := operands(5000)
	vars := map[string]any{"a": a, "b": b}

	res, err := e.Evaluate(ctx, "a*b-4.1*a > 2.5*b", vars)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := bools(t, res); !slices.Equal(got, want) {
		t.Error("compiled result differs from direct evaluation")
	}

	compiled := cache.Stats().Compilations
	if compiled == 0 {
		t.Fatal("nothing was compiled")
	}
	if _, err := e.Evaluate(ctx, "a*b-4.1*a > 2.5*b", vars); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := cache.Stats().Compilations; got != compiled {
		t.Errorf("second evaluation compiled %d more", got-compiled)
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	m := array.MustFromSlice([]float64{4, 9, 16, 25}, 2, 2)

	res, err := Evaluate(ctx, "math.Sqrt(m) + k", map[string]any{"m": m, "k": 0.5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	out := res.(*array.Array)
	if !slices.Equal(out.Shape(), []int{2, 2}) {
		t.Errorf("shape = %v", out.Shape())
	}
	got, _ := array.Slice[float64](out)
	if !slices.Equal(got, []float64{2.5, 3.5, 4.5, 5.5}) {
		t.Errorf("sqrt = %v", got)
	}

	res, err = Evaluate(ctx, "2*x + 1", map[string]any{"x": 3.0})
	if err != nil || res != 7.0 {
		t.Errorf("scalar = %v, %v", res, err)
	}

	res, err = Evaluate(ctx, "x * int64(2)", map[string]any{"x": []int64{1, 2, 3}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	ints, _ := array.Slice[int64](res.(*array.Array))
	if !slices.Equal(ints, []int64{2, 4, 6}) {
		t.Errorf("ints = %v", ints)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		expr string
		vars map[string]any
		want error
	}{
		{"undefined", "a + c", map[string]any{"a": 1.0}, kerrors.ErrNotFound},
		{"syntax", "a +", map[string]any{"a": 1.0}, kerrors.ErrSyntax},
		{"shape", "a + b", map[string]any{
			"a": array.MustFromSlice([]float64{1, 2, 3, 4}, 2, 2),
			"b": []float64{1, 2, 3, 4},
		}, kerrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Evaluate(ctx, tt.expr, tt.vars); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEvaluate_RaiseNamesExpression(t *testing.T) {
	ctx := context.Background()
	vars := map[string]any{"a": []int64{1, 2, 3}, "b": []int64{1, 0, 3}}

	for _, opts := range [][]Option{nil, {WithCache(newCache(t))}} {
		_, err := Evaluate(ctx, "a / b", vars, opts...)
		var re *kerrors.RaiseError
		if !errors.As(err, &re) {
			t.Fatalf("err = %v, want a raise", err)
		}
		if re.Kernel != "a / b" || re.Message != kerrors.MsgDivideByZero {
			t.Errorf("raise = %+v", re)
		}
	}
}

func TestVariables(t *testing.T) {
	names, err := Variables("math.Max(b, a) > float64(len(c)) && true",
		map[string]any{"a": 1, "b": 2, "c": 3, "unused": 4})
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if !slices.Equal(names, []string{"a", "b", "c"}) {
		t.Errorf("Variables = %v", names)
	}
}
