package interp

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/wippyai/wasm-kernels/array"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
)

func call(t *testing.T, src, name string, args ...any) (any, error) {
	t.Helper()
	return callWith(t, New(), src, name, args...)
}

func callWith(t *testing.T, in *Interpreter, src, name string, args ...any) (any, error) {
	t.Helper()
	lib, err := kernel.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	k, err := lib.Kernel(name)
	if err != nil {
		t.Fatalf("Kernel: %v", err)
	}
	return in.Call(context.Background(), k, args...)
}

func mustCall(t *testing.T, src, name string, args ...any) any {
	t.Helper()
	v, err := call(t, src, name, args...)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return v
}

func raised(t *testing.T, err error) *kerrors.RaiseError {
	t.Helper()
	var re *kerrors.RaiseError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RaiseError", err)
	}
	return re
}

func TestCall_Add(t *testing.T) {
	const src = `func add(x, y any) any { return x + y }`

	if got := mustCall(t, src, "add", 2, 3); got != int64(5) {
		t.Errorf("add(2, 3) = %v (%T), want 5", got, got)
	}
	if got := mustCall(t, src, "add", 2.5, 0.5); got != 3.0 {
		t.Errorf("add(2.5, 0.5) = %v, want 3", got)
	}
	if got := mustCall(t, src, "add", int32(math.MaxInt32), int32(1)); got != int32(math.MinInt32) {
		t.Errorf("add wraps: got %v, want %d", got, math.MinInt32)
	}
	if got := mustCall(t, src, "add", 1, 0.5); got != 1.5 {
		t.Errorf("add(1, 0.5) = %v, want 1.5", got)
	}
}

func TestCall_DeclaredParams(t *testing.T) {
	const src = `func half(x float64) float64 { return x / 2 }`

	tests := []struct {
		name string
		arg  any
		want any
	}{
		{"float64", 3.0, 1.5},
		{"int32 widens", int32(3), 1.5},
		{"float32 widens", float32(0.5), 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustCall(t, src, "half", tt.arg); got != tt.want {
				t.Errorf("half(%v) = %v, want %v", tt.arg, got, tt.want)
			}
		})
	}

	for _, arg := range []any{int64(1<<53 + 1), 3, uint64(7)} {
		if _, err := call(t, src, "half", arg); !errors.Is(err, kerrors.ErrSignatureMismatch) {
			t.Errorf("half(%T) err = %v, want signature mismatch", arg, err)
		}
	}
}

func TestCall_IntegerDivision(t *testing.T) {
	const src = `
func div(a, b int64) int64 { return a / b }
func rem(a, b int64) int64 { return a % b }
`
	if got := mustCall(t, src, "div", int64(-7), int64(2)); got != int64(-3) {
		t.Errorf("-7 / 2 = %v, want -3", got)
	}
	if got := mustCall(t, src, "rem", int64(-7), int64(2)); got != int64(-1) {
		t.Errorf("-7 %% 2 = %v, want -1", got)
	}
	if got := mustCall(t, src, "rem", int64(math.MinInt64), int64(-1)); got != int64(0) {
		t.Errorf("MinInt64 %% -1 = %v, want 0", got)
	}

	_, err := call(t, src, "div", int64(1), int64(0))
	re := raised(t, err)
	if re.Message != kerrors.MsgDivideByZero || re.Kernel != "div" {
		t.Errorf("raise = %+v", re)
	}

	_, err = call(t, src, "div", int64(math.MinInt64), int64(-1))
	if !errors.Is(err, &kerrors.RaiseError{Message: kerrors.MsgIntegerOverflow}) {
		t.Errorf("error = %v, want integer overflow", err)
	}
}

func TestCall_Wrapping(t *testing.T) {
	const src = `func wrap(x uint8) uint8 { return x + 200 }`

	if got := mustCall(t, src, "wrap", uint8(100)); got != uint8(44) {
		t.Errorf("wrap(100) = %v, want 44", got)
	}
}

func TestCall_FloatToInt(t *testing.T) {
	const src = `func conv(x float64) int32 { return int32(x) }`

	tests := []struct {
		in   float64
		want int32
	}{
		{1.9, 1},
		{-1.9, -1},
		{1e20, math.MaxInt32},
		{-1e20, math.MinInt32},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := mustCall(t, src, "conv", tt.in); got != tt.want {
			t.Errorf("conv(%v) = %v, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCall_Float32(t *testing.T) {
	const src = `func third(x float32) float32 { return x / 3 }`

	if got := mustCall(t, src, "third", float32(1)); got != float32(1)/3 {
		t.Errorf("third(1) = %v, want %v", got, float32(1)/3)
	}
}

func TestCall_IndexOutOfRange(t *testing.T) {
	const src = `func get(x []float64, i int) float64 { return x[i] }`
	x := array.MustFromSlice([]float64{1, 2, 3})

	if got := mustCall(t, src, "get", x, 2); got != 3.0 {
		t.Errorf("get(x, 2) = %v, want 3", got)
	}
	for _, i := range []int{3, -1} {
		_, err := call(t, src, "get", x, i)
		if re := raised(t, err); re.Message != kerrors.MsgIndexOutOfRange {
			t.Errorf("get(x, %d): message = %q", i, re.Message)
		}
	}
}

func TestCall_Panic(t *testing.T) {
	const src = `
func check(x float64) float64 {
	if x < 0 {
		panic("negative input")
	}
	return math.Sqrt(x)
}

func outer(x float64) float64 { return check(x) + 1 }
`
	if got := mustCall(t, src, "outer", 4.0); got != 3.0 {
		t.Errorf("outer(4) = %v, want 3", got)
	}
	_, err := call(t, src, "outer", -1.0)
	re := raised(t, err)
	if re.Message != "negative input" {
		t.Errorf("message = %q", re.Message)
	}
	if re.Kernel != "outer" {
		t.Errorf("kernel = %q, want outer", re.Kernel)
	}
}

func TestCall_Print(t *testing.T) {
	const src = `
func show(x float64) {
	n := 3
	println("x", x, n)
	print("a", "b")
}
`
	var buf bytes.Buffer
	v, err := callWith(t, New(WithOutput(&buf)), src, "show", 1.5)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v != nil {
		t.Errorf("result = %v, want nil", v)
	}
	if got, want := buf.String(), "x 1.5 3\nab"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCall_Sum2D(t *testing.T) {
	const src = `
func sum2d(a [][]float64) float64 {
	s := 0.0
	for i := range a {
		for j := range a[i] {
			s += a[i][j]
		}
	}
	return s
}

func rows(a [][]float64) int {
	n := 0
	for _, row := range a {
		n += len(row)
	}
	return n
}
`
	a := array.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)

	if got := mustCall(t, src, "sum2d", a); got != 21.0 {
		t.Errorf("sum2d = %v, want 21", got)
	}
	if got := mustCall(t, src, "rows", a); got != int64(6) {
		t.Errorf("rows = %v, want 6", got)
	}
}

func TestCall_WritesArgument(t *testing.T) {
	const src = `
func scale(x []float64, k float64) {
	for i := range x {
		x[i] *= k
	}
}

func swap(x []float64) {
	x[0], x[1] = x[1], x[0]
}
`
	x := array.MustFromSlice([]float64{1, 2, 3})
	mustCall(t, src, "scale", x, 2.0)
	mustCall(t, src, "swap", x)

	want := array.MustFromSlice([]float64{4, 2, 6})
	if !array.AllClose(x, want, 0) {
		t.Errorf("x = %s, want %s", x, want)
	}
}

func TestCall_Integrate(t *testing.T) {
	const src = `
func integrate(a, b float64, n int) float64 {
	h := (b - a) / float64(n)
	s := 0.0
	for i := 0; i < n; i++ {
		x := a + (float64(i)+0.5)*h
		s += x * x
	}
	return s * h
}
`
	got := mustCall(t, src, "integrate", 0.0, 1.0, 1000).(float64)
	if math.Abs(got-1.0/3) > 1e-6 {
		t.Errorf("integrate = %v, want 1/3", got)
	}
}

func TestCall_Loops(t *testing.T) {
	const src = `
func firstOver(x []int64, limit int64) int {
	idx := -1
	for i := 0; i < len(x); i++ {
		if x[i] <= limit {
			continue
		}
		idx = i
		break
	}
	return idx
}

func count(n int) int {
	c := 0
	for i := range n {
		if i%2 == 0 {
			c++
		}
	}
	return c
}
`
	x := array.MustFromSlice([]int64{1, 5, 9, 12})

	if got := mustCall(t, src, "firstOver", x, int64(6)); got != int64(2) {
		t.Errorf("firstOver(6) = %v, want 2", got)
	}
	if got := mustCall(t, src, "firstOver", x, int64(100)); got != int64(-1) {
		t.Errorf("firstOver(100) = %v, want -1", got)
	}
	if got := mustCall(t, src, "count", 7); got != int64(4) {
		t.Errorf("count(7) = %v, want 4", got)
	}
}

func TestCall_Recursion(t *testing.T) {
	const src = `
func fib(n int) int {
	if n < 2 {
		return n
	}
	return fib(n-1) + fib(n-2)
}

func down(n int) int { return down(n + 1) }
`
	if got := mustCall(t, src, "fib", 20); got != int64(6765) {
		t.Errorf("fib(20) = %v, want 6765", got)
	}

	_, err := call(t, src, "down", 0)
	re := raised(t, err)
	if re.Message != kerrors.MsgStackOverflow || re.Kernel != "down" {
		t.Errorf("raise = %+v", re)
	}
}

func TestCall_Cancel(t *testing.T) {
	const src = `
func spin(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	return s
}
`
	lib := kernel.MustParse(src)
	k, _ := lib.Kernel("spin")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Call(ctx, k, 1_000_000)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCall_BadArguments(t *testing.T) {
	const src = `func sum(x []float64) float64 { return x[0] }`

	if _, err := call(t, src, "sum"); err == nil {
		t.Error("expected error for missing argument")
	}
	if _, err := call(t, src, "sum", array.MustFromSlice([]int32{1})); err == nil {
		t.Error("expected error for int32 array")
	}
}
