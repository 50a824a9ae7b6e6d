package array

import (
	"errors"
	"math"
	"testing"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

func TestFromSlice(t *testing.T) {
	a, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if a.Kind() != types.Float64 || a.Rank() != 2 || a.Len() != 6 {
		t.Fatalf("got kind=%s rank=%d len=%d", a.Kind(), a.Rank(), a.Len())
	}
	if got := a.At(1, 2); got != 6 {
		t.Errorf("At(1, 2) = %v, want 6", got)
	}
	if a.KernelType() != types.ArrayOf(types.Float64, 2) {
		t.Errorf("KernelType = %v", a.KernelType())
	}

	if _, err := FromSlice([]int32{1, 2, 3}, 2, 2); !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Errorf("expected invalid input for shape mismatch, got %v", err)
	}
	if _, err := FromSlice([]int32{}, -1); err == nil {
		t.Error("expected error for negative dimension")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf[int32]() != types.Int32 || KindOf[bool]() != types.Bool || KindOf[uint16]() != types.Uint16 {
		t.Error("KindOf mismatch")
	}
	if KindOf[float64]() != types.Float64 {
		t.Error("KindOf[float64] mismatch")
	}
}

func TestSetWritesThrough(t *testing.T) {
	data := []int32{0, 0, 0, 0}
	a := MustFromSlice(data, 2, 2)
	a.Set(7.9, 1, 0)
	if data[2] != 7 {
		t.Errorf("Set must truncate and share storage: data=%v", data)
	}

	r, err := a.Reshape(4)
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	r.Set(5, 3)
	if a.At(1, 1) != 5 {
		t.Error("Reshape must return a view")
	}
	if _, err := a.Reshape(3); err == nil {
		t.Error("expected error for incompatible reshape")
	}
}

func TestOffset(t *testing.T) {
	a := Zeros(3, 4)
	off, err := a.Offset(2, 1)
	if err != nil || off != 9 {
		t.Errorf("Offset(2, 1) = %d, %v", off, err)
	}
	if _, err := a.Offset(3, 0); err == nil {
		t.Error("expected out of bounds")
	}
	if _, err := a.Offset(1); err == nil {
		t.Error("expected rank error")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	tests := []*Array{
		MustFromSlice([]float64{1.5, -2, math.Inf(1)}),
		MustFromSlice([]float32{1.5, -2}),
		MustFromSlice([]int64{math.MinInt64, 3}),
		MustFromSlice([]int32{-1, 2, 3}),
		MustFromSlice([]bool{true, false, true}),
		MustFromSlice([]uint16{65535, 1}),
		MustFromSlice([]int8{-128, 127}),
	}
	for _, a := range tests {
		buf := a.Bytes()
		if len(buf) != a.ByteLen() {
			t.Errorf("%s: %d bytes, want %d", a.Kind(), len(buf), a.ByteLen())
		}
		c := a.Clone()
		if !AllClose(a, c, 0) {
			t.Errorf("%s: clone differs: %v vs %v", a.Kind(), a, c)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := Arange(3)
	c := a.Clone()
	c.Set(10, 0)
	if a.At(0) != 0 {
		t.Error("Clone must not share storage")
	}
}

func TestArangeLinspace(t *testing.T) {
	a := Arange(4)
	if a.Len() != 4 || a.At(3) != 3 {
		t.Errorf("Arange: %v", a)
	}

	l := Linspace(0, 1, 5)
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i, w := range want {
		if got := l.At(i); math.Abs(got-w) > 1e-15 {
			t.Errorf("Linspace[%d] = %v, want %v", i, got, w)
		}
	}
	if Linspace(2, 3, 1).At(0) != 2 {
		t.Error("Linspace with one point must return start")
	}
}

func TestSpan(t *testing.T) {
	a := Arange(10)
	s := a.Span(2, 5)
	if s.Len() != 3 || s.At(0) != 2 {
		t.Errorf("Span: %v", s)
	}
	s.Set(-1, 0)
	if a.At(2) != -1 {
		t.Error("Span must share storage")
	}
}

func TestAllClose(t *testing.T) {
	a := MustFromSlice([]float64{1, 2, 3})
	b := MustFromSlice([]float64{1, 2, 3 + 1e-12})
	if !AllClose(a, b, 1e-9) {
		t.Error("expected close")
	}
	if AllClose(a, Arange(3), 1e-9) {
		t.Error("expected not close")
	}
	if AllClose(a, Zeros(1, 3), 1e-9) {
		t.Error("different shapes must not be close")
	}
}

func TestNilKernelType(t *testing.T) {
	var a *Array
	if !a.KernelType().IsVoid() {
		t.Error("nil array must have void type")
	}
	if _, ok := types.TypeOf(a); ok {
		t.Error("TypeOf(nil array) must fail")
	}
}
