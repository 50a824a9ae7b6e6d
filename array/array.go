// Package array provides the C-contiguous n-dimensional arrays kernels operate on.
//
// An Array owns a typed Go slice ([]float64, []int32, ...) and a shape. Kernels
// that assign to elements mutate the caller's array on both the interpreted and
// the compiled path; the compiled path copies written arrays back after the call.
package array

import (
	"encoding/binary"
	"fmt"
	"math"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

// Element is the set of Go types an Array can hold.
type Element interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// Array is a C-contiguous n-dimensional array.
type Array struct {
	data  any
	shape []int
	kind  types.Kind
}

// KindOf returns the kernel kind of an element type.
func KindOf[T Element]() types.Kind {
	var zero T
	switch any(zero).(type) {
	case bool:
		return types.Bool
	case int8:
		return types.Int8
	case int16:
		return types.Int16
	case int32:
		return types.Int32
	case int64:
		return types.Int64
	case uint8:
		return types.Uint8
	case uint16:
		return types.Uint16
	case uint32:
		return types.Uint32
	case uint64:
		return types.Uint64
	case float32:
		return types.Float32
	default:
		return types.Float64
	}
}

// FromSlice wraps data with the given shape. Without a shape the array is 1-D.
// The slice is shared, not copied.
func FromSlice[T Element](data []T, shape ...int) (*Array, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	n, err := count(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, kerrors.InvalidInput(kerrors.PhaseInvoke,
			fmt.Sprintf("shape %v needs %d elements, have %d", shape, n, len(data)))
	}
	return &Array{kind: KindOf[T](), shape: append([]int(nil), shape...), data: data}, nil
}

// MustFromSlice is FromSlice that panics on a shape mismatch.
func MustFromSlice[T Element](data []T, shape ...int) *Array {
	a, err := FromSlice(data, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// FromFloat64 wraps float64 data.
func FromFloat64(data []float64, shape ...int) (*Array, error) { return FromSlice(data, shape...) }

// FromFloat32 wraps float32 data.
func FromFloat32(data []float32, shape ...int) (*Array, error) { return FromSlice(data, shape...) }

// FromInt64 wraps int64 data.
func FromInt64(data []int64, shape ...int) (*Array, error) { return FromSlice(data, shape...) }

// FromInt32 wraps int32 data.
func FromInt32(data []int32, shape ...int) (*Array, error) { return FromSlice(data, shape...) }

// FromBool wraps bool data.
func FromBool(data []bool, shape ...int) (*Array, error) { return FromSlice(data, shape...) }

// New allocates a zeroed array.
func New(kind types.Kind, shape ...int) (*Array, error) {
	n, err := count(shape)
	if err != nil {
		return nil, err
	}
	var data any
	switch kind {
	case types.Bool:
		data = make([]bool, n)
	case types.Int8:
		data = make([]int8, n)
	case types.Int16:
		data = make([]int16, n)
	case types.Int32:
		data = make([]int32, n)
	case types.Int64:
		data = make([]int64, n)
	case types.Uint8:
		data = make([]uint8, n)
	case types.Uint16:
		data = make([]uint16, n)
	case types.Uint32:
		data = make([]uint32, n)
	case types.Uint64:
		data = make([]uint64, n)
	case types.Float32:
		data = make([]float32, n)
	case types.Float64:
		data = make([]float64, n)
	default:
		return nil, kerrors.InvalidInput(kerrors.PhaseInvoke, fmt.Sprintf("no arrays of %s", kind))
	}
	return &Array{kind: kind, shape: append([]int(nil), shape...), data: data}, nil
}

// Zeros allocates a zeroed float64 array.
func Zeros(shape ...int) *Array {
	a, err := New(types.Float64, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// Arange returns the float64 values 0, 1, ..., n-1.
func Arange(n int) *Array {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return MustFromSlice(data)
}

// Linspace returns num evenly spaced float64 values over [start, stop].
func Linspace(start, stop float64, num int) *Array {
	data := make([]float64, num)
	if num == 1 {
		data[0] = start
	}
	if num > 1 {
		step := (stop - start) / float64(num-1)
		for i := range data {
			data[i] = start + float64(i)*step
		}
		data[num-1] = stop
	}
	return MustFromSlice(data)
}

func count(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, kerrors.InvalidInput(kerrors.PhaseInvoke, fmt.Sprintf("negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n, nil
}

// Slice returns the backing slice when it holds T.
func Slice[T Element](a *Array) ([]T, bool) {
	s, ok := a.data.([]T)
	return s, ok
}

// Kind returns the element kind.
func (a *Array) Kind() types.Kind { return a.kind }

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.shape) }

// Shape returns a copy of the shape.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Dim returns the extent of dimension k.
func (a *Array) Dim(k int) int { return a.shape[k] }

// Data returns the backing slice.
func (a *Array) Data() any { return a.data }

// Len returns the total number of elements.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// KernelType implements types.Typed.
func (a *Array) KernelType() types.Type {
	if a == nil || len(a.shape) == 0 {
		return types.Void
	}
	return types.ArrayOf(a.kind, len(a.shape))
}

// Reshape returns a view with a new shape over the same data.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	n, err := count(shape)
	if err != nil {
		return nil, err
	}
	if n != a.Len() {
		return nil, kerrors.InvalidInput(kerrors.PhaseInvoke,
			fmt.Sprintf("cannot reshape %v into %v", a.shape, shape))
	}
	return &Array{kind: a.kind, shape: append([]int(nil), shape...), data: a.data}, nil
}

// Ravel returns a 1-D view over the same data.
func (a *Array) Ravel() *Array {
	return &Array{kind: a.kind, shape: []int{a.Len()}, data: a.data}
}

// Span returns a 1-D view of elements [lo, hi) sharing data with a.
func (a *Array) Span(lo, hi int) *Array {
	var data any
	switch s := a.data.(type) {
	case []bool:
		data = s[lo:hi]
	case []int8:
		data = s[lo:hi]
	case []int16:
		data = s[lo:hi]
	case []int32:
		data = s[lo:hi]
	case []int64:
		data = s[lo:hi]
	case []uint8:
		data = s[lo:hi]
	case []uint16:
		data = s[lo:hi]
	case []uint32:
		data = s[lo:hi]
	case []uint64:
		data = s[lo:hi]
	case []float32:
		data = s[lo:hi]
	case []float64:
		data = s[lo:hi]
	}
	return &Array{kind: a.kind, shape: []int{hi - lo}, data: data}
}

// Offset converts a multi-dimensional index into a flat offset.
func (a *Array) Offset(idx ...int) (int, error) {
	if len(idx) != len(a.shape) {
		return 0, kerrors.InvalidInput(kerrors.PhaseInvoke,
			fmt.Sprintf("%d indices for rank %d array", len(idx), len(a.shape)))
	}
	off := 0
	for k, i := range idx {
		if i < 0 || i >= a.shape[k] {
			return 0, kerrors.OutOfBounds(kerrors.PhaseInvoke, i, a.shape[k])
		}
		off = off*a.shape[k] + i
	}
	return off, nil
}

// At returns the element at idx converted to float64.
// It panics when idx is out of range.
func (a *Array) At(idx ...int) float64 {
	off, err := a.Offset(idx...)
	if err != nil {
		panic(err)
	}
	return a.FloatAt(off)
}

// FloatAt returns the element at flat offset i converted to float64.
func (a *Array) FloatAt(i int) float64 {
	switch s := a.data.(type) {
	case []bool:
		if s[i] {
			return 1
		}
		return 0
	case []int8:
		return float64(s[i])
	case []int16:
		return float64(s[i])
	case []int32:
		return float64(s[i])
	case []int64:
		return float64(s[i])
	case []uint8:
		return float64(s[i])
	case []uint16:
		return float64(s[i])
	case []uint32:
		return float64(s[i])
	case []uint64:
		return float64(s[i])
	case []float32:
		return float64(s[i])
	case []float64:
		return s[i]
	}
	return math.NaN()
}

// Set stores v, converted to the element kind, at idx.
// Conversion to integer kinds truncates toward zero.
func (a *Array) Set(v float64, idx ...int) {
	off, err := a.Offset(idx...)
	if err != nil {
		panic(err)
	}
	a.SetFloatAt(off, v)
}

// SetFloatAt stores v at flat offset i.
func (a *Array) SetFloatAt(i int, v float64) {
	switch s := a.data.(type) {
	case []bool:
		s[i] = v != 0
	case []int8:
		s[i] = int8(v)
	case []int16:
		s[i] = int16(v)
	case []int32:
		s[i] = int32(v)
	case []int64:
		s[i] = int64(v)
	case []uint8:
		s[i] = uint8(v)
	case []uint16:
		s[i] = uint16(v)
	case []uint32:
		s[i] = uint32(v)
	case []uint64:
		s[i] = uint64(v)
	case []float32:
		s[i] = float32(v)
	case []float64:
		s[i] = v
	}
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	c, _ := New(a.kind, a.shape...)
	c.SetBytes(a.Bytes())
	return c
}

// ByteLen returns the size of the element data in bytes.
func (a *Array) ByteLen() int {
	return a.Len() * a.kind.Size()
}

// Bytes encodes the elements little-endian, one byte per bool.
func (a *Array) Bytes() []byte {
	buf := make([]byte, a.ByteLen())
	le := binary.LittleEndian
	switch s := a.data.(type) {
	case []bool:
		for i, v := range s {
			if v {
				buf[i] = 1
			}
		}
	case []int8:
		for i, v := range s {
			buf[i] = byte(v)
		}
	case []uint8:
		copy(buf, s)
	case []int16:
		for i, v := range s {
			le.PutUint16(buf[i*2:], uint16(v))
		}
	case []uint16:
		for i, v := range s {
			le.PutUint16(buf[i*2:], v)
		}
	case []int32:
		for i, v := range s {
			le.PutUint32(buf[i*4:], uint32(v))
		}
	case []uint32:
		for i, v := range s {
			le.PutUint32(buf[i*4:], v)
		}
	case []float32:
		for i, v := range s {
			le.PutUint32(buf[i*4:], math.Float32bits(v))
		}
	case []int64:
		for i, v := range s {
			le.PutUint64(buf[i*8:], uint64(v))
		}
	case []uint64:
		for i, v := range s {
			le.PutUint64(buf[i*8:], v)
		}
	case []float64:
		for i, v := range s {
			le.PutUint64(buf[i*8:], math.Float64bits(v))
		}
	}
	return buf
}

// SetBytes decodes little-endian element data produced by Bytes.
func (a *Array) SetBytes(buf []byte) {
	le := binary.LittleEndian
	switch s := a.data.(type) {
	case []bool:
		for i := range s {
			s[i] = buf[i] != 0
		}
	case []int8:
		for i := range s {
			s[i] = int8(buf[i])
		}
	case []uint8:
		copy(s, buf)
	case []int16:
		for i := range s {
			s[i] = int16(le.Uint16(buf[i*2:]))
		}
	case []uint16:
		for i := range s {
			s[i] = le.Uint16(buf[i*2:])
		}
	case []int32:
		for i := range s {
			s[i] = int32(le.Uint32(buf[i*4:]))
		}
	case []uint32:
		for i := range s {
			s[i] = le.Uint32(buf[i*4:])
		}
	case []float32:
		for i := range s {
			s[i] = math.Float32frombits(le.Uint32(buf[i*4:]))
		}
	case []int64:
		for i := range s {
			s[i] = int64(le.Uint64(buf[i*8:]))
		}
	case []uint64:
		for i := range s {
			s[i] = le.Uint64(buf[i*8:])
		}
	case []float64:
		for i := range s {
			s[i] = math.Float64frombits(le.Uint64(buf[i*8:]))
		}
	}
}

// AllClose reports whether a and b have equal shapes and all elements within tol.
func AllClose(a, b *Array, tol float64) bool {
	if a.Rank() != b.Rank() {
		return false
	}
	for k := range a.shape {
		if a.shape[k] != b.shape[k] {
			return false
		}
	}
	for i := 0; i < a.Len(); i++ {
		x, y := a.FloatAt(i), b.FloatAt(i)
		if math.Abs(x-y) > tol*math.Max(1, math.Abs(y)) {
			return false
		}
	}
	return true
}

func (a *Array) String() string {
	return fmt.Sprintf("array(%v, shape=%v, %s)", a.data, a.shape, a.kind)
}
