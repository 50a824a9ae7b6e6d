package native

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	wasmkernels "github.com/wippyai/wasm-kernels"
)

// byteMemory is a linear memory over a Go slice with a bump allocator.
type byteMemory struct {
	buf []byte
	top uint32
}

var (
	_ wasmkernels.Memory      = (*byteMemory)(nil)
	_ wasmkernels.MemorySizer = (*byteMemory)(nil)
	_ wasmkernels.Allocator   = (*byteMemory)(nil)
)

var errBounds = errors.New("out of bounds")

func (m *byteMemory) span(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.buf)) {
		return nil, errBounds
	}
	return m.buf[offset : offset+length], nil
}

func (m *byteMemory) Read(offset, length uint32) ([]byte, error) {
	b, err := m.span(offset, length)
	if err != nil {
		return nil, err
	}
	return slices.Clone(b), nil
}

func (m *byteMemory) Write(offset uint32, data []byte) error {
	b, err := m.span(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *byteMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *byteMemory) ReadU64(offset uint32) (uint64, error) {
	b, err := m.span(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *byteMemory) WriteU32(offset uint32, value uint32) error {
	b, err := m.span(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

func (m *byteMemory) WriteU64(offset uint32, value uint64) error {
	b, err := m.span(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, value)
	return nil
}

func (m *byteMemory) Size() uint32 { return uint32(len(m.buf)) }

func (m *byteMemory) Alloc(size, align uint32) (uint32, error) {
	addr := (m.top + align - 1) &^ (align - 1)
	m.top = addr + size
	return addr, nil
}

func (m *byteMemory) Reset() { m.top = 0 }

func TestSortInMemory(t *testing.T) {
	mem := &byteMemory{buf: make([]byte, 64), top: 3}
	cmp := func(a, b uint32) (int32, error) {
		x, _ := mem.ReadU32(a)
		y, _ := mem.ReadU32(b)
		return int32(x) - int32(y), nil
	}

	data := []int32{4, -3, 8, 0, -3}
	if err := sortInMemory(mem, mem, data, cmp); err != nil {
		t.Fatalf("sortInMemory: %v", err)
	}
	if !slices.Equal(data, []int32{-3, -3, 0, 4, 8}) {
		t.Errorf("sorted = %v", data)
	}
	if mem.top != 4+4*5 {
		t.Errorf("operand not aligned: top = %d", mem.top)
	}

	small := &byteMemory{buf: make([]byte, 8)}
	data = []int32{3, 2, 1}
	if err := sortInMemory(small, small, data, cmp); !errors.Is(err, errBounds) {
		t.Errorf("err = %v, want %v", err, errBounds)
	}
	if !slices.Equal(data, []int32{3, 2, 1}) {
		t.Errorf("data changed to %v", data)
	}

	failing := errors.New("comparator failed")
	mem.Reset()
	data = []int32{2, 1}
	err := sortInMemory(mem, mem, data, func(uint32, uint32) (int32, error) { return 0, failing })
	if !errors.Is(err, failing) {
		t.Errorf("err = %v, want %v", err, failing)
	}
}
