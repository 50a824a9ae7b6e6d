package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wasmkernels "github.com/wippyai/wasm-kernels"
	"github.com/wippyai/wasm-kernels/wasm"
)

// Memory wraps wazero memory to implement wasmkernels.Memory
type Memory struct {
	mem api.Memory
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	ok := m.mem.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	ok := m.mem.WriteUint32Le(offset, value)
	if !ok {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	ok := m.mem.WriteUint64Le(offset, value)
	if !ok {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// grow ensures the memory holds at least n bytes.
func (m *Memory) grow(n uint64) error {
	size := uint64(m.mem.Size())
	if n <= size {
		return nil
	}
	pages := (n - size + wasm.PageSize - 1) / wasm.PageSize
	if _, ok := m.mem.Grow(uint32(pages)); !ok {
		return fmt.Errorf("grow memory by %d pages: limit exceeded", pages)
	}
	return nil
}

// Arena is a bump allocator over linear memory. Operands of one call are
// allocated from it and released together by Reset.
type Arena struct {
	mem  *Memory
	base uint32
	top  uint32
}

func newArena(mem *Memory, base uint32) *Arena {
	return &Arena{mem: mem, base: base, top: base}
}

func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	ptr := (uint64(a.top) + uint64(align) - 1) &^ (uint64(align) - 1)
	end := ptr + uint64(size)
	if end > 1<<32-1 {
		return 0, fmt.Errorf("alloc %d bytes: address space exhausted", size)
	}
	if err := a.mem.grow(end); err != nil {
		return 0, err
	}
	a.top = uint32(end)
	return uint32(ptr), nil
}

func (a *Arena) Reset() {
	a.top = a.base
}

// Used returns the number of bytes allocated since the last Reset.
func (a *Arena) Used() uint32 {
	return a.top - a.base
}

// Compile-time check that Memory implements wasmkernels.Memory and MemorySizer
var _ wasmkernels.Memory = (*Memory)(nil)
var _ wasmkernels.MemorySizer = (*Memory)(nil)

// Compile-time check that Arena implements wasmkernels.Allocator
var _ wasmkernels.Allocator = (*Arena)(nil)
