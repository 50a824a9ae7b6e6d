package wasmkernels

// Memory represents the linear memory of a compiled specialization.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates operand buffers in linear memory. Allocations live
// until Reset, which releases all of them at once.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Reset()
}
