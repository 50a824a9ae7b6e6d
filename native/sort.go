package native

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/tetratelabs/wazero/api"

	wasmkernels "github.com/wippyai/wasm-kernels"
	"github.com/wippyai/wasm-kernels/compiler"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
)

// Comparator is a kernel with the contract int32(int32[:], int32[:]). It
// receives one-element views of the two values being compared and returns
// a negative, zero or positive result.
type Comparator struct {
	spec *compiler.Specialization
}

// NewComparator compiles k as a comparator.
func NewComparator(ctx context.Context, cache *jit.Cache, k *kernel.Kernel) (*Comparator, error) {
	s, err := bind(ctx, cache, k, ComparatorContract)
	if err != nil {
		return nil, err
	}
	return &Comparator{spec: s}, nil
}

// Sort sorts data in place. The values are copied into linear memory once
// and the comparator is called with the addresses of the two elements, each
// viewed as an array of length 1. An error raised by the comparator stops
// the sort and leaves data unchanged.
func Sort(ctx context.Context, data []int32, cmp *Comparator) error {
	if len(data) < 2 {
		return nil
	}
	return cmp.spec.Session(ctx, func(ss *compiler.Session) error {
		mem := ss.Memory()
		if mem == nil {
			return kerrors.New(kerrors.PhaseNative, kerrors.KindRuntime).
				Detail("comparator exports no memory").
				Build()
		}
		return sortInMemory(mem, ss, data, func(a, b uint32) (int32, error) {
			res, err := ss.Call(uint64(a), 1, uint64(b), 1)
			return api.DecodeI32(res), err
		})
	})
}

// sortInMemory copies data into memory obtained from alloc, sorts it there
// with cmp over element addresses and copies the result back.
func sortInMemory(mem wasmkernels.Memory, alloc wasmkernels.Allocator, data []int32, cmp func(a, b uint32) (int32, error)) error {
	size := uint32(4 * len(data))
	base, err := alloc.Alloc(size, 4)
	if err != nil {
		return err
	}
	buf := make([]byte, size)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	if err := mem.Write(base, buf); err != nil {
		return kerrors.Wrap(kerrors.PhaseNative, kerrors.KindRuntime, err, "copy sort operand")
	}

	s := &memSorter{mem: mem, cmp: cmp, base: base, n: len(data)}
	sort.Sort(s)
	if s.err != nil {
		return s.err
	}

	out, err := mem.Read(base, size)
	if err != nil {
		return kerrors.Wrap(kerrors.PhaseNative, kerrors.KindRuntime, err, "copy back sort operand")
	}
	for i := range data {
		data[i] = int32(binary.LittleEndian.Uint32(out[4*i:]))
	}
	return nil
}

// memSorter sorts int32 values held in linear memory. After the first
// error every comparison reports false so the sort finishes quickly.
type memSorter struct {
	mem  wasmkernels.Memory
	cmp  func(a, b uint32) (int32, error)
	base uint32
	n    int
	err  error
}

func (s *memSorter) Len() int { return s.n }

func (s *memSorter) addr(i int) uint32 { return s.base + uint32(4*i) }

func (s *memSorter) Less(i, j int) bool {
	if s.err != nil {
		return false
	}
	res, err := s.cmp(s.addr(i), s.addr(j))
	if err != nil {
		s.err = err
		return false
	}
	return res < 0
}

func (s *memSorter) Swap(i, j int) {
	if s.err != nil {
		return
	}
	a, err := s.mem.ReadU32(s.addr(i))
	if err != nil {
		s.err = err
		return
	}
	b, err := s.mem.ReadU32(s.addr(j))
	if err != nil {
		s.err = err
		return
	}
	if err := s.mem.WriteU32(s.addr(i), b); err != nil {
		s.err = err
		return
	}
	if err := s.mem.WriteU32(s.addr(j), a); err != nil {
		s.err = err
	}
}
