package compiler

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	wasmkernels "github.com/wippyai/wasm-kernels"
	kerrors "github.com/wippyai/wasm-kernels/errors"
)

// Session is exclusive access to the instance of a specialization through
// the raw calling convention, for host routines that keep operands in
// linear memory across many calls.
type Session struct {
	ctx   context.Context
	s     *Specialization
	fn    api.Function
	arena wasmkernels.Allocator
}

// Session runs fn with the specialization locked. Memory allocated through
// the session is released when fn returns.
func (s *Specialization) Session(ctx context.Context, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.New(kerrors.PhaseInvoke, kerrors.KindInvalidInput).
			Kernel(s.info.Kernel.Name()).
			Signature(s.info.Sig.String()).
			Detail("specialization is closed").
			Build()
	}
	if err := s.ensureInstance(ctx); err != nil {
		return err
	}
	entry, err := s.inst.Function(EntryExport)
	if err != nil {
		return err
	}
	arena := s.inst.Arena(arenaBase)
	arena.Reset()
	defer arena.Reset()
	return fn(&Session{ctx: ctx, s: s, fn: entry, arena: arena})
}

// Alloc reserves size bytes of linear memory.
func (ss *Session) Alloc(size, align uint32) (uint32, error) {
	addr, err := ss.arena.Alloc(size, align)
	if err != nil {
		return 0, kerrors.Wrap(kerrors.PhaseInvoke, kerrors.KindInvalidInput, err, "session alloc")
	}
	return addr, nil
}

// Reset releases everything allocated through the session.
func (ss *Session) Reset() { ss.arena.Reset() }

// Memory returns the linear memory of the instance, or nil if the module
// exports none.
func (ss *Session) Memory() wasmkernels.Memory {
	if mem := ss.s.inst.Memory(); mem != nil {
		return mem
	}
	return nil
}

// Call invokes the entry with raw values, without the trailing call depth.
// It returns the raw result, or 0 for kernels without one. Traps become the
// errors Specialization.Call reports.
func (ss *Session) Call(params ...uint64) (uint64, error) {
	if ss.s.inst == nil || ss.s.inst.Closed() {
		return 0, kerrors.New(kerrors.PhaseInvoke, kerrors.KindRuntime).
			Kernel(ss.s.info.Kernel.Name()).
			Detail("instance closed during session").
			Build()
	}
	res, err := ss.s.inst.Call(ss.ctx, ss.fn, append(params, 0)...)
	if err != nil {
		return 0, ss.s.callError(err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

var _ wasmkernels.Allocator = (*Session)(nil)
