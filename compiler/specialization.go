package compiler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/engine"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

// Specialization is a kernel compiled for one Type Signature. Calls are
// serialized; an instance interrupted by cancellation is replaced on the
// next call.
type Specialization struct {
	info     *typing.Info
	messages []string
	written  []int

	mu     sync.Mutex
	module *engine.Module
	inst   *engine.Instance
	closed bool
}

func newSpecialization(p *program, mod *engine.Module, inst *engine.Instance) *Specialization {
	s := &Specialization{info: p.info, messages: p.messages, module: mod, inst: inst}
	for i, param := range p.info.Kernel.Params() {
		if p.info.Written[param.Name] {
			s.written = append(s.written, i)
		}
	}
	return s
}

// Kernel returns the specialized kernel.
func (s *Specialization) Kernel() *kernel.Kernel { return s.info.Kernel }

// Signature returns the argument types the specialization accepts.
func (s *Specialization) Signature() types.Signature { return s.info.Sig }

// Result returns the result type, or types.Void.
func (s *Specialization) Result() types.Type { return s.info.Result }

// Info returns the inferred types the code was generated from.
func (s *Specialization) Info() *typing.Info { return s.info }

// Call runs the compiled code. The runtime types of args must produce the
// specialization's signature, else the error matches
// errors.ErrSignatureMismatch. Arrays are copied into linear memory and
// arrays the kernel writes are copied back, also when the kernel raises.
func (s *Specialization) Call(ctx context.Context, args ...any) (any, error) {
	name := s.info.Kernel.Name()
	sig, err := typing.CallSignature(s.info.Kernel, args)
	if err != nil {
		return nil, err
	}
	if !sig.Equal(s.info.Sig) {
		return nil, kerrors.SignatureMismatch(name, s.info.Sig.String(), sig.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kerrors.New(kerrors.PhaseInvoke, kerrors.KindInvalidInput).
			Kernel(name).
			Signature(sig.String()).
			Detail("specialization is closed").
			Build()
	}
	if err := s.ensureInstance(ctx); err != nil {
		return nil, err
	}

	params, addrs, err := s.marshal(args)
	if err != nil {
		return nil, err
	}
	fn, err := s.inst.Function(EntryExport)
	if err != nil {
		return nil, err
	}
	res, callErr := s.inst.Call(ctx, fn, params...)
	if !s.inst.Closed() {
		if err := s.copyBack(args, addrs); err != nil && callErr == nil {
			callErr = err
		}
	}
	if callErr != nil {
		return nil, s.callError(callErr)
	}
	if s.info.Result.IsVoid() {
		return nil, nil
	}
	return decode(res[0], s.info.Result.Kind), nil
}

func (s *Specialization) ensureInstance(ctx context.Context) error {
	if s.inst != nil && !s.inst.Closed() {
		return nil
	}
	if s.inst != nil {
		_ = s.inst.Close(ctx)
	}
	inst, err := s.module.Instantiate(ctx)
	if err != nil {
		s.inst = nil
		return kerrors.New(kerrors.PhaseLoad, kerrors.KindInstantiation).
			Kernel(s.info.Kernel.Name()).
			Signature(s.info.Sig.String()).
			Cause(err).
			Build()
	}
	s.inst = inst
	return nil
}

// marshal encodes the arguments. An array passed more than once is copied
// once, so writes through either parameter are visible through the other.
func (s *Specialization) marshal(args []any) ([]uint64, []uint32, error) {
	arena := s.inst.Arena(arenaBase)
	arena.Reset()
	mem := s.inst.Memory()

	params := make([]uint64, 0, len(args)+1)
	addrs := make([]uint32, len(args))
	seen := make(map[*array.Array]uint32)
	for i, arg := range args {
		t := s.info.Sig[i]
		if !t.IsArray() {
			bits, f, from, _ := types.Unpack(arg)
			bits, f = types.Convert(bits, f, from, t.Kind)
			params = append(params, encode(bits, f, t.Kind))
			continue
		}

		a := arg.(*array.Array)
		addr, ok := seen[a]
		if !ok {
			size := a.ByteLen()
			if uint64(size) > 1<<32-1-arenaBase {
				return nil, nil, kerrors.InvalidInput(kerrors.PhaseInvoke,
					fmt.Sprintf("argument %d: %d bytes do not fit linear memory", i, size))
			}
			var err error
			addr, err = arena.Alloc(uint32(size), elemSize(t.Kind))
			if err != nil {
				return nil, nil, kerrors.Wrap(kerrors.PhaseInvoke, kerrors.KindInvalidInput, err,
					fmt.Sprintf("argument %d", i))
			}
			if err := mem.Write(addr, a.Bytes()); err != nil {
				return nil, nil, kerrors.Wrap(kerrors.PhaseInvoke, kerrors.KindRuntime, err, "copy argument")
			}
			seen[a] = addr
		}
		addrs[i] = addr
		params = append(params, uint64(addr))
		for _, d := range a.Shape() {
			params = append(params, uint64(uint32(d)))
		}
	}
	params = append(params, 0)
	return params, addrs, nil
}

func (s *Specialization) copyBack(args []any, addrs []uint32) error {
	mem := s.inst.Memory()
	for _, i := range s.written {
		a := args[i].(*array.Array)
		buf, err := mem.Read(addrs[i], uint32(a.ByteLen()))
		if err != nil {
			return kerrors.Wrap(kerrors.PhaseInvoke, kerrors.KindRuntime, err, "copy back argument")
		}
		a.SetBytes(buf)
	}
	return nil
}

// callError turns a trap into the error the interpreter would report.
func (s *Specialization) callError(err error) error {
	var trap *engine.Trap
	if !errors.As(err, &trap) {
		return err
	}
	name := s.info.Kernel.Name()
	switch {
	case trap.Code >= 0 && int(trap.Code) < len(s.messages):
		return &kerrors.RaiseError{Kernel: name, Message: s.messages[trap.Code]}
	case trap.Message != "":
		return &kerrors.RaiseError{Kernel: name, Message: trap.Message}
	}
	return kerrors.New(kerrors.PhaseInvoke, kerrors.KindRuntime).
		Kernel(name).
		Signature(s.info.Sig.String()).
		Cause(err).
		Build()
}

// Close releases the compiled code. Later calls fail.
func (s *Specialization) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.inst != nil {
		err = s.inst.Close(ctx)
		s.inst = nil
	}
	if cerr := s.module.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

func encode(bits int64, f float64, k types.Kind) uint64 {
	switch k.Default() {
	case types.Int64:
		return api.EncodeI64(bits)
	case types.Float32:
		return api.EncodeF32(float32(f))
	case types.Float64:
		return api.EncodeF64(f)
	}
	return api.EncodeI32(int32(bits))
}

func decode(raw uint64, k types.Kind) any {
	switch k.Default() {
	case types.Int64:
		return types.Pack(int64(raw), 0, k)
	case types.Float32:
		return types.Pack(0, float64(api.DecodeF32(raw)), k)
	case types.Float64:
		return types.Pack(0, api.DecodeF64(raw), k)
	}
	return types.Pack(int64(api.DecodeI32(raw)), 0, k)
}
