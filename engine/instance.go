package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	kerrors "github.com/wippyai/wasm-kernels/errors"
)

// Trap is a call that stopped abnormally inside WebAssembly code.
//
// Code is the argument of the last raise host call made during the call, or
// -1 if the trap came from an instruction. Message is set for instruction
// traps that correspond to a kernel runtime error.
type Trap struct {
	Cause   error
	Message string
	Code    int32
}

func (t *Trap) Error() string {
	if t.Code >= 0 {
		return fmt.Sprintf("raise %d", t.Code)
	}
	if t.Message != "" {
		return t.Message
	}
	return t.Cause.Error()
}

func (t *Trap) Unwrap() error { return t.Cause }

// trapMessages maps wazero runtime error text to kernel runtime errors.
var trapMessages = []struct {
	text, msg string
}{
	{"integer divide by zero", kerrors.MsgDivideByZero},
	{"integer overflow", kerrors.MsgIntegerOverflow},
	{"out of bounds memory access", kerrors.MsgIndexOutOfRange},
	{"stack overflow", kerrors.MsgStackOverflow},
}

// Instance is an instantiated module. It is not safe for concurrent calls;
// callers serialize access.
type Instance struct {
	module api.Module
	memory *Memory
	arena  *Arena
	funcs  map[string]api.Function
}

// Function returns an exported function.
func (i *Instance) Function(name string) (api.Function, error) {
	if fn, ok := i.funcs[name]; ok {
		return fn, nil
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, kerrors.NotFound(kerrors.PhaseLoad, "export", name)
	}
	if i.funcs == nil {
		i.funcs = make(map[string]api.Function)
	}
	i.funcs[name] = fn
	return fn, nil
}

// Memory returns the exported linear memory, or nil.
func (i *Instance) Memory() *Memory { return i.memory }

// Arena returns the operand allocator of the instance. Allocation starts
// at base, which must leave room for any static data of the module.
func (i *Instance) Arena(base uint32) *Arena {
	if i.arena == nil && i.memory != nil {
		i.arena = newArena(i.memory, base)
	}
	return i.arena
}

// Closed reports whether the instance was closed, including by wazero
// after the call context was done.
func (i *Instance) Closed() bool {
	return i.module == nil || i.module.IsClosed()
}

// Call invokes fn with raw WebAssembly values. Traps come back as *Trap;
// cancellation comes back as the context's error.
func (i *Instance) Call(ctx context.Context, fn api.Function, params ...uint64) ([]uint64, error) {
	slot := &raiseSlot{}
	res, err := fn.Call(withRaiseSlot(ctx, slot), params...)
	if err == nil {
		return res, nil
	}

	var exit *sys.ExitError
	if errors.As(err, &exit) && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if slot.raised {
		return nil, &Trap{Code: slot.code, Cause: err}
	}
	text := err.Error()
	for _, tm := range trapMessages {
		if strings.Contains(text, tm.text) {
			return nil, &Trap{Code: -1, Message: tm.msg, Cause: err}
		}
	}
	return nil, &Trap{Code: -1, Cause: err}
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	err := i.module.Close(ctx)
	i.module = nil
	i.memory = nil
	i.arena = nil
	i.funcs = nil
	return err
}
