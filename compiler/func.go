package compiler

import (
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
	"github.com/wippyai/wasm-kernels/wasm"
)

// view is an array in linear memory: a local holding its base address and
// the locals holding its dimensions.
type view struct {
	kind types.Kind
	base uint32
	dims []uint32
}

type loopLabels struct {
	brk, cont wasm.Label
}

// fn holds the lowering state of one function.
type fn struct {
	b    *builder
	info *typing.Info
	code *wasm.Code

	nparams uint32
	locals  []wasm.ValType
	vars    map[string]uint32
	arrays  map[string]view
	depth   uint32
	free    map[wasm.ValType][]uint32
	loops   []loopLabels
}

func (b *builder) function(info *typing.Info) (wasm.FuncBody, error) {
	f := &fn{
		b:      b,
		info:   info,
		code:   wasm.NewCode(),
		vars:   make(map[string]uint32),
		arrays: make(map[string]view),
		free:   make(map[wasm.ValType][]uint32),
	}

	for i, p := range info.Kernel.Params() {
		t := info.Sig[i]
		if !t.IsArray() {
			f.vars[p.Name] = f.nparams
			f.nparams++
			continue
		}
		v := view{kind: t.Kind, base: f.nparams, dims: make([]uint32, t.Rank)}
		for d := range v.dims {
			v.dims[d] = f.nparams + 1 + uint32(d)
		}
		f.arrays[p.Name] = v
		f.nparams += uint32(1 + t.Rank)
	}
	f.depth = f.nparams
	f.nparams++

	for _, name := range info.LocalNames()[info.Kernel.NumParams():] {
		f.vars[name] = f.local(valType(info.Locals[name].Kind))
	}

	f.code.LocalGet(f.depth)
	f.code.I32Const(kernel.MaxCallDepth)
	f.code.Op(wasm.OpI32GtS)
	f.code.If(wasm.BlockVoid)
	f.raise(kerrors.MsgStackOverflow)
	f.code.End()

	if err := f.stmts(info.Kernel.Decl().Body.List); err != nil {
		return wasm.FuncBody{}, err
	}
	if !info.Result.IsVoid() {
		f.zero(info.Result.Kind)
	}
	f.code.End()

	return wasm.FuncBody{Locals: f.localEntries(), Code: f.code.Bytes()}, nil
}

// local declares a new local.
func (f *fn) local(t wasm.ValType) uint32 {
	f.locals = append(f.locals, t)
	return f.nparams + uint32(len(f.locals)-1)
}

// temp returns a scratch local of type t. Release it when done.
func (f *fn) temp(t wasm.ValType) uint32 {
	if list := f.free[t]; len(list) > 0 {
		idx := list[len(list)-1]
		f.free[t] = list[:len(list)-1]
		return idx
	}
	return f.local(t)
}

func (f *fn) release(t wasm.ValType, idx uint32) {
	f.free[t] = append(f.free[t], idx)
}

func (f *fn) localEntries() []wasm.LocalEntry {
	var out []wasm.LocalEntry
	for _, t := range f.locals {
		if n := len(out); n > 0 && out[n-1].ValType == t {
			out[n-1].Count++
			continue
		}
		out = append(out, wasm.LocalEntry{Count: 1, ValType: t})
	}
	return out
}

// raise reports msg to the host and traps.
func (f *fn) raise(msg string) {
	f.code.I32Const(f.b.code(msg))
	f.code.Call(f.b.raise)
	f.code.Op(wasm.OpUnreachable)
}

func (f *fn) zero(k types.Kind) {
	switch valType(k) {
	case wasm.ValI64:
		f.code.I64Const(0)
	case wasm.ValF32:
		f.code.F32Const(0)
	case wasm.ValF64:
		f.code.F64Const(0)
	default:
		f.code.I32Const(0)
	}
}

func (f *fn) one(k types.Kind) {
	switch valType(k) {
	case wasm.ValI64:
		f.code.I64Const(1)
	case wasm.ValF32:
		f.code.F32Const(1)
	case wasm.ValF64:
		f.code.F64Const(1)
	default:
		f.code.I32Const(1)
	}
}

// convert converts the value on top of the stack from kind from to kind to
// with the wrapping and saturating rules of the interpreter.
func (f *fn) convert(from, to types.Kind) {
	from, to = from.Default(), to.Default()
	if from == to || from == types.Bool || to == types.Bool {
		return
	}
	c := f.code
	switch from {
	case types.Int32:
		switch to {
		case types.Int64:
			c.Op(wasm.OpI64ExtendI32S)
		case types.Float32:
			c.Op(wasm.OpF32ConvertI32S)
		case types.Float64:
			c.Op(wasm.OpF64ConvertI32S)
		}
	case types.Int64:
		switch to {
		case types.Int32:
			c.Op(wasm.OpI32WrapI64)
		case types.Float32:
			c.Op(wasm.OpF32ConvertI64S)
		case types.Float64:
			c.Op(wasm.OpF64ConvertI64S)
		}
	case types.Float32:
		switch to {
		case types.Int32:
			c.Misc(wasm.MiscI32TruncSatF32S)
		case types.Int64:
			c.Misc(wasm.MiscI64TruncSatF32S)
		case types.Float64:
			c.Op(wasm.OpF64PromoteF32)
		}
	case types.Float64:
		switch to {
		case types.Int32:
			c.Misc(wasm.MiscI32TruncSatF64S)
		case types.Int64:
			c.Misc(wasm.MiscI64TruncSatF64S)
		case types.Float32:
			c.Op(wasm.OpF32DemoteF64)
		}
	}
}
