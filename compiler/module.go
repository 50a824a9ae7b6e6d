package compiler

import (
	"github.com/wippyai/wasm-kernels/engine"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
	"github.com/wippyai/wasm-kernels/wasm"
)

// Names exported by every compiled module.
const (
	EntryExport  = "kernel"
	MemoryExport = "memory"
)

// arenaBase is the first address handed out for operands. Address 0 stays
// unused.
const arenaBase = 16

// builder lowers one kernel specialization and the specializations it calls
// into a single module.
type builder struct {
	mod      *wasm.Module
	funcs    map[string]uint32
	imports  map[string]uint32
	raise    uint32
	messages []string
	codes    map[string]int32
}

// lower builds the module for info. Every function takes the array ABI
// parameters of its kernel followed by the call depth.
func lower(info *typing.Info) (*wasm.Module, []string, error) {
	b := &builder{
		mod:     &wasm.Module{},
		funcs:   make(map[string]uint32),
		imports: make(map[string]uint32),
		codes:   make(map[string]int32),
	}
	b.raise = b.mod.AddImport(engine.HostModule, engine.RaiseImport,
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	for _, m := range kernel.HostMath() {
		ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValF64}}
		for range m.Arity {
			ft.Params = append(ft.Params, wasm.ValF64)
		}
		b.imports[m.Name] = b.mod.AddImport(engine.HostModule, m.Import(), ft)
	}

	closure := info.Closure()
	for _, fi := range closure {
		if err := check(fi); err != nil {
			return nil, nil, err
		}
	}
	for i, fi := range closure {
		b.funcs[fi.Key()] = uint32(len(b.mod.Imports) + i)
	}
	for _, fi := range closure {
		body, err := b.function(fi)
		if err != nil {
			return nil, nil, err
		}
		b.mod.AddFunc(funcType(fi), body)
	}

	b.mod.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	b.mod.Exports = []wasm.Export{
		{Name: EntryExport, Kind: wasm.KindFunc, Idx: b.funcs[info.Key()]},
		{Name: MemoryExport, Kind: wasm.KindMemory, Idx: 0},
	}
	return b.mod, b.messages, nil
}

// code returns the raise code of msg.
func (b *builder) code(msg string) int32 {
	if c, ok := b.codes[msg]; ok {
		return c
	}
	c := int32(len(b.messages))
	b.messages = append(b.messages, msg)
	b.codes[msg] = c
	return c
}

func funcType(info *typing.Info) wasm.FuncType {
	var ft wasm.FuncType
	for _, t := range info.Sig {
		ft.Params = append(ft.Params, paramTypes(t)...)
	}
	ft.Params = append(ft.Params, wasm.ValI32)
	if !info.Result.IsVoid() {
		ft.Results = []wasm.ValType{valType(info.Result.Kind)}
	}
	return ft
}

// paramTypes returns the ABI of one parameter: the value itself, or an
// array's base address followed by its dimensions.
func paramTypes(t types.Type) []wasm.ValType {
	if !t.IsArray() {
		return []wasm.ValType{valType(t.Kind)}
	}
	out := make([]wasm.ValType, 1+t.Rank)
	for i := range out {
		out[i] = wasm.ValI32
	}
	return out
}

func valType(k types.Kind) wasm.ValType {
	switch k.Default() {
	case types.Int64:
		return wasm.ValI64
	case types.Float32:
		return wasm.ValF32
	case types.Float64:
		return wasm.ValF64
	}
	return wasm.ValI32
}

// elemSize returns the size of an array element in linear memory.
func elemSize(k types.Kind) uint32 {
	if k == types.Bool {
		return 1
	}
	return uint32(k.Size())
}

func alignLog2(size uint32) uint32 {
	switch size {
	case 8:
		return 3
	case 4:
		return 2
	case 2:
		return 1
	}
	return 0
}

func loadOp(k types.Kind) byte {
	switch k {
	case types.Int64:
		return wasm.OpI64Load
	case types.Float32:
		return wasm.OpF32Load
	case types.Float64:
		return wasm.OpF64Load
	case types.Bool:
		return wasm.OpI32Load8U
	}
	return wasm.OpI32Load
}

func storeOp(k types.Kind) byte {
	switch k {
	case types.Int64:
		return wasm.OpI64Store
	case types.Float32:
		return wasm.OpF32Store
	case types.Float64:
		return wasm.OpF64Store
	case types.Bool:
		return wasm.OpI32Store8
	}
	return wasm.OpI32Store
}
