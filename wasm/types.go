package wasm

// Module is a WebAssembly module under construction. Function indices count
// imported functions first, then Funcs in order.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Code     []FuncBody
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether f and o have the same params and results.
func (f FuncType) Equal(o FuncType) bool {
	return equalVals(f.Params, o.Params) && equalVals(f.Results, o.Results)
}

func equalVals(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Import is an imported function.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
}

// Export exports a function, memory or global by index.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Limits bounds a memory in pages.
type Limits struct {
	Max *uint32
	Min uint32
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// Global is a module global with a constant initializer.
type Global struct {
	Init    []byte // Init is a constant expression including its end opcode.
	Type    ValType
	Mutable bool
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is a function's declared locals and its instruction bytes, which
// must end with OpEnd.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// AddType returns the index of ft, adding it if needed.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// AddImport imports a function and returns its function index. Imports must
// be added before any function is declared.
func (m *Module) AddImport(module, name string, ft FuncType) uint32 {
	m.Imports = append(m.Imports, Import{Module: module, Name: name, TypeIdx: m.AddType(ft)})
	return uint32(len(m.Imports) - 1)
}

// AddFunc declares a function and returns its function index.
func (m *Module) AddFunc(ft FuncType, body FuncBody) uint32 {
	m.Funcs = append(m.Funcs, m.AddType(ft))
	m.Code = append(m.Code, body)
	return uint32(len(m.Imports) + len(m.Funcs) - 1)
}
