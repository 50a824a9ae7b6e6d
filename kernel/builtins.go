package kernel

import (
	"math"
	"sort"

	"github.com/wippyai/wasm-kernels/types"
)

// MathFunc is a function of the math package callable from kernels.
// Functions without a WebAssembly instruction are imported from the host.
type MathFunc struct {
	F1     func(float64) float64
	F2     func(float64, float64) float64
	Name   string
	Arity  int
	Native bool
}

// Import returns the host import name of a non-native function.
func (f MathFunc) Import() string { return "math_" + f.Name }

var mathFuncs = map[string]MathFunc{
	"Sqrt":     {Name: "Sqrt", Arity: 1, Native: true, F1: math.Sqrt},
	"Abs":      {Name: "Abs", Arity: 1, Native: true, F1: math.Abs},
	"Floor":    {Name: "Floor", Arity: 1, Native: true, F1: math.Floor},
	"Ceil":     {Name: "Ceil", Arity: 1, Native: true, F1: math.Ceil},
	"Trunc":    {Name: "Trunc", Arity: 1, Native: true, F1: math.Trunc},
	"Min":      {Name: "Min", Arity: 2, Native: true, F2: math.Min},
	"Max":      {Name: "Max", Arity: 2, Native: true, F2: math.Max},
	"Copysign": {Name: "Copysign", Arity: 2, Native: true, F2: math.Copysign},

	"Exp":   {Name: "Exp", Arity: 1, F1: math.Exp},
	"Exp2":  {Name: "Exp2", Arity: 1, F1: math.Exp2},
	"Expm1": {Name: "Expm1", Arity: 1, F1: math.Expm1},
	"Log":   {Name: "Log", Arity: 1, F1: math.Log},
	"Log2":  {Name: "Log2", Arity: 1, F1: math.Log2},
	"Log10": {Name: "Log10", Arity: 1, F1: math.Log10},
	"Log1p": {Name: "Log1p", Arity: 1, F1: math.Log1p},
	"Sin":   {Name: "Sin", Arity: 1, F1: math.Sin},
	"Cos":   {Name: "Cos", Arity: 1, F1: math.Cos},
	"Tan":   {Name: "Tan", Arity: 1, F1: math.Tan},
	"Asin":  {Name: "Asin", Arity: 1, F1: math.Asin},
	"Acos":  {Name: "Acos", Arity: 1, F1: math.Acos},
	"Atan":  {Name: "Atan", Arity: 1, F1: math.Atan},
	"Sinh":  {Name: "Sinh", Arity: 1, F1: math.Sinh},
	"Cosh":  {Name: "Cosh", Arity: 1, F1: math.Cosh},
	"Tanh":  {Name: "Tanh", Arity: 1, F1: math.Tanh},
	"Cbrt":  {Name: "Cbrt", Arity: 1, F1: math.Cbrt},
	"Round": {Name: "Round", Arity: 1, F1: math.Round},
	"Atan2": {Name: "Atan2", Arity: 2, F2: math.Atan2},
	"Pow":   {Name: "Pow", Arity: 2, F2: math.Pow},
	"Hypot": {Name: "Hypot", Arity: 2, F2: math.Hypot},
	"Mod":   {Name: "Mod", Arity: 2, F2: math.Mod},
}

var mathConsts = map[string]float64{
	"Pi":                     math.Pi,
	"E":                      math.E,
	"Phi":                    math.Phi,
	"Sqrt2":                  math.Sqrt2,
	"SqrtE":                  math.SqrtE,
	"SqrtPi":                 math.SqrtPi,
	"Ln2":                    math.Ln2,
	"Log2E":                  math.Log2E,
	"Ln10":                   math.Ln10,
	"Log10E":                 math.Log10E,
	"MaxFloat64":             math.MaxFloat64,
	"SmallestNonzeroFloat64": math.SmallestNonzeroFloat64,
	"MaxFloat32":             math.MaxFloat32,
}

// LookupMath returns the math function with the given name.
func LookupMath(name string) (MathFunc, bool) {
	f, ok := mathFuncs[name]
	return f, ok
}

// LookupMathConst returns the value of a math package constant.
func LookupMathConst(name string) (float64, bool) {
	v, ok := mathConsts[name]
	return v, ok
}

// HostMath returns the math functions that need a host import, sorted by name.
// The order fixes the import indices of compiled modules.
func HostMath() []MathFunc {
	out := make([]MathFunc, 0, len(mathFuncs))
	for _, f := range mathFuncs {
		if !f.Native {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ConversionKind resolves a Go type name used as a conversion, e.g. float64(x).
func ConversionKind(name string) (types.Kind, bool) {
	switch name {
	case "bool":
		return types.Bool, true
	case "int8":
		return types.Int8, true
	case "int16":
		return types.Int16, true
	case "int32", "rune":
		return types.Int32, true
	case "int", "int64":
		return types.Int64, true
	case "uint8", "byte":
		return types.Uint8, true
	case "uint16":
		return types.Uint16, true
	case "uint32":
		return types.Uint32, true
	case "uint", "uint64":
		return types.Uint64, true
	case "float32":
		return types.Float32, true
	case "float64":
		return types.Float64, true
	}
	return types.Invalid, false
}

// Builtin names a predeclared function available to kernels.
type Builtin string

const (
	BuiltinLen     Builtin = "len"
	BuiltinMin     Builtin = "min"
	BuiltinMax     Builtin = "max"
	BuiltinPanic   Builtin = "panic"
	BuiltinPrint   Builtin = "print"
	BuiltinPrintln Builtin = "println"
)

// LookupBuiltin reports whether name is a predeclared function.
func LookupBuiltin(name string) (Builtin, bool) {
	switch b := Builtin(name); b {
	case BuiltinLen, BuiltinMin, BuiltinMax, BuiltinPanic, BuiltinPrint, BuiltinPrintln:
		return b, true
	}
	return "", false
}
