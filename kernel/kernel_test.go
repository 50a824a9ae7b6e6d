package kernel

import (
	"errors"
	"strings"
	"testing"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

const integrateSrc = `
import "math"

func f(x float64) float64 {
	y := (x*x*x - 3) * x
	return y
}

func integrate(a, b float64, n int) float64 {
	dx := (b - a) / float64(n)
	s := f(a) * dx / 2
	for i := 1; i < n; i++ {
		s += f(a+float64(i)*dx) * dx
	}
	return s + f(b)*dx/2 + 0*math.Pi
}

func add(x, y any) any {
	return x + y
}

func fill(out []float64, v float64) {
	for i := range out {
		out[i] = v
	}
}
`

func TestParse(t *testing.T) {
	lib, err := Parse(integrateSrc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if lib.Name() != DefaultPackage {
		t.Errorf("library name = %q", lib.Name())
	}

	names := []string{}
	for _, k := range lib.Kernels() {
		names = append(names, k.Name())
	}
	if strings.Join(names, ",") != "f,integrate,add,fill" {
		t.Errorf("kernels in wrong order: %v", names)
	}

	integrate, err := lib.Kernel("integrate")
	if err != nil {
		t.Fatalf("Kernel: %v", err)
	}
	sig, ok := integrate.Signature()
	if !ok {
		t.Fatal("integrate must have a declared signature")
	}
	if sig.String() != "(float64, float64, int64)" {
		t.Errorf("signature = %s", sig)
	}
	if integrate.Result() != types.Scalar(types.Float64) || !integrate.HasResult() {
		t.Errorf("result = %v", integrate.Result())
	}

	add, _ := lib.Kernel("add")
	if add.Declared() || !add.ResultInferred() || !add.HasResult() {
		t.Error("add must be lazy with an inferred result")
	}
	if add.String() != "add(x any, y any) any" {
		t.Errorf("String = %q", add.String())
	}

	fill, _ := lib.Kernel("fill")
	if fill.HasResult() {
		t.Error("fill returns nothing")
	}
	if fill.Param(0).Type != types.ArrayOf(types.Float64, 1) {
		t.Errorf("fill param = %v", fill.Param(0).Type)
	}
}

const bagSrc = `
func (b *Bag) increment(val float32) int32 {
	for i := range b.array {
		b.array[i] += val
	}
	return b.value
}

type Bag struct {
	value int32
	array []float32
}

func (b Bag) size() int { return len(b.array) }
`

func TestParse_Class(t *testing.T) {
	lib, err := Parse(bagSrc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bag, err := lib.Class("Bag")
	if err != nil {
		t.Fatalf("Class: %v", err)
	}
	fields := bag.Fields()
	if len(fields) != 2 || fields[0].Name != "value" || fields[1].Type != types.ArrayOf(types.Float32, 1) {
		t.Errorf("fields = %+v", fields)
	}
	if i, ok := bag.FieldIndex("array"); !ok || i != 1 {
		t.Errorf("FieldIndex(array) = %d, %v", i, ok)
	}

	inc, err := bag.Method("increment")
	if err != nil {
		t.Fatalf("Method: %v", err)
	}
	if inc.Name() != "Bag.increment" || inc.Class() != bag {
		t.Errorf("method kernel %s, class %v", inc.Name(), inc.Class())
	}
	sig, ok := inc.Signature()
	if !ok {
		t.Fatal("increment must have a declared signature")
	}
	want := types.Signature{types.Scalar(types.Int32), types.ArrayOf(types.Float32, 1), types.Scalar(types.Float32)}
	if !sig.Equal(want) {
		t.Errorf("signature = %s, want %s", sig, want)
	}
	if got := inc.Param(1).Name; got != "b.array" {
		t.Errorf("field parameter = %q", got)
	}
	if k, ok := lib.Lookup("Bag.size"); !ok || k.NumParams() != 2 {
		t.Errorf("Bag.size not registered as a kernel")
	}
	if len(bag.Methods()) != 2 || len(lib.Kernels()) != 2 {
		t.Errorf("methods = %d, kernels = %d", len(bag.Methods()), len(lib.Kernels()))
	}
	if _, err := bag.Method("grow"); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("unknown method err = %v", err)
	}
	if _, err := lib.Class("Box"); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("unknown class err = %v", err)
	}
}

func TestParse_ClassErrors(t *testing.T) {
	const bag = "type Bag struct {\n\tvalue int32\n\tarray []float32\n}\n"
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"not a struct", "type Bag int32", "must be a struct"},
		{"lazy field", "type Bag struct { x any }", "concrete"},
		{"embedded", "type Bag struct { Other }", "embedded"},
		{"duplicate field", "type Bag struct { x, x int32 }", "duplicate field"},
		{"unknown receiver", "func (b *Box) f() {}", "declared in the library"},
		{"scalar field write", bag + "func (b *Bag) set(v int32) { b.value = v }", "fields are set by the host"},
		{"field increment", bag + "func (b *Bag) bump() { b.value++ }", "fields are set by the host"},
		{"unknown field", bag + "func (b *Bag) f() int32 { return b.count }", "has no field count"},
		{"bare receiver", bag + "func (b *Bag) f() { g(b) }\nfunc g(x any) {}", "only be used to access fields"},
		{"method call", bag + "func (b *Bag) f() { b.g() }", "has no field g"},
		{"class and func", bag + "func Bag() {}", "redeclared"},
		{"method redeclared", bag + "func (b *Bag) f() {}\nfunc (b Bag) f() {}", "redeclared"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if !errors.Is(err, kerrors.ErrSyntax) {
				t.Fatalf("err = %v, want syntax error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_IDsAreUnique(t *testing.T) {
	a := MustParse("func k(x int) int { return x }")
	b := MustParse("func k(x int) int { return x }")
	ka, _ := a.Kernel("k")
	kb, _ := b.Kernel("k")
	if ka.ID() == kb.ID() {
		t.Error("kernels from different parses must have distinct IDs")
	}
}

func TestParse_WithPackageClause(t *testing.T) {
	lib, err := Parse("package numeric\n\nfunc sq(x float32) float32 { return x * x }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if lib.Name() != "numeric" {
		t.Errorf("name = %q", lib.Name())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", "func f(x int) int { return x + }", "expected operand"},
		{"verb in message", "func f(x int) int { return % x }", "found '%'"},
		{"dup", "func f() {}\nfunc f() {}", "redeclared"},
		{"import", `import "os"` + "\nfunc f() {}", "cannot import"},
		{"method", "func (r T) f() {}", "methods"},
		{"closure", "func f() { g := func() {}; _ = g }", "function literals"},
		{"goroutine", "func f() { go f() }", "concurrency"},
		{"switch", "func f(x int) { switch x {} }", "switch"},
		{"shift", "func f(x int) int { return x << 2 }", "shift"},
		{"selector", "func f(x any) any { return x.y }", "attribute access"},
		{"fixed array", "func f(x [3]float64) {}", "fixed-size"},
		{"string param", "func f(x string) {}", "unsupported parameter type"},
		{"named result", "func f() (r int) { return 1 }", "unnamed"},
		{"label", "func f() {\nL:\n\tfor {\n\t\tbreak L\n\t}\n}", "labels"},
		{"goto", "func f() { goto x }", "not supported"},
		{"const", "const c = 1\nfunc f() {}", "top level"},
		{"composite", "func f() { x := []int{1}; _ = x }", "unsupported syntax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, kerrors.ErrSyntax) {
				t.Errorf("expected syntax error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("func f(x int) int {\n\tgo f(x)\n\treturn x\n}")
	var kerr *kerrors.Error
	if !errors.As(err, &kerr) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if kerr.Pos != "kernels.go:2:2" {
		t.Errorf("Pos = %q", kerr.Pos)
	}
}

func TestLibrary_KernelNotFound(t *testing.T) {
	lib := MustParse("func f() {}")
	if _, err := lib.Kernel("g"); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHostMath(t *testing.T) {
	fns := HostMath()
	for i := 1; i < len(fns); i++ {
		if fns[i-1].Name >= fns[i].Name {
			t.Fatalf("HostMath not sorted at %d", i)
		}
	}
	for _, f := range fns {
		if f.Native {
			t.Errorf("%s is native", f.Name)
		}
		if (f.Arity == 1) != (f.F1 != nil) {
			t.Errorf("%s: arity %d does not match implementation", f.Name, f.Arity)
		}
	}
	if _, ok := LookupMath("Sqrt"); !ok {
		t.Error("Sqrt missing")
	}
	if v, ok := LookupMathConst("Pi"); !ok || v < 3.14 || v > 3.15 {
		t.Error("Pi missing")
	}
}
