package kernel

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"
	"strings"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

// DefaultPackage names libraries whose source has no package clause.
const DefaultPackage = "kernels"

// Parse parses kernel source. The package clause is optional.
func Parse(src string) (*Library, error) {
	return ParseFile("kernels.go", src)
}

// MustParse is Parse that panics on error. For sources known to be valid.
func MustParse(src string) *Library {
	lib, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return lib
}

// ParseFile parses kernel source and reports positions relative to filename.
func ParseFile(filename, src string) (*Library, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil && missingPackage(err) {
		// Same line keeps positions intact.
		fset = token.NewFileSet()
		file, err = parser.ParseFile(fset, filename, "package "+DefaultPackage+"; "+src, parser.SkipObjectResolution)
	}
	if err != nil {
		return nil, syntaxError(err)
	}

	lib := &Library{
		fset:    fset,
		kernels: make(map[string]*Kernel),
		classes: make(map[string]*Class),
		name:    file.Name.Name,
	}
	// Types first; methods may precede their receiver's declaration.
	for _, decl := range file.Decls {
		if d, ok := decl.(*ast.GenDecl); ok {
			if err := lib.checkGenDecl(d); err != nil {
				return nil, err
			}
		}
	}
	for _, decl := range file.Decls {
		d, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		var (
			k   *Kernel
			err error
		)
		if d.Recv != nil {
			k, err = lib.newMethod(d)
		} else {
			if _, clash := lib.classes[d.Name.Name]; clash {
				return nil, kerrors.Syntax(lib.Position(d.Pos()), fmt.Sprintf("%s redeclared", d.Name.Name))
			}
			k, err = lib.newKernel(d)
		}
		if err != nil {
			return nil, err
		}
		if _, dup := lib.kernels[k.name]; dup {
			return nil, kerrors.Syntax(lib.Position(d.Pos()), fmt.Sprintf("kernel %s redeclared", k.name))
		}
		lib.kernels[k.name] = k
		lib.order = append(lib.order, k)
	}
	return lib, nil
}

func missingPackage(err error) bool {
	el, ok := err.(scanner.ErrorList)
	return ok && len(el) > 0 && strings.Contains(el[0].Msg, "expected 'package'")
}

func syntaxError(err error) error {
	if el, ok := err.(scanner.ErrorList); ok && len(el) > 0 {
		return kerrors.New(kerrors.PhaseParse, kerrors.KindSyntax).
			Pos(el[0].Pos.String()).
			Detail("%s", el[0].Msg).
			Cause(err).
			Build()
	}
	return kerrors.Wrap(kerrors.PhaseParse, kerrors.KindSyntax, err, "parse kernel source")
}

func (l *Library) checkGenDecl(d *ast.GenDecl) error {
	switch d.Tok {
	case token.IMPORT:
		return l.checkImport(d)
	case token.TYPE:
		return l.checkTypes(d)
	}
	return kerrors.Syntax(l.Position(d.Pos()), "only func declarations, struct types and imports are allowed at top level")
}

func (l *Library) checkImport(d *ast.GenDecl) error {
	for _, spec := range d.Specs {
		imp := spec.(*ast.ImportSpec)
		path, _ := strconv.Unquote(imp.Path.Value)
		if path != "math" || imp.Name != nil {
			return kerrors.Syntax(l.Position(imp.Pos()), fmt.Sprintf("cannot import %s", imp.Path.Value))
		}
	}
	return nil
}

func (l *Library) newKernel(d *ast.FuncDecl) (*Kernel, error) {
	if d.Recv != nil {
		return nil, kerrors.Syntax(l.Position(d.Pos()), "methods are not supported")
	}
	if d.Type.TypeParams != nil {
		return nil, kerrors.Syntax(l.Position(d.Pos()), "type parameters are not supported")
	}
	if d.Body == nil {
		return nil, kerrors.Syntax(l.Position(d.Pos()), fmt.Sprintf("kernel %s has no body", d.Name.Name))
	}

	k := &Kernel{
		id:   nextID.Add(1),
		lib:  l,
		decl: d,
		name: d.Name.Name,
	}

	seen := make(map[string]bool)
	for _, field := range d.Type.Params.List {
		t, lazy, err := l.paramType(field.Type)
		if err != nil {
			return nil, err
		}
		if len(field.Names) == 0 {
			return nil, kerrors.Syntax(l.Position(field.Pos()), "unnamed parameter")
		}
		for _, n := range field.Names {
			if seen[n.Name] {
				return nil, kerrors.Syntax(l.Position(n.Pos()), fmt.Sprintf("duplicate parameter %s", n.Name))
			}
			seen[n.Name] = true
			k.params = append(k.params, Param{Name: n.Name, Type: t, Lazy: lazy})
		}
	}

	if res := d.Type.Results; res != nil && len(res.List) > 0 {
		if len(res.List) > 1 || len(res.List[0].Names) > 0 {
			return nil, kerrors.Syntax(l.Position(res.Pos()), "kernels return at most one unnamed value")
		}
		t, lazy, err := l.paramType(res.List[0].Type)
		if err != nil {
			return nil, err
		}
		k.result, k.lazyResult = t, lazy
	}

	if err := l.validate(d.Body); err != nil {
		return nil, err
	}
	return k, nil
}

// paramType resolves a parameter or result type expression.
func (l *Library) paramType(e ast.Expr) (t types.Type, lazy bool, err error) {
	switch x := e.(type) {
	case *ast.Ident:
		if x.Name == "any" {
			return types.Void, true, nil
		}
		if k, ok := ConversionKind(x.Name); ok {
			return types.Scalar(k), false, nil
		}
	case *ast.InterfaceType:
		if len(x.Methods.List) == 0 {
			return types.Void, true, nil
		}
	case *ast.ArrayType:
		if x.Len != nil {
			return types.Void, false, kerrors.Syntax(l.Position(x.Pos()), "fixed-size arrays are not supported, use slices")
		}
		elem, lazy, err := l.paramType(x.Elt)
		if err != nil {
			return types.Void, false, err
		}
		if lazy {
			return types.Void, false, kerrors.Syntax(l.Position(x.Pos()), "slice element type must be concrete")
		}
		return types.ArrayOf(elem.Kind, elem.Rank+1), false, nil
	}
	return types.Void, false, kerrors.Syntax(l.Position(e.Pos()), fmt.Sprintf("unsupported parameter type %s", exprString(e)))
}

// validate rejects syntax outside the kernel subset.
func (l *Library) validate(body *ast.BlockStmt) error {
	var err error
	fail := func(n ast.Node, format string, args ...any) bool {
		if err == nil {
			err = kerrors.Syntax(l.Position(n.Pos()), fmt.Sprintf(format, args...))
		}
		return false
	}

	ast.Inspect(body, func(n ast.Node) bool {
		if err != nil || n == nil {
			return false
		}
		switch x := n.(type) {
		case *ast.BlockStmt, *ast.ExprStmt, *ast.IfStmt, *ast.ForStmt, *ast.ReturnStmt,
			*ast.IncDecStmt, *ast.EmptyStmt, *ast.ValueSpec, *ast.Ident, *ast.ParenExpr,
			*ast.IndexExpr, *ast.DeclStmt:
			return true
		case *ast.RangeStmt:
			if x.Tok == token.ASSIGN {
				return fail(x, "range loops must declare their variables with :=")
			}
			return true
		case *ast.GenDecl:
			if x.Tok != token.VAR {
				return fail(x, "only var declarations are allowed in kernel bodies")
			}
			return true
		case *ast.AssignStmt:
			switch x.Tok {
			case token.SHL_ASSIGN, token.SHR_ASSIGN:
				return fail(x, "shift operators are not supported")
			}
			if len(x.Lhs) != len(x.Rhs) {
				return fail(x, "assignment count mismatch")
			}
			if x.Tok == token.DEFINE {
				for _, lhs := range x.Lhs {
					if _, ok := lhs.(*ast.Ident); !ok {
						return fail(lhs, "non-name %s on left side of :=", exprString(lhs))
					}
				}
			}
			return true
		case *ast.BranchStmt:
			if x.Label != nil {
				return fail(x, "labels are not supported")
			}
			if x.Tok != token.BREAK && x.Tok != token.CONTINUE {
				return fail(x, "%s is not supported", x.Tok)
			}
			return true
		case *ast.BasicLit:
			if x.Kind == token.IMAG {
				return fail(x, "complex numbers are not supported")
			}
			return true
		case *ast.UnaryExpr:
			switch x.Op {
			case token.SUB, token.ADD, token.NOT, token.XOR:
				return true
			}
			return fail(x, "unary %s is not supported", x.Op)
		case *ast.BinaryExpr:
			if x.Op == token.SHL || x.Op == token.SHR {
				return fail(x, "shift operators are not supported")
			}
			return true
		case *ast.CallExpr:
			if x.Ellipsis.IsValid() {
				return fail(x, "variadic calls are not supported")
			}
			return true
		case *ast.SelectorExpr:
			if id, ok := x.X.(*ast.Ident); !ok || id.Name != "math" {
				return fail(x, "attribute access %s is not supported", exprString(x))
			}
			return false
		case *ast.SwitchStmt, *ast.TypeSwitchStmt:
			return fail(x, "switch statements are not supported")
		case *ast.FuncLit:
			return fail(x, "function literals are not supported")
		case *ast.GoStmt, *ast.DeferStmt, *ast.SelectStmt, *ast.SendStmt:
			return fail(x, "concurrency and defer are not supported in kernels")
		case *ast.LabeledStmt:
			return fail(x, "labels are not supported")
		}
		return fail(n, "unsupported syntax %s", nodeName(n))
	})
	return err
}

func nodeName(n ast.Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
}

func exprString(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		return exprString(x.X) + "." + x.Sel.Name
	case *ast.ArrayType:
		return "[]" + exprString(x.Elt)
	case *ast.StarExpr:
		return "*" + exprString(x.X)
	case *ast.IndexExpr:
		return exprString(x.X) + "[" + exprString(x.Index) + "]"
	case *ast.BasicLit:
		return x.Value
	}
	return nodeName(e)
}

// ExprString renders a kernel expression for diagnostics.
func ExprString(e ast.Expr) string { return exprString(e) }
