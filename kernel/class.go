package kernel

import (
	"fmt"
	"go/ast"
	"reflect"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

// Field is a typed field of a Class.
type Field struct {
	Name string
	Type types.Type

	expr ast.Expr
}

// Class is a struct type declared in a kernel library together with its
// methods. A method compiles as a kernel named Class.method whose leading
// parameters are the fields, in declaration order, followed by the method's
// own parameters. Methods may write array field elements; fields themselves
// are set by the host.
type Class struct {
	lib     *Library
	name    string
	fields  []Field
	methods map[string]*Kernel
	order   []*Kernel
}

func (c *Class) Name() string { return c.name }

// Library returns the library the class was declared in.
func (c *Class) Library() *Library { return c.lib }

// Fields returns the fields in declaration order.
func (c *Class) Fields() []Field { return append([]Field(nil), c.fields...) }

// NumFields returns the number of fields.
func (c *Class) NumFields() int { return len(c.fields) }

// FieldIndex returns the position of the named field.
func (c *Class) FieldIndex(name string) (int, bool) {
	for i, f := range c.fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Method returns the kernel of the named method.
func (c *Class) Method(name string) (*Kernel, error) {
	if k, ok := c.methods[name]; ok {
		return k, nil
	}
	return nil, kerrors.NotFound(kerrors.PhaseParse, "method", c.name+"."+name)
}

// Methods returns the method kernels in source order.
func (c *Class) Methods() []*Kernel { return append([]*Kernel(nil), c.order...) }

// Class returns the class with the given name.
func (l *Library) Class(name string) (*Class, error) {
	if c, ok := l.classes[name]; ok {
		return c, nil
	}
	return nil, kerrors.NotFound(kerrors.PhaseParse, "class", name)
}

// Classes returns the classes in source order.
func (l *Library) Classes() []*Class { return append([]*Class(nil), l.classOrder...) }

func (l *Library) checkTypes(d *ast.GenDecl) error {
	for _, spec := range d.Specs {
		ts := spec.(*ast.TypeSpec)
		if ts.TypeParams != nil || ts.Assign.IsValid() {
			return kerrors.Syntax(l.Position(ts.Pos()), "only plain struct types are supported")
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			return kerrors.Syntax(l.Position(ts.Pos()), fmt.Sprintf("type %s must be a struct", ts.Name.Name))
		}
		if _, dup := l.classes[ts.Name.Name]; dup {
			return kerrors.Syntax(l.Position(ts.Pos()), fmt.Sprintf("type %s redeclared", ts.Name.Name))
		}
		c := &Class{lib: l, name: ts.Name.Name, methods: make(map[string]*Kernel)}
		for _, f := range st.Fields.List {
			if len(f.Names) == 0 {
				return kerrors.Syntax(l.Position(f.Pos()), "embedded fields are not supported")
			}
			t, lazy, err := l.paramType(f.Type)
			if err != nil {
				return err
			}
			if lazy {
				return kerrors.Syntax(l.Position(f.Pos()), "field types must be concrete")
			}
			for _, n := range f.Names {
				if _, dup := c.FieldIndex(n.Name); dup {
					return kerrors.Syntax(l.Position(n.Pos()), fmt.Sprintf("duplicate field %s", n.Name))
				}
				c.fields = append(c.fields, Field{Name: n.Name, Type: t, expr: f.Type})
			}
		}
		l.classes[c.name] = c
		l.classOrder = append(l.classOrder, c)
	}
	return nil
}

// newMethod turns a method into a kernel over the receiver's fields.
func (l *Library) newMethod(d *ast.FuncDecl) (*Kernel, error) {
	c, recv, err := l.receiver(d)
	if err != nil {
		return nil, err
	}
	if _, dup := c.methods[d.Name.Name]; dup {
		return nil, kerrors.Syntax(l.Position(d.Pos()), fmt.Sprintf("method %s.%s redeclared", c.name, d.Name.Name))
	}
	if d.Body == nil {
		return nil, kerrors.Syntax(l.Position(d.Pos()), fmt.Sprintf("method %s.%s has no body", c.name, d.Name.Name))
	}
	if err := l.fieldAccess(c, recv, d.Body); err != nil {
		return nil, err
	}

	params := &ast.FieldList{Opening: d.Type.Params.Opening, Closing: d.Type.Params.Closing}
	for _, f := range c.fields {
		params.List = append(params.List, &ast.Field{
			Names: []*ast.Ident{{NamePos: d.Recv.Pos(), Name: recv + "." + f.Name}},
			Type:  f.expr,
		})
	}
	params.List = append(params.List, d.Type.Params.List...)

	fn := &ast.FuncDecl{
		Doc:  d.Doc,
		Name: &ast.Ident{NamePos: d.Name.NamePos, Name: c.name + "." + d.Name.Name},
		Type: &ast.FuncType{Func: d.Type.Func, Params: params, Results: d.Type.Results},
		Body: d.Body,
	}
	k, err := l.newKernel(fn)
	if err != nil {
		return nil, err
	}
	k.class = c
	c.methods[d.Name.Name] = k
	c.order = append(c.order, k)
	return k, nil
}

func (l *Library) receiver(d *ast.FuncDecl) (*Class, string, error) {
	bad := kerrors.Syntax(l.Position(d.Pos()), "methods must have a receiver of a struct type declared in the library")
	if len(d.Recv.List) != 1 {
		return nil, "", bad
	}
	r := d.Recv.List[0]
	t := r.Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	id, ok := t.(*ast.Ident)
	if !ok {
		return nil, "", bad
	}
	c, ok := l.classes[id.Name]
	if !ok {
		return nil, "", bad
	}
	recv := "_"
	if len(r.Names) == 1 {
		recv = r.Names[0].Name
	}
	return c, recv, nil
}

// fieldAccess replaces recv.field in body with the field's parameter and
// rejects any other use of the receiver.
func (l *Library) fieldAccess(c *Class, recv string, body *ast.BlockStmt) error {
	var err error
	fail := func(n ast.Node, format string, args ...any) {
		if err == nil {
			err = kerrors.Syntax(l.Position(n.Pos()), fmt.Sprintf(format, args...))
		}
	}
	isField := func(e ast.Expr) (*ast.SelectorExpr, bool) {
		sel, ok := e.(*ast.SelectorExpr)
		if !ok {
			return nil, false
		}
		id, ok := sel.X.(*ast.Ident)
		return sel, ok && id.Name == recv
	}

	ast.Inspect(body, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.AssignStmt:
			for _, lhs := range x.Lhs {
				if sel, ok := isField(lhs); ok {
					fail(sel, "cannot assign to field %s.%s, fields are set by the host", c.name, sel.Sel.Name)
				}
			}
		case *ast.IncDecStmt:
			if sel, ok := isField(x.X); ok {
				fail(sel, "cannot assign to field %s.%s, fields are set by the host", c.name, sel.Sel.Name)
			}
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	replaceExprs(body, func(e ast.Expr) ast.Expr {
		sel, ok := isField(e)
		if !ok {
			return nil
		}
		if _, ok := c.FieldIndex(sel.Sel.Name); !ok {
			fail(sel, "%s has no field %s", c.name, sel.Sel.Name)
			return nil
		}
		return &ast.Ident{NamePos: sel.X.Pos(), Name: recv + "." + sel.Sel.Name}
	})
	if err != nil {
		return err
	}

	ast.Inspect(body, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == recv && recv != "_" {
			fail(id, "receiver %s may only be used to access fields", recv)
		}
		return err == nil
	})
	return err
}

var exprType = reflect.TypeOf((*ast.Expr)(nil)).Elem()

// replaceExprs visits every expression under root and substitutes those for
// which fn returns a replacement.
func replaceExprs(root ast.Node, fn func(ast.Expr) ast.Expr) {
	set := func(v reflect.Value) {
		if v.IsNil() {
			return
		}
		if r := fn(v.Interface().(ast.Expr)); r != nil {
			v.Set(reflect.ValueOf(r))
		}
	}
	ast.Inspect(root, func(n ast.Node) bool {
		v := reflect.ValueOf(n)
		if n == nil || v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
			return n != nil
		}
		v = v.Elem()
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			switch {
			case f.Type() == exprType:
				set(f)
			case f.Kind() == reflect.Slice && f.Type().Elem() == exprType:
				for j := 0; j < f.Len(); j++ {
					set(f.Index(j))
				}
			}
		}
		return true
	})
}
