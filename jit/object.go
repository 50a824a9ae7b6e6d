package jit

import (
	"context"
	"errors"
	"fmt"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// Object is an instance of a kernel class. Its methods are specialized
// through the cache like any kernel, with the field values passed ahead of
// the method arguments. Array fields are shared with the caller, so element
// writes made by a method are visible through the array that was set.
// An Object is not safe for concurrent use.
type Object struct {
	cache  *Cache
	class  *kernel.Class
	fields []any
	set    []bool
}

// NewObject returns an instance of class with every field unset.
func (c *Cache) NewObject(class *kernel.Class) *Object {
	return &Object{
		cache:  c,
		class:  class,
		fields: make([]any, class.NumFields()),
		set:    make([]bool, class.NumFields()),
	}
}

func (o *Object) Class() *kernel.Class { return o.class }

// Set assigns a field. Scalars are converted to the field's type when that
// loses nothing; arrays must match it exactly.
func (o *Object) Set(name string, v any) error {
	i, ok := o.class.FieldIndex(name)
	if !ok {
		return kerrors.NotFound(kerrors.PhaseInvoke, "field", o.class.Name()+"."+name)
	}
	want := o.class.Fields()[i].Type
	got, ok := types.TypeOf(v)
	if !ok {
		return kerrors.Unsupported(kerrors.PhaseInvoke, fmt.Sprintf("field %s: unsupported type %T", name, v))
	}
	if got != want {
		if got.IsArray() || want.IsArray() || !types.IsSafeCast(got.Kind, want.Kind) {
			return kerrors.New(kerrors.PhaseInvoke, kerrors.KindTypeMismatch).
				Kernel(o.class.Name()).
				Detail("cannot use %s as %s in field %s", got, want, name).
				Build()
		}
		cast, err := Cast([]any{v}, types.Signature{want})
		if err != nil {
			return err
		}
		v = cast[0]
	}
	o.fields[i], o.set[i] = v, true
	return nil
}

// Get returns the value of a field, or false if it is unknown or unset.
func (o *Object) Get(name string) (any, bool) {
	i, ok := o.class.FieldIndex(name)
	if !ok || !o.set[i] {
		return nil, false
	}
	return o.fields[i], true
}

// Call runs a method compiled for the arguments. Every field must be set.
func (o *Object) Call(ctx context.Context, method string, args ...any) (any, error) {
	k, all, err := o.bind(method, args)
	if err != nil {
		return nil, err
	}
	return o.cache.Invoke(ctx, k, all...)
}

// CallWithFallback is Call, falling back to the interpreter when the method
// cannot be compiled for the arguments.
func (o *Object) CallWithFallback(ctx context.Context, method string, args ...any) (any, error) {
	k, all, err := o.bind(method, args)
	if err != nil {
		return nil, err
	}
	res, err := o.cache.Invoke(ctx, k, all...)
	if errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		o.cache.fallback(k, err)
		return o.cache.InvokeInterpreted(ctx, k, all...)
	}
	return res, err
}

func (o *Object) bind(method string, args []any) (*kernel.Kernel, []any, error) {
	k, err := o.class.Method(method)
	if err != nil {
		return nil, nil, err
	}
	for i, f := range o.class.Fields() {
		if !o.set[i] {
			return nil, nil, kerrors.New(kerrors.PhaseInvoke, kerrors.KindInvalidInput).
				Kernel(k.Name()).
				Detail("field %s is not initialised", f.Name).
				Build()
		}
	}
	all := make([]any, 0, len(o.fields)+len(args))
	all = append(all, o.fields...)
	return k, append(all, args...), nil
}
