package bridge

import (
	"github.com/dop251/goja"

	"github.com/caffeineduck/starbridge/foreign"
)

// call invokes fn with host arguments and converts the result to a host
// value.
func (b *Bridge) call(fn foreign.Ref, args []goja.Value) (goja.Value, error) {
	if !b.in.Callable(fn) {
		return nil, typeError("call", "'%s' object is not callable", b.in.TypeName(fn))
	}
	result, err := b.invoke("call", fn, args)
	return b.toHost("call", result, err)
}

// invoke builds the positional tuple and keyword dict from args, calls fn
// and returns the new result reference. Every intermediate reference is
// released on all paths.
func (b *Bridge) invoke(op string, fn foreign.Ref, args []goja.Value) (foreign.Ref, error) {
	in := b.in
	positional, kw := b.splitKwargs(args)

	kwargs, err := in.Own(in.NewDict())
	if err != nil {
		return 0, failure(op, err)
	}
	defer kwargs.Release()
	if kw != nil {
		if err := b.fillDict(op, kwargs.Ref(), kw, 0); err != nil {
			return 0, failure(op, err)
		}
	}

	tuple, err := in.Own(in.NewTuple(len(positional)))
	if err != nil {
		return 0, failure(op, err)
	}
	defer tuple.Release()
	for i, a := range positional {
		arg, err := in.Own(b.toForeign(op, a, 0))
		if err != nil {
			return 0, failure(op, err)
		}
		if err := in.SetTupleItem(tuple.Ref(), i, arg.Steal()); err != nil {
			return 0, failure(op, err)
		}
	}

	result, err := in.Call(fn, tuple.Ref(), kwargs.Ref())
	if err != nil {
		return 0, failure(op, err)
	}
	return result, nil
}

// splitKwargs separates a trailing plain object from the positional
// arguments. Arrays, binary data and handles are never keyword arguments.
func (b *Bridge) splitKwargs(args []goja.Value) ([]goja.Value, *goja.Object) {
	if len(args) == 0 {
		return args, nil
	}
	last, ok := args[len(args)-1].(*goja.Object)
	if !ok || !isPlainObject(last) {
		return args, nil
	}
	if _, isHandle := b.unwrap(last); isHandle {
		return args, nil
	}
	return args[:len(args)-1], last
}

// construct calls the builtin name and wraps the result, primitives
// included.
func (b *Bridge) construct(name string, args []goja.Value) (*Object, error) {
	if err := b.enter(name); err != nil {
		return nil, err
	}
	fn, err := b.in.Own(b.in.Builtin(name))
	if err != nil {
		return nil, failure(name, err)
	}
	defer fn.Release()

	result, err := b.invoke(name, fn.Ref(), args)
	return b.wrap(name, result, err)
}
