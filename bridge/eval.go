package bridge

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/caffeineduck/starbridge/foreign"
)

// Eval evaluates a foreign expression. globals and locals may be handles
// to foreign dicts, plain JS objects, or undefined for an empty scope.
// The result goes through ToHost.
func (b *Bridge) Eval(src string, globals, locals goja.Value) (goja.Value, error) {
	const op = "eval"
	if err := b.enter(op); err != nil {
		return nil, err
	}

	g, err := b.scope(globals)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	l, err := b.scope(locals)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	result, err := b.in.Eval(src, g.Ref(), l.Ref())
	return b.toHost(op, result, err)
}

// scope converts an eval scope argument. A nil holder means no scope.
func (b *Bridge) scope(v goja.Value) (*foreign.Owned, error) {
	const op = "eval"
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	if _, ok := v.(*goja.Object); !ok {
		return nil, typeError(op, "scope must be a dict or object, got %s", v.String())
	}
	o, err := b.in.Own(b.toForeign(op, v, 0))
	if err != nil {
		return nil, failure(op, err)
	}
	if k := b.in.Kind(o.Ref()); k != foreign.KindDict {
		o.Release()
		return nil, typeError(op, "scope must be a dict, got %s", b.in.TypeName(o.Ref()))
	}
	return o, nil
}

// Import returns the wrapper of a foreign module.
func (b *Bridge) Import(name string) (*Object, error) {
	if err := b.enter("import"); err != nil {
		return nil, err
	}
	ref, err := b.in.Import(name)
	return b.wrap("import", ref, err)
}

// FromJS converts v and always returns a wrapper, primitives included.
func (b *Bridge) FromJS(v goja.Value) (*Object, error) {
	if err := b.enter("fromJS"); err != nil {
		return nil, err
	}
	ref, err := b.toForeign("fromJS", v, 0)
	return b.wrap("fromJS", ref, err)
}

// Keys returns a new list of the keys of a mapping. v may be a handle or
// a plain object.
func (b *Bridge) Keys(v goja.Value) (*Object, error) {
	return b.column("keys", v, b.in.Keys)
}

// Values returns a new list of the values of a mapping.
func (b *Bridge) Values(v goja.Value) (*Object, error) {
	return b.column("values", v, b.in.Values)
}

func (b *Bridge) column(op string, v goja.Value, fn func(foreign.Ref) (foreign.Ref, error)) (*Object, error) {
	if err := b.enter(op); err != nil {
		return nil, err
	}
	m, err := b.in.Own(b.toForeign(op, v, 0))
	if err != nil {
		return nil, failure(op, err)
	}
	defer m.Release()
	ref, err := fn(m.Ref())
	return b.wrap(op, ref, err)
}

// Construct calls one of the typed constructors (str, int, float, bytes,
// dict, list, tuple, slice) and wraps the result. slice also takes a
// single [start, stop, step] array.
func (b *Bridge) Construct(name string, args ...goja.Value) (*Object, error) {
	switch name {
	case "slice":
		return b.construct(name, spread(args))
	case "str", "int", "float", "bytes", "dict", "list", "tuple":
		return b.construct(name, args)
	}
	return nil, usageError(name, "unknown constructor")
}

// spread expands a lone array argument into positional arguments.
func spread(args []goja.Value) []goja.Value {
	if len(args) != 1 {
		return args
	}
	arr, ok := args[0].(*goja.Object)
	if !ok || arr.ClassName() != "Array" {
		return args
	}
	out := make([]goja.Value, arr.Get("length").ToInteger())
	for i := range out {
		out[i] = arr.Get(strconv.Itoa(i))
	}
	return out
}
