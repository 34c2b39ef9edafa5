package bridge

import (
	"errors"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// ModuleName is the name the JS module is registered under.
const ModuleName = "starlark"

// initClass builds the ForeignObject constructor and the prototype shared
// by every handle.
func (b *Bridge) initClass() {
	rt := b.rt
	b.ctor = rt.ToValue(func(call goja.ConstructorCall) *goja.Object {
		panic(b.jsError(usageError("ForeignObject", "use the factory, not the constructor")))
	}).(*goja.Object)
	b.proto = b.ctor.Get("prototype").ToObject(rt)

	methods := map[string]func(o *Object, call goja.FunctionCall) (goja.Value, error){
		"toString": func(o *Object, _ goja.FunctionCall) (goja.Value, error) {
			s, err := o.Str()
			if err != nil {
				return nil, err
			}
			return rt.ToValue(s), nil
		},
		"get": func(o *Object, call goja.FunctionCall) (goja.Value, error) {
			name, err := stringArg("get", call)
			if err != nil {
				return nil, err
			}
			return o.Get(name)
		},
		"has": func(o *Object, call goja.FunctionCall) (goja.Value, error) {
			name, err := stringArg("has", call)
			if err != nil {
				return nil, err
			}
			ok, err := o.Has(name)
			if err != nil {
				return nil, err
			}
			return rt.ToValue(ok), nil
		},
		"item": func(o *Object, call goja.FunctionCall) (goja.Value, error) {
			if len(call.Arguments) != 1 {
				return nil, usageError("item", "expected 1 argument, got %d", len(call.Arguments))
			}
			return o.Item(call.Arguments[0])
		},
		"call": func(o *Object, call goja.FunctionCall) (goja.Value, error) {
			return o.Call(call.Arguments...)
		},
		"toJS": func(o *Object, _ goja.FunctionCall) (goja.Value, error) {
			return o.ToJS()
		},
	}
	methods["valueOf"] = methods["toJS"]
	for name, fn := range methods {
		b.proto.Set(name, b.method(fn))
	}

	getters := map[string]func(o *Object) goja.Value{
		"type": func(o *Object) goja.Value {
			return rt.ToValue(o.TypeName())
		},
		"callable": func(o *Object) goja.Value {
			return rt.ToValue(o.Callable())
		},
		"length": func(o *Object) goja.Value {
			n, ok, err := o.Len()
			if err != nil {
				panic(b.jsError(err))
			}
			if !ok {
				return goja.Undefined()
			}
			return rt.ToValue(n)
		},
	}
	for name, get := range getters {
		b.proto.DefineAccessorProperty(name, rt.ToValue(func(call goja.FunctionCall) goja.Value {
			o, err := b.self(name, call.This)
			if err != nil {
				panic(b.jsError(err))
			}
			return get(o)
		}), nil, goja.FLAG_FALSE, goja.FLAG_FALSE)
	}
}

func (b *Bridge) self(op string, this goja.Value) (*Object, error) {
	obj, ok := b.unwrap(this)
	if !ok {
		return nil, usageError(op, "receiver is not a foreign object")
	}
	if obj.b != b {
		return nil, usageError(op, "handle belongs to another runtime")
	}
	return obj, nil
}

func (b *Bridge) method(fn func(o *Object, call goja.FunctionCall) (goja.Value, error)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		o, err := b.self("method", call.This)
		if err != nil {
			panic(b.jsError(err))
		}
		v, err := fn(o, call)
		if err != nil {
			panic(b.jsError(err))
		}
		return v
	}
}

func (b *Bridge) function(fn func(call goja.FunctionCall) (goja.Value, error)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		v, err := fn(call)
		if err != nil {
			panic(b.jsError(err))
		}
		return v
	}
}

func stringArg(op string, call goja.FunctionCall) (string, error) {
	if len(call.Arguments) != 1 {
		return "", usageError(op, "expected 1 argument, got %d", len(call.Arguments))
	}
	v := call.Arguments[0]
	if _, ok := v.Export().(string); !ok {
		return "", usageError(op, "expected a string argument, got %s", v.String())
	}
	return v.String(), nil
}

// jsError converts err into the JS exception value thrown to scripts.
func (b *Bridge) jsError(err error) goja.Value {
	var e *Error
	if !errors.As(err, &e) {
		return b.rt.NewGoError(err)
	}
	if e.Kind == KindType {
		return b.rt.NewTypeError(e.message())
	}
	obj := b.rt.NewGoError(e)
	obj.Set("name", string(e.Kind))
	obj.Set("message", e.message())
	if e.Foreign != nil {
		obj.Set("foreignType", e.Foreign.Type)
		obj.Set("foreignTrace", e.Foreign.Backtrace)
	}
	return obj
}

// Exports builds the object exported by require("starlark").
func (b *Bridge) Exports() *goja.Object {
	rt := b.rt
	exports := rt.NewObject()
	exports.Set("ForeignObject", b.ctor)

	wrapped := func(obj *Object, err error) (goja.Value, error) {
		if err != nil {
			return nil, err
		}
		return obj.js, nil
	}

	exports.Set("fromJS", b.function(func(call goja.FunctionCall) (goja.Value, error) {
		if len(call.Arguments) != 1 {
			return nil, usageError("fromJS", "expected 1 argument, got %d", len(call.Arguments))
		}
		return wrapped(b.FromJS(call.Arguments[0]))
	}))
	exports.Set("import", b.function(func(call goja.FunctionCall) (goja.Value, error) {
		name, err := stringArg("import", call)
		if err != nil {
			return nil, err
		}
		return wrapped(b.Import(name))
	}))
	exports.Set("eval", b.function(func(call goja.FunctionCall) (goja.Value, error) {
		if len(call.Arguments) < 1 || len(call.Arguments) > 3 {
			return nil, usageError("eval", "expected 1 to 3 arguments, got %d", len(call.Arguments))
		}
		src, ok := call.Arguments[0].Export().(string)
		if !ok {
			return nil, usageError("eval", "source must be a string")
		}
		return b.Eval(src, call.Argument(1), call.Argument(2))
	}))

	for name, column := range map[string]func(goja.Value) (*Object, error){
		"keys":   b.Keys,
		"values": b.Values,
	} {
		exports.Set(name, b.function(func(call goja.FunctionCall) (goja.Value, error) {
			if len(call.Arguments) != 1 {
				return nil, usageError(name, "expected 1 argument, got %d", len(call.Arguments))
			}
			return wrapped(column(call.Arguments[0]))
		}))
	}

	constructors := map[string]string{
		"string": "str",
		"int":    "int",
		"float":  "float",
		"bytes":  "bytes",
		"dict":   "dict",
		"list":   "list",
		"tuple":  "tuple",
		"slice":  "slice",
	}
	for jsName, builtin := range constructors {
		exports.Set(jsName, b.function(func(call goja.FunctionCall) (goja.Value, error) {
			return wrapped(b.Construct(builtin, call.Arguments...))
		}))
	}
	return exports
}

// Loader returns a require module loader exporting the bridge API.
func (b *Bridge) Loader() require.ModuleLoader {
	return func(rt *goja.Runtime, module *goja.Object) {
		module.Set("exports", b.Exports())
	}
}
