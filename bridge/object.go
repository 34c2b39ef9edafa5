package bridge

import (
	"github.com/dop251/goja"

	"github.com/caffeineduck/starbridge/foreign"
)

// Object is the host-side wrapper of one foreign object. It owns exactly
// one strong reference to it and is represented in JS by a single handle.
// At most one Object exists per foreign identity and bridge.
type Object struct {
	b    *Bridge
	slot *slot
	js   *goja.Object
	fn   *goja.Object // JS function of a callable, created by toJS
}

// Value returns the JS handle.
func (o *Object) Value() goja.Value {
	return o.js
}

// Ref returns the foreign reference, or zero after release.
func (o *Object) Ref() foreign.Ref {
	return o.slot.ref
}

// Released reports whether the wrapper has been detached.
func (o *Object) Released() bool {
	return o.slot.ref == 0
}

// Release detaches the wrapper early: it is evicted and its reference
// released. Later operations report UsageError. Releasing twice is a no-op.
func (o *Object) Release() {
	o.b.destroy(o.slot)
}

func (o *Object) ref(op string) (foreign.Ref, error) {
	if err := o.b.enter(op); err != nil {
		return 0, err
	}
	if o.slot.ref == 0 {
		return 0, usageError(op, "foreign object released")
	}
	return o.slot.ref, nil
}

// TypeName returns the foreign type name. It never fails.
func (o *Object) TypeName() string {
	if o.slot.ref == 0 || o.b.isClosed() {
		return "<released>"
	}
	return o.b.in.TypeName(o.slot.ref)
}

// Callable reports whether the foreign object can be called. It never
// fails.
func (o *Object) Callable() bool {
	if o.slot.ref == 0 || o.b.isClosed() {
		return false
	}
	return o.b.in.Callable(o.slot.ref)
}

// Str returns the foreign str() of the object.
func (o *Object) Str() (string, error) {
	ref, err := o.ref("toString")
	if err != nil {
		return "", err
	}
	s, err := o.b.in.Str(ref)
	if err != nil {
		return "", failure("toString", err)
	}
	return s, nil
}

// Get returns attribute name, or undefined when the object has no such
// attribute.
func (o *Object) Get(name string) (goja.Value, error) {
	ref, err := o.ref("get")
	if err != nil {
		return nil, err
	}
	attr, found, err := o.b.in.LookupAttr(ref, name)
	if err != nil {
		return nil, failure("get", err)
	}
	if !found {
		return goja.Undefined(), nil
	}
	return o.b.toHost("get", attr, nil)
}

// Has reports whether the object has attribute name.
func (o *Object) Has(name string) (bool, error) {
	ref, err := o.ref("has")
	if err != nil {
		return false, err
	}
	return o.b.in.HasAttr(ref, name), nil
}

// Item returns o[key]. Tuples take bounds-checked integer indices; other
// indexable, sliceable and mapping objects go through generic item
// access. Objects with none of these capabilities yield undefined.
func (o *Object) Item(key goja.Value) (goja.Value, error) {
	const op = "item"
	ref, err := o.ref(op)
	if err != nil {
		return nil, err
	}
	in := o.b.in
	caps := in.Capabilities(ref)

	if caps.Has(foreign.CapFixedSequence) {
		if i, ok := intKey(key); ok {
			item, err := in.TupleItem(ref, i)
			return o.b.toHost(op, item, err)
		}
	}
	if caps&(foreign.CapIndex|foreign.CapSlice|foreign.CapMapping) == 0 {
		return goja.Undefined(), nil
	}

	k, err := in.Own(o.b.toForeign(op, key, 0))
	if err != nil {
		return nil, failure(op, err)
	}
	defer k.Release()
	item, err := in.GetItem(ref, k.Ref())
	return o.b.toHost(op, item, err)
}

// Len returns the length of a sequence, mapping or text object. ok is
// false for other objects.
func (o *Object) Len() (n int, ok bool, err error) {
	ref, err := o.ref("length")
	if err != nil {
		return 0, false, err
	}
	n, ok = o.b.in.Len(ref)
	return n, ok, nil
}

// Call calls the foreign object with host arguments. A trailing plain
// object supplies keyword arguments.
func (o *Object) Call(args ...goja.Value) (goja.Value, error) {
	ref, err := o.ref("call")
	if err != nil {
		return nil, err
	}
	return o.b.call(ref, args)
}

// ToJS converts the object into plain JS values recursively. Callables
// become JS functions; other values without a JS counterpart stay
// handles.
func (o *Object) ToJS() (goja.Value, error) {
	ref, err := o.ref("toJS")
	if err != nil {
		return nil, err
	}
	return o.b.toJS(ref, 0)
}

// function returns the JS function calling a callable object. It is
// created once per wrapper and carries the handle marker, so passing it
// back converts to the same foreign object.
func (o *Object) function() *goja.Object {
	if o.fn != nil {
		return o.fn
	}
	rt := o.b.rt
	fn := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := o.Call(call.Arguments...)
		if err != nil {
			panic(o.b.jsError(err))
		}
		return v
	}).(*goja.Object)
	fn.DefineDataPropertySymbol(handleKey, rt.ToValue(o), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	o.fn = fn
	return fn
}

func intKey(v goja.Value) (int, bool) {
	switch x := v.Export().(type) {
	case int64:
		return int(x), true
	case float64:
		if x == float64(int(x)) {
			return int(x), true
		}
	}
	return 0, false
}
