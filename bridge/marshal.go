package bridge

import (
	"bytes"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/dop251/goja"

	"github.com/caffeineduck/starbridge/foreign"
)

const maxDepth = 64

// maxSafeInteger bounds the ints JS numbers represent exactly.
const maxSafeInteger = 1<<53 - 1

var (
	bytesType       = reflect.TypeOf([]byte(nil))
	arrayBufferType = reflect.TypeOf(goja.ArrayBuffer{})
)

// ToForeign converts v into a new strong foreign reference the caller must
// release. Handles convert to their own foreign object.
func (b *Bridge) ToForeign(v goja.Value) (foreign.Ref, error) {
	if err := b.enter("fromJS"); err != nil {
		return 0, err
	}
	return b.toForeign("fromJS", v, 0)
}

// ToHost converts a foreign reference into a JS value. It always consumes
// ref. Primitives become JS primitives; anything else becomes its handle.
func (b *Bridge) ToHost(ref foreign.Ref) (goja.Value, error) {
	if err := b.enter("toHost"); err != nil {
		if ref != 0 {
			b.in.DecRef(ref)
		}
		return nil, err
	}
	return b.toHost("toHost", ref, nil)
}

func (b *Bridge) toHost(op string, ref foreign.Ref, err error) (goja.Value, error) {
	if err != nil {
		return nil, failure(op, err)
	}
	if v, ok := b.in.Primitive(ref); ok {
		b.in.DecRef(ref)
		return b.hostPrimitive(v), nil
	}
	obj, err := b.wrap(op, ref, nil)
	if err != nil {
		return nil, err
	}
	return obj.js, nil
}

func (b *Bridge) hostPrimitive(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case int64:
		if x > maxSafeInteger || x < -maxSafeInteger {
			return b.rt.ToValue(big.NewInt(x))
		}
	}
	return b.rt.ToValue(v)
}

func (b *Bridge) toForeign(op string, v goja.Value, depth int) (foreign.Ref, error) {
	if depth > maxDepth {
		return 0, conversionError(op, "value nested deeper than %d levels", maxDepth)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return b.in.NewNone()
	}

	if o, ok := v.(*goja.Object); ok {
		if obj, ok := b.unwrap(o); ok {
			if obj.b != b {
				return 0, conversionError(op, "handle belongs to another runtime")
			}
			if obj.slot.ref == 0 {
				return 0, usageError(op, "foreign object released")
			}
			b.in.IncRef(obj.slot.ref)
			return obj.slot.ref, nil
		}
		if data, ok := binary(o); ok {
			return b.in.NewBytes(bytes.Clone(data))
		}
		switch {
		case o.ClassName() == "Array":
			return b.listToForeign(op, o, depth)
		case isPlainObject(o):
			return b.dictToForeign(op, o, depth)
		}
		return 0, conversionError(op, "%s has no foreign representation", o.ClassName())
	}
	if _, ok := v.(*goja.Symbol); ok {
		return 0, conversionError(op, "symbol %s has no foreign representation", v.String())
	}

	switch x := v.Export().(type) {
	case bool:
		return b.in.NewBool(x)
	case int64:
		return b.in.NewInt(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
			return b.in.NewInt(int64(x))
		}
		return b.in.NewFloat(x)
	case *big.Int:
		return b.in.NewBigInt(x)
	case string:
		return b.in.NewString(x)
	}
	return 0, conversionError(op, "%s has no foreign representation", v.String())
}

// isPlainObject reports whether o converts to a dict. Typed arrays and
// buffers share the Object class but export as something else.
func isPlainObject(o *goja.Object) bool {
	return o.ClassName() == "Object" && o.ExportType().Kind() == reflect.Map
}

// binary returns the contents of a Uint8Array or an ArrayBuffer.
func binary(o *goja.Object) ([]byte, bool) {
	switch o.ExportType() {
	case bytesType:
		return o.Export().([]byte), true
	case arrayBufferType:
		return o.Export().(goja.ArrayBuffer).Bytes(), true
	}
	return nil, false
}

func (b *Bridge) listToForeign(op string, arr *goja.Object, depth int) (foreign.Ref, error) {
	list, err := b.in.Own(b.in.NewList())
	if err != nil {
		return 0, err
	}
	defer list.Release()

	n := arr.Get("length").ToInteger()
	for i := int64(0); i < n; i++ {
		item, err := b.in.Own(b.toForeign(op, arr.Get(strconv.FormatInt(i, 10)), depth+1))
		if err != nil {
			return 0, err
		}
		err = b.in.ListAppend(list.Ref(), item.Ref())
		item.Release()
		if err != nil {
			return 0, err
		}
	}
	return list.Steal(), nil
}

func (b *Bridge) dictToForeign(op string, obj *goja.Object, depth int) (foreign.Ref, error) {
	dict, err := b.in.Own(b.in.NewDict())
	if err != nil {
		return 0, err
	}
	defer dict.Release()

	if err := b.fillDict(op, dict.Ref(), obj, depth); err != nil {
		return 0, err
	}
	return dict.Steal(), nil
}

// fillDict stores the own enumerable properties of obj into dict. A
// throwing getter unwinds through here as a panic, so every reference
// taken in an iteration is released by defer.
func (b *Bridge) fillDict(op string, dict foreign.Ref, obj *goja.Object, depth int) error {
	for _, k := range obj.Keys() {
		if err := b.setProperty(op, dict, k, obj.Get(k), depth); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) setProperty(op string, dict foreign.Ref, k string, v goja.Value, depth int) error {
	val, err := b.in.Own(b.toForeign(op, v, depth+1))
	if err != nil {
		return err
	}
	defer val.Release()
	key, err := b.in.Own(b.in.NewString(k))
	if err != nil {
		return err
	}
	defer key.Release()
	return b.in.DictSetItem(dict, key.Ref(), val.Ref())
}

// toJS deep-converts a borrowed reference: sequences become arrays,
// dicts become objects keyed by str(key), bytes a Uint8Array copy and
// modules an object of their converted members. Callables become the JS
// function of their wrapper; anything else stays a handle.
func (b *Bridge) toJS(ref foreign.Ref, depth int) (goja.Value, error) {
	const op = "toJS"
	if depth > maxDepth {
		return nil, conversionError(op, "value nested deeper than %d levels", maxDepth)
	}
	in := b.in
	if v, ok := in.Primitive(ref); ok {
		return b.hostPrimitive(v), nil
	}

	switch in.Kind(ref) {
	case foreign.KindList, foreign.KindTuple, foreign.KindSet:
		items, err := in.Items(ref)
		if err != nil {
			return nil, failure(op, err)
		}
		defer releaseAll(in, items)

		vals := make([]any, len(items))
		for i, item := range items {
			v, err := b.toJS(item, depth+1)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return b.rt.NewArray(vals...), nil

	case foreign.KindDict:
		pairs, err := in.DictItems(ref)
		if err != nil {
			return nil, failure(op, err)
		}
		defer func() {
			for _, kv := range pairs {
				in.DecRef(kv[0])
				in.DecRef(kv[1])
			}
		}()

		out := b.rt.NewObject()
		for _, kv := range pairs {
			k, err := in.Str(kv[0])
			if err != nil {
				return nil, failure(op, err)
			}
			v, err := b.toJS(kv[1], depth+1)
			if err != nil {
				return nil, err
			}
			if err := out.Set(k, v); err != nil {
				return nil, failure(op, err)
			}
		}
		return out, nil

	case foreign.KindBytes:
		data, _ := in.Bytes(ref)
		arr, err := b.rt.New(b.rt.Get("Uint8Array"), b.rt.ToValue(b.rt.NewArrayBuffer(bytes.Clone(data))))
		if err != nil {
			return nil, failure(op, err)
		}
		return arr, nil

	case foreign.KindModule:
		return b.moduleToJS(ref, depth)
	}

	in.IncRef(ref)
	obj, err := b.wrap(op, ref, nil)
	if err != nil {
		return nil, err
	}
	if in.Callable(ref) {
		return obj.function(), nil
	}
	return obj.js, nil
}

// moduleToJS converts every member of a module into a plain object.
func (b *Bridge) moduleToJS(ref foreign.Ref, depth int) (goja.Value, error) {
	const op = "toJS"
	out := b.rt.NewObject()
	for _, name := range b.in.AttrNames(ref) {
		attr, found, err := b.in.LookupAttr(ref, name)
		if err != nil {
			return nil, failure(op, err)
		}
		if !found {
			continue
		}
		v, err := func() (goja.Value, error) {
			defer b.in.DecRef(attr)
			return b.toJS(attr, depth+1)
		}()
		if err != nil {
			return nil, err
		}
		if err := out.Set(name, v); err != nil {
			return nil, failure(op, err)
		}
	}
	return out, nil
}

func releaseAll(in *foreign.Interpreter, refs []foreign.Ref) {
	for _, r := range refs {
		in.DecRef(r)
	}
}
