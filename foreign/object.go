package foreign

import (
	"errors"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Kind is the coarse category of a foreign value.
type Kind int

const (
	KindOther Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTuple
	KindList
	KindDict
	KindSet
	KindSlice
	KindCallable
	KindModule
)

var kindNames = [...]string{
	KindOther:    "other",
	KindNone:     "none",
	KindBool:     "bool",
	KindInt:      "int",
	KindFloat:    "float",
	KindString:   "string",
	KindBytes:    "bytes",
	KindTuple:    "tuple",
	KindList:     "list",
	KindDict:     "dict",
	KindSet:      "set",
	KindSlice:    "slice",
	KindCallable: "callable",
	KindModule:   "module",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Capability is a protocol a foreign value supports.
type Capability uint

const (
	CapFixedSequence Capability = 1 << iota // immutable, bounds-checked positional access
	CapIndex                                // x[i] with negative indices
	CapSlice                                // x[slice]
	CapMapping                              // x[key]
	CapText
	CapLen
	CapCall
	CapAttrs
)

// Has reports whether every capability in c is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func kindOf(v starlark.Value) Kind {
	switch v.(type) {
	case starlark.NoneType:
		return KindNone
	case starlark.Bool:
		return KindBool
	case starlark.Int:
		return KindInt
	case starlark.Float:
		return KindFloat
	case starlark.String:
		return KindString
	case starlark.Bytes:
		return KindBytes
	case starlark.Tuple:
		return KindTuple
	case *starlark.List:
		return KindList
	case *starlark.Dict:
		return KindDict
	case *starlark.Set:
		return KindSet
	case *Slice:
		return KindSlice
	case *starlarkstruct.Module:
		return KindModule
	case starlark.Callable:
		return KindCallable
	}
	return KindOther
}

func capsOf(v starlark.Value) Capability {
	var c Capability
	if _, ok := v.(starlark.Tuple); ok {
		c |= CapFixedSequence
	}
	if _, ok := v.(starlark.Indexable); ok {
		c |= CapIndex
	}
	if _, ok := v.(starlark.Sliceable); ok {
		c |= CapSlice
	}
	if _, ok := v.(starlark.Mapping); ok {
		c |= CapMapping
	}
	switch v.(type) {
	case starlark.String, starlark.Bytes:
		c |= CapText
	}
	if starlark.Len(v) >= 0 {
		c |= CapLen
	}
	if _, ok := v.(starlark.Callable); ok {
		c |= CapCall
	}
	if _, ok := v.(starlark.HasAttrs); ok {
		c |= CapAttrs
	}
	return c
}

// Kind returns the category of r, or KindOther for a dead reference.
func (in *Interpreter) Kind(r Ref) Kind {
	v, err := in.value(r)
	if err != nil {
		return KindOther
	}
	return kindOf(v)
}

// Capabilities returns the protocols r supports. A dead reference
// supports none.
func (in *Interpreter) Capabilities(r Ref) Capability {
	v, err := in.value(r)
	if err != nil {
		return 0
	}
	return capsOf(v)
}

// TypeName returns the foreign type name of r. It never fails.
func (in *Interpreter) TypeName(r Ref) string {
	v, err := in.value(r)
	if err != nil {
		return "<dead>"
	}
	return v.Type()
}

// Str returns the foreign str() of r.
func (in *Interpreter) Str(r Ref) (string, error) {
	v, err := in.value(r)
	if err != nil {
		return "", err
	}
	if s, ok := v.(starlark.String); ok {
		return string(s), nil
	}
	return v.String(), nil
}

// Repr returns the foreign repr() of r.
func (in *Interpreter) Repr(r Ref) (string, error) {
	v, err := in.value(r)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// LookupAttr returns a new reference to attribute name of r. An absent
// attribute is reported as found == false with a nil error.
func (in *Interpreter) LookupAttr(r Ref, name string) (attr Ref, found bool, err error) {
	v, err := in.value(r)
	if err != nil {
		return 0, false, err
	}
	x, ok := v.(starlark.HasAttrs)
	if !ok {
		return 0, false, nil
	}
	av, err := x.Attr(name)
	if err != nil {
		var nsa starlark.NoSuchAttrError
		if errors.As(err, &nsa) {
			return 0, false, nil
		}
		return 0, false, translate(err)
	}
	if av == nil {
		return 0, false, nil
	}
	return in.newRef(av), true, nil
}

// HasAttr reports whether r has attribute name.
func (in *Interpreter) HasAttr(r Ref, name string) bool {
	v, err := in.value(r)
	if err != nil {
		return false
	}
	x, ok := v.(starlark.HasAttrs)
	if !ok {
		return false
	}
	for _, n := range x.AttrNames() {
		if n == name {
			return true
		}
	}
	av, err := x.Attr(name)
	return err == nil && av != nil
}

// AttrNames lists the attributes of r.
func (in *Interpreter) AttrNames(r Ref) []string {
	v, err := in.value(r)
	if err != nil {
		return nil
	}
	if x, ok := v.(starlark.HasAttrs); ok {
		return x.AttrNames()
	}
	return nil
}

// Len returns the length of a sequence, mapping or text value.
func (in *Interpreter) Len(r Ref) (int, bool) {
	v, err := in.value(r)
	if err != nil {
		return 0, false
	}
	n := starlark.Len(v)
	if n < 0 {
		return 0, false
	}
	return n, true
}

// TupleItem returns a new reference to item i of a tuple. Negative
// indices are out of range.
func (in *Interpreter) TupleItem(r Ref, i int) (Ref, error) {
	v, err := in.value(r)
	if err != nil {
		return 0, err
	}
	t, ok := v.(starlark.Tuple)
	if !ok {
		return 0, raise("TypeError", "got %s, want tuple", v.Type())
	}
	if i < 0 || i >= len(t) {
		return 0, raise("IndexError", "tuple index %d out of range [0:%d]", i, len(t))
	}
	return in.newRef(t[i]), nil
}

// Index returns a new reference to x[i] for an indexable value. Negative
// indices count from the end.
func (in *Interpreter) Index(r Ref, i int) (Ref, error) {
	v, err := in.value(r)
	if err != nil {
		return 0, err
	}
	x, ok := v.(starlark.Indexable)
	if !ok {
		return 0, raise("TypeError", "%s is not indexable", v.Type())
	}
	n := x.Len()
	j := i
	if j < 0 {
		j += n
	}
	if j < 0 || j >= n {
		return 0, raise("IndexError", "%s index %d out of range [%d:%d]", v.Type(), i, -n, n)
	}
	return in.newRef(x.Index(j)), nil
}

// GetItem returns a new reference to r[key]. Mappings look the key up,
// a slice key slices a sliceable value and an int key indexes an
// indexable one.
func (in *Interpreter) GetItem(r, key Ref) (Ref, error) {
	v, err := in.value(r)
	if err != nil {
		return 0, err
	}
	k, err := in.value(key)
	if err != nil {
		return 0, err
	}

	if m, ok := v.(starlark.Mapping); ok {
		got, found, err := m.Get(k)
		if err != nil {
			return 0, translate(err)
		}
		if !found {
			return 0, raise("KeyError", "key %s not in %s", k, v.Type())
		}
		return in.newRef(got), nil
	}

	if s, ok := k.(*Slice); ok {
		x, ok := v.(starlark.Sliceable)
		if !ok {
			return 0, raise("TypeError", "%s is not sliceable", v.Type())
		}
		start, stop, step, err := s.indices(x.Len())
		if err != nil {
			return 0, raise("TypeError", "%v", err)
		}
		return in.newRef(x.Slice(start, stop, step)), nil
	}

	if _, ok := v.(starlark.Indexable); ok {
		i, err := starlark.AsInt32(k)
		if err != nil {
			return 0, raise("TypeError", "%s index: got %s, want int", v.Type(), k.Type())
		}
		return in.Index(r, i)
	}

	return 0, raise("TypeError", "%s is not subscriptable", v.Type())
}

// Callable reports whether r can be called.
func (in *Interpreter) Callable(r Ref) bool {
	v, err := in.value(r)
	if err != nil {
		return false
	}
	_, ok := v.(starlark.Callable)
	return ok
}

// Call invokes fn with a positional tuple and an optional keyword dict
// (zero for none). Both argument references are borrowed.
func (in *Interpreter) Call(fn, args, kwargs Ref) (Ref, error) {
	fv, err := in.value(fn)
	if err != nil {
		return 0, err
	}
	av, err := in.value(args)
	if err != nil {
		return 0, err
	}
	pos, ok := av.(starlark.Tuple)
	if !ok {
		return 0, raise("TypeError", "call arguments: got %s, want tuple", av.Type())
	}

	var named []starlark.Tuple
	if kwargs != 0 {
		kv, err := in.value(kwargs)
		if err != nil {
			return 0, err
		}
		d, ok := kv.(*starlark.Dict)
		if !ok {
			return 0, raise("TypeError", "call keywords: got %s, want dict", kv.Type())
		}
		for _, item := range d.Items() {
			if _, ok := item[0].(starlark.String); !ok {
				return 0, raise("TypeError", "keywords must be strings, not %s", item[0].Type())
			}
			named = append(named, starlark.Tuple{item[0], item[1]})
		}
	}

	result, err := starlark.Call(in.thread(), fv, pos, named)
	if err != nil {
		return 0, translate(err)
	}
	return in.newRef(result), nil
}

// Primitive returns the Go value of a None, bool, int, float or string.
// Ints outside the int64 range are returned as *big.Int.
func (in *Interpreter) Primitive(r Ref) (any, bool) {
	v, err := in.value(r)
	if err != nil {
		return nil, false
	}
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, true
	case starlark.Bool:
		return bool(v), true
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, true
		}
		return v.BigInt(), true
	case starlark.Float:
		return float64(v), true
	case starlark.String:
		return string(v), true
	}
	return nil, false
}

// Bytes returns the contents of a bytes value. The slice must not be
// modified.
func (in *Interpreter) Bytes(r Ref) ([]byte, bool) {
	v, err := in.value(r)
	if err != nil {
		return nil, false
	}
	b, ok := v.(starlark.Bytes)
	if !ok {
		return nil, false
	}
	return []byte(b), true
}

// Items returns new references to the elements of an iterable value.
func (in *Interpreter) Items(r Ref) ([]Ref, error) {
	v, err := in.value(r)
	if err != nil {
		return nil, err
	}
	it, ok := v.(starlark.Iterable)
	if !ok {
		return nil, raise("TypeError", "%s is not iterable", v.Type())
	}
	iter := it.Iterate()
	defer iter.Done()

	var out []Ref
	var x starlark.Value
	for iter.Next(&x) {
		out = append(out, in.newRef(x))
	}
	return out, nil
}

// DictItems returns new references to the key/value pairs of a mapping
// that supports iteration.
func (in *Interpreter) DictItems(r Ref) ([][2]Ref, error) {
	v, err := in.value(r)
	if err != nil {
		return nil, err
	}
	m, ok := v.(starlark.IterableMapping)
	if !ok {
		return nil, raise("TypeError", "%s is not a mapping", v.Type())
	}
	items := m.Items()
	out := make([][2]Ref, 0, len(items))
	for _, kv := range items {
		out = append(out, [2]Ref{in.newRef(kv[0]), in.newRef(kv[1])})
	}
	return out, nil
}

// Keys returns a new list of the keys of a mapping.
func (in *Interpreter) Keys(r Ref) (Ref, error) {
	return in.mappingColumn(r, 0)
}

// Values returns a new list of the values of a mapping.
func (in *Interpreter) Values(r Ref) (Ref, error) {
	return in.mappingColumn(r, 1)
}

func (in *Interpreter) mappingColumn(r Ref, col int) (Ref, error) {
	v, err := in.value(r)
	if err != nil {
		return 0, err
	}
	m, ok := v.(starlark.IterableMapping)
	if !ok {
		return 0, raise("TypeError", "%s is not a mapping", v.Type())
	}
	items := m.Items()
	out := make([]starlark.Value, len(items))
	for i, kv := range items {
		out[i] = kv[col]
	}
	return in.make(starlark.NewList(out))
}

// Value returns the Starlark value behind r. The result must not outlive
// the reference.
func (in *Interpreter) Value(r Ref) (starlark.Value, error) {
	return in.value(r)
}
