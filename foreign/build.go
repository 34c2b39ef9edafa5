package foreign

import (
	"math/big"

	"go.starlark.net/starlark"
)

// Constructors return a new strong reference the caller must release or
// transfer.

func (in *Interpreter) make(v starlark.Value) (Ref, error) {
	if in.closed {
		return 0, ErrClosed
	}
	return in.newRef(v), nil
}

func (in *Interpreter) NewNone() (Ref, error)            { return in.make(starlark.None) }
func (in *Interpreter) NewBool(b bool) (Ref, error)      { return in.make(starlark.Bool(b)) }
func (in *Interpreter) NewInt(i int64) (Ref, error)      { return in.make(starlark.MakeInt64(i)) }
func (in *Interpreter) NewBigInt(i *big.Int) (Ref, error) { return in.make(starlark.MakeBigInt(i)) }
func (in *Interpreter) NewFloat(f float64) (Ref, error)  { return in.make(starlark.Float(f)) }
func (in *Interpreter) NewString(s string) (Ref, error)  { return in.make(starlark.String(s)) }
func (in *Interpreter) NewBytes(b []byte) (Ref, error)   { return in.make(starlark.Bytes(b)) }

// NewValue wraps an arbitrary Starlark value, typically one produced by
// host code.
func (in *Interpreter) NewValue(v starlark.Value) (Ref, error) {
	if v == nil {
		return 0, raise("SystemError", "nil value")
	}
	return in.make(v)
}

func (in *Interpreter) NewList() (Ref, error) { return in.make(starlark.NewList(nil)) }

// ListAppend appends item to list. The item reference is borrowed.
func (in *Interpreter) ListAppend(list, item Ref) error {
	lv, err := in.value(list)
	if err != nil {
		return err
	}
	iv, err := in.value(item)
	if err != nil {
		return err
	}
	l, ok := lv.(*starlark.List)
	if !ok {
		return raise("TypeError", "append: got %s, want list", lv.Type())
	}
	return translate(l.Append(iv))
}

func (in *Interpreter) NewDict() (Ref, error) { return in.make(starlark.NewDict(0)) }

// DictSetItem sets dict[key] = val. Both references are borrowed.
func (in *Interpreter) DictSetItem(dict, key, val Ref) error {
	dv, err := in.value(dict)
	if err != nil {
		return err
	}
	kv, err := in.value(key)
	if err != nil {
		return err
	}
	vv, err := in.value(val)
	if err != nil {
		return err
	}
	d, ok := dv.(*starlark.Dict)
	if !ok {
		return raise("TypeError", "setitem: got %s, want dict", dv.Type())
	}
	return translate(d.SetKey(kv, vv))
}

// NewTuple returns a tuple of n None items to be filled by SetTupleItem
// before it is shared.
func (in *Interpreter) NewTuple(n int) (Ref, error) {
	if n < 0 {
		return 0, raise("SystemError", "negative tuple size %d", n)
	}
	t := make(starlark.Tuple, n)
	for i := range t {
		t[i] = starlark.None
	}
	r, err := in.make(t)
	if err != nil {
		return 0, err
	}
	in.cells[r].owned = make([]Ref, n)
	return r, nil
}

// SetTupleItem stores item at position i of a tuple built by NewTuple. It
// steals the item reference, also when it fails.
func (in *Interpreter) SetTupleItem(tuple Ref, i int, item Ref) error {
	if in.closed {
		return ErrClosed
	}
	iv, err := in.value(item)
	if err != nil {
		return err
	}
	c, ok := in.cells[tuple]
	if !ok {
		in.DecRef(item)
		return raise("ReferenceError", "dead reference %#x", uintptr(tuple))
	}
	t, ok := c.value.(starlark.Tuple)
	if !ok || len(c.owned) != len(t) {
		in.DecRef(item)
		return raise("TypeError", "setitem: got %s, want tuple under construction", c.value.Type())
	}
	if i < 0 || i >= len(t) {
		in.DecRef(item)
		return raise("IndexError", "tuple index %d out of range [0:%d]", i, len(t))
	}
	if prev := c.owned[i]; prev != 0 {
		in.DecRef(prev)
	}
	t[i] = iv
	c.owned[i] = item
	return nil
}
