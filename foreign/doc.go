// Package foreign embeds a Starlark interpreter behind a reference counted
// object heap.
//
// Every Starlark value handed out by an Interpreter lives in a heap cell
// whose address is its identity (a Ref). Reference-typed values such as
// lists, dicts, functions and modules are interned, so the same value
// resolves to the same Ref for as long as its cell is alive. Scalars get a
// fresh cell each time.
//
// Functions that return a Ref return a new strong reference. The caller
// releases it with DecRef or hands it to a function documented as stealing
// it, such as SetTupleItem. Owned makes the release scope-bound:
//
//	args, err := in.Own(in.NewTuple(1))
//	if err != nil {
//		return err
//	}
//	defer args.Release()
//
// Failures raised by Starlark code are returned as *Exception.
package foreign
