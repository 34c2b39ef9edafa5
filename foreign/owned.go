package foreign

// Owned holds one strong reference and releases it exactly once. Callers
// defer Release right after a successful Own; handing the reference to a
// stealing API goes through Steal, which disarms the holder.
type Owned struct {
	in  *Interpreter
	ref Ref
}

// Own takes ownership of the result pair of a reference-returning call.
// A failed call (non-nil err or zero ref) yields the error and holds
// nothing.
func (in *Interpreter) Own(ref Ref, err error) (*Owned, error) {
	if err != nil {
		if ref != 0 {
			in.DecRef(ref)
		}
		return nil, err
	}
	if ref == 0 {
		return nil, raise("SystemError", "null reference without a pending error")
	}
	return &Owned{in: in, ref: ref}, nil
}

// Ref returns the held reference without transferring ownership. It is
// zero once the holder is released or stolen.
func (o *Owned) Ref() Ref {
	if o == nil {
		return 0
	}
	return o.ref
}

// Steal transfers the reference to the caller and disarms the holder.
func (o *Owned) Steal() Ref {
	if o == nil {
		return 0
	}
	r := o.ref
	o.ref = 0
	return r
}

// Release drops the reference if the holder is still armed.
func (o *Owned) Release() {
	if o == nil || o.ref == 0 {
		return
	}
	r := o.ref
	o.ref = 0
	o.in.DecRef(r)
}
