package bridge

import (
	"runtime"
	"sync"

	"github.com/dop251/goja"

	"github.com/caffeineduck/starbridge/foreign"
)

// handleKey marks JS handle objects. It is shared by every Bridge so a
// handle passed to the wrong one is recognized and rejected.
var handleKey = goja.NewSymbol("starlark.handle")

// Bridge connects one goja runtime to a foreign interpreter. It owns the
// identity store of that runtime and must only be used from the goroutine
// driving the runtime.
type Bridge struct {
	rt    *goja.Runtime
	in    *foreign.Interpreter
	store *store

	ctor  *goja.Object
	proto *goja.Object

	mu      sync.Mutex // guards pending and closed
	pending []*slot    // queued by GC cleanups, drained on the host goroutine
	closed  bool
}

// New creates a Bridge between rt and in.
func New(rt *goja.Runtime, in *foreign.Interpreter) *Bridge {
	b := &Bridge{rt: rt, in: in}
	b.store = newStore(b.releaseSlot)
	b.initClass()
	return b
}

// Runtime returns the host runtime.
func (b *Bridge) Runtime() *goja.Runtime { return b.rt }

// Interpreter returns the foreign interpreter.
func (b *Bridge) Interpreter() *foreign.Interpreter { return b.in }

// Live returns the number of registered wrappers.
func (b *Bridge) Live() int {
	return b.store.len()
}

// Collect destroys the wrappers reclaimed by the garbage collector since
// the last call. Every bridge operation starts with it.
func (b *Bridge) Collect() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, s := range pending {
		b.destroy(s)
	}
}

// Close detaches every wrapper, releasing its foreign reference. Handles
// that outlive the bridge report UsageError on use.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, s := range pending {
		b.destroy(s)
	}
	for _, s := range b.store.drain() {
		b.releaseSlot(s)
	}
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bridge) enter(op string) error {
	if b.isClosed() {
		return usageError(op, "bridge closed")
	}
	b.Collect()
	return nil
}

// enqueue runs on the cleanup goroutine. It only records the slot; the
// reference is released by the next Collect. Cleanups of wrappers that
// outlive Close are dropped.
func (b *Bridge) enqueue(s *slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pending = append(b.pending, s)
}

// destroy is the wrapper destructor: evict, then release, then clear.
func (b *Bridge) destroy(s *slot) {
	if s.ref == 0 {
		return
	}
	b.store.evict(s.ref, s)
	b.in.DecRef(s.ref)
	s.ref = 0
}

func (b *Bridge) releaseSlot(s *slot) {
	if s.ref == 0 {
		return
	}
	b.in.DecRef(s.ref)
	s.ref = 0
}

// wrap is the only place wrappers are created. It takes ownership of ref:
// an existing wrapper for the same identity is returned and ref released,
// otherwise a new wrapper owns it.
func (b *Bridge) wrap(op string, ref foreign.Ref, err error) (*Object, error) {
	if err != nil {
		return nil, failure(op, err)
	}
	if ref == 0 {
		return nil, usageError(op, "null foreign reference")
	}
	if obj, ok := b.store.lookup(ref); ok {
		b.in.DecRef(ref)
		return obj, nil
	}

	s := &slot{ref: ref}
	obj := &Object{b: b, slot: s}
	h := b.rt.NewObject()
	if err := h.SetPrototype(b.proto); err != nil {
		b.in.DecRef(ref)
		return nil, failure(op, err)
	}
	if err := h.DefineDataPropertySymbol(handleKey, b.rt.ToValue(obj), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		b.in.DecRef(ref)
		return nil, failure(op, err)
	}
	obj.js = h

	b.store.register(ref, obj)
	runtime.AddCleanup(obj, b.enqueue, s)
	return obj, nil
}

// unwrap returns the wrapper behind a JS handle of this bridge.
func (b *Bridge) unwrap(v goja.Value) (*Object, bool) {
	o, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	hv := o.GetSymbol(handleKey)
	if hv == nil {
		return nil, false
	}
	obj, ok := hv.Export().(*Object)
	return obj, ok
}

// Object returns the wrapper behind v when v is a handle of this bridge.
func (b *Bridge) Object(v goja.Value) (*Object, bool) {
	obj, ok := b.unwrap(v)
	if !ok || obj.b != b {
		return nil, false
	}
	return obj, true
}
