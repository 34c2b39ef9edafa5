package foreign

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ErrClosed is returned by every operation on a closed Interpreter.
var ErrClosed = errors.New("foreign: interpreter closed")

// Ref is the identity of a foreign object: the address of its heap cell.
// The zero Ref is the null sentinel returned alongside an error.
type Ref uintptr

type cell struct {
	value  starlark.Value
	refcnt int
	key    any   // intern key, nil when the value is not interned
	owned  []Ref // references stolen by a tuple under construction
}

// Interpreter is the embedded Starlark interpreter behind a reference
// counted object heap. Every foreign object handed out is a cell with an
// explicit refcount; releasing the last strong reference frees the cell.
//
// An Interpreter is not safe for concurrent use.
type Interpreter struct {
	cfg         config
	fileOptions *syntax.FileOptions
	predeclared starlark.StringDict

	cells    map[Ref]*cell
	interned map[any]Ref
	modules  map[string]*moduleEntry

	current *starlark.Thread
	print   func(string)
	closed  bool
}

type config struct {
	modulePath []string
	modules    map[string]starlark.Value
	maxSteps   uint64
	print      func(string)
}

// Option configures an Interpreter.
type Option func(*config)

// WithModulePath adds directories searched for NAME.star files by Import
// and load().
func WithModulePath(dirs ...string) Option {
	return func(c *config) {
		c.modulePath = append(c.modulePath, dirs...)
	}
}

// WithModule makes a host-provided module importable under name.
func WithModule(name string, module starlark.Value) Option {
	return func(c *config) {
		if c.modules == nil {
			c.modules = make(map[string]starlark.Value)
		}
		c.modules[name] = module
	}
}

// WithMaxSteps bounds the computation steps taken between Enter and the
// matching leave. Zero means unlimited.
func WithMaxSteps(n uint64) Option {
	return func(c *config) {
		c.maxSteps = n
	}
}

// WithPrint sets the default handler for the print builtin.
func WithPrint(fn func(string)) Option {
	return func(c *config) {
		c.print = fn
	}
}

// New creates an Interpreter with an empty heap.
func New(opts ...Option) *Interpreter {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	in := &Interpreter{
		cfg: cfg,
		fileOptions: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
		cells:    make(map[Ref]*cell),
		interned: make(map[any]Ref),
		modules:  make(map[string]*moduleEntry),
		print:    cfg.print,
	}
	in.predeclared = predeclared()
	return in
}

// Close frees every remaining cell. It reports the cells still alive at
// close time as a leak; the interpreter is unusable afterwards either way.
func (in *Interpreter) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true
	leaked := len(in.cells)
	in.cells = nil
	in.interned = nil
	in.modules = nil
	if leaked > 0 {
		return fmt.Errorf("foreign: %d object(s) still referenced at close", leaked)
	}
	return nil
}

// Closed reports whether Close has been called.
func (in *Interpreter) Closed() bool {
	return in.closed
}

// Live returns the number of live cells.
func (in *Interpreter) Live() int {
	return len(in.cells)
}

// IncRef acquires an additional strong reference to r.
func (in *Interpreter) IncRef(r Ref) {
	if in.closed {
		return
	}
	c, ok := in.cells[r]
	if !ok {
		panic(fmt.Sprintf("foreign: IncRef of dead reference %#x", uintptr(r)))
	}
	c.refcnt++
}

// DecRef releases one strong reference to r, freeing the cell when the
// count drops to zero. Releasing a reference that is not alive panics:
// it is always a double release.
func (in *Interpreter) DecRef(r Ref) {
	if in.closed {
		return
	}
	c, ok := in.cells[r]
	if !ok {
		panic(fmt.Sprintf("foreign: DecRef of dead reference %#x", uintptr(r)))
	}
	c.refcnt--
	if c.refcnt > 0 {
		return
	}
	delete(in.cells, r)
	if c.key != nil && in.interned[c.key] == r {
		delete(in.interned, c.key)
	}
	for _, child := range c.owned {
		if child != 0 {
			in.DecRef(child)
		}
	}
}

// RefCount returns the number of strong references held on r, or zero if
// the cell is not alive.
func (in *Interpreter) RefCount(r Ref) int {
	if in.closed {
		return 0
	}
	if c, ok := in.cells[r]; ok {
		return c.refcnt
	}
	return 0
}

// Alive reports whether r names a live cell.
func (in *Interpreter) Alive(r Ref) bool {
	if in.closed {
		return false
	}
	_, ok := in.cells[r]
	return ok
}

// newRef returns a new strong reference to v, reusing the cell of an
// interned value that is already alive.
func (in *Interpreter) newRef(v starlark.Value) Ref {
	key := internKey(v)
	if key != nil {
		if r, ok := in.interned[key]; ok {
			in.cells[r].refcnt++
			return r
		}
	}
	c := &cell{value: v, refcnt: 1, key: key}
	r := Ref(uintptr(unsafe.Pointer(c)))
	in.cells[r] = c
	if key != nil {
		in.interned[key] = r
	}
	return r
}

type tupleKey struct {
	first *starlark.Value
	n     int
}

// internKey returns the identity key of reference-typed values. Scalars
// have no identity and get a fresh cell each time they cross.
func internKey(v starlark.Value) any {
	if t, ok := v.(starlark.Tuple); ok {
		if len(t) == 0 {
			return nil
		}
		return tupleKey{first: &t[0], n: len(t)}
	}
	if reflect.TypeOf(v).Kind() == reflect.Pointer {
		return v
	}
	return nil
}

func (in *Interpreter) value(r Ref) (starlark.Value, error) {
	if in.closed {
		return nil, ErrClosed
	}
	c, ok := in.cells[r]
	if !ok {
		return nil, raise("ReferenceError", "dead reference %#x", uintptr(r))
	}
	return c.value, nil
}

// Enter binds ctx to the foreign operations performed until the returned
// function is called: cancellation of ctx cancels running Starlark code and
// print output goes to printFn when it is non-nil.
func (in *Interpreter) Enter(ctx context.Context, printFn func(string)) (leave func()) {
	prevThread, prevPrint := in.current, in.print
	if printFn != nil {
		in.print = printFn
	}
	th := in.newThread(ctx)
	in.current = th
	stop := context.AfterFunc(ctx, func() {
		th.Cancel(context.Cause(ctx).Error())
	})
	return func() {
		stop()
		in.current, in.print = prevThread, prevPrint
	}
}

const contextKey = "starbridge.context"

// ContextOf returns the context bound to a thread by Enter.
func ContextOf(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func (in *Interpreter) thread() *starlark.Thread {
	if in.current != nil {
		return in.current
	}
	return in.newThread(context.Background())
}

func (in *Interpreter) newThread(ctx context.Context) *starlark.Thread {
	th := &starlark.Thread{
		Name: "starbridge",
		Print: func(_ *starlark.Thread, msg string) {
			if in.print != nil {
				in.print(msg)
			}
		},
		Load: in.load,
	}
	th.SetLocal(contextKey, ctx)
	if in.cfg.maxSteps > 0 {
		th.SetMaxExecutionSteps(in.cfg.maxSteps)
	}
	return th
}
