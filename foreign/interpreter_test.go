package foreign

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func excType(t *testing.T, err error) string {
	t.Helper()
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("expected *Exception, got %T: %v", err, err)
	}
	return exc.Type
}

func TestRefCounting(t *testing.T) {
	in := New()
	defer in.Close()

	r, err := in.NewList()
	if err != nil {
		t.Fatalf("NewList failed: %v", err)
	}
	if got := in.RefCount(r); got != 1 {
		t.Fatalf("expected refcount 1, got %d", got)
	}

	in.IncRef(r)
	if got := in.RefCount(r); got != 2 {
		t.Fatalf("expected refcount 2, got %d", got)
	}

	in.DecRef(r)
	in.DecRef(r)
	if in.Alive(r) {
		t.Error("expected cell to be freed at refcount 0")
	}
	if in.Live() != 0 {
		t.Errorf("expected no live cells, got %d", in.Live())
	}
}

func TestDecRefDeadPanics(t *testing.T) {
	in := New()
	defer in.Close()

	r, _ := in.NewDict()
	in.DecRef(r)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on double release")
		}
	}()
	in.DecRef(r)
}

func TestInterning(t *testing.T) {
	in := New()
	defer in.Close()

	a, err := in.Import("math")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	b, err := in.Import("math")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if a != b {
		t.Errorf("expected the same identity for the same module, got %#x and %#x", a, b)
	}
	if got := in.RefCount(a); got != 2 {
		t.Errorf("expected refcount 2, got %d", got)
	}
	in.DecRef(a)
	in.DecRef(b)

	x, _ := in.NewInt(7)
	y, _ := in.NewInt(7)
	if x == y {
		t.Error("expected scalars to get distinct cells")
	}
	in.DecRef(x)
	in.DecRef(y)
}

func TestOwned(t *testing.T) {
	in := New()
	defer in.Close()

	o, err := in.Own(in.NewString("hi"))
	if err != nil {
		t.Fatalf("Own failed: %v", err)
	}
	r := o.Ref()
	o.Release()
	o.Release()
	if in.Alive(r) {
		t.Error("expected released reference to be freed")
	}
	if o.Ref() != 0 {
		t.Error("expected released holder to be empty")
	}

	o, _ = in.Own(in.NewString("kept"))
	r = o.Steal()
	o.Release()
	if !in.Alive(r) {
		t.Fatal("expected stolen reference to survive Release")
	}
	in.DecRef(r)
}

func TestOwnFailure(t *testing.T) {
	in := New()
	defer in.Close()

	want := errors.New("boom")
	o, err := in.Own(0, want)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	o.Release()

	if _, err := in.Own(0, nil); err == nil {
		t.Error("expected error for a null reference")
	}
}

func TestTupleSteals(t *testing.T) {
	in := New()
	defer in.Close()

	tup, err := in.NewTuple(2)
	if err != nil {
		t.Fatalf("NewTuple failed: %v", err)
	}
	item, _ := in.NewList()
	if err := in.SetTupleItem(tup, 0, item); err != nil {
		t.Fatalf("SetTupleItem failed: %v", err)
	}
	s, _ := in.NewString("x")
	if err := in.SetTupleItem(tup, 1, s); err != nil {
		t.Fatalf("SetTupleItem failed: %v", err)
	}

	got, err := in.TupleItem(tup, 0)
	if err != nil {
		t.Fatalf("TupleItem failed: %v", err)
	}
	if got != item {
		t.Error("expected tuple item to resolve to the stolen identity")
	}
	in.DecRef(got)

	extra, _ := in.NewInt(1)
	err = in.SetTupleItem(tup, 5, extra)
	if excType(t, err) != "IndexError" {
		t.Errorf("expected IndexError, got %v", err)
	}
	if in.Alive(extra) {
		t.Error("expected SetTupleItem to steal the item on failure")
	}

	in.DecRef(tup)
	if in.Live() != 0 {
		t.Errorf("expected tuple to release its items, %d cells live", in.Live())
	}
}

func TestItemAccess(t *testing.T) {
	in := New()
	defer in.Close()

	seq, err := in.Eval(`(10, 20, 30)`, 0, 0)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	defer in.DecRef(seq)

	if n, ok := in.Len(seq); !ok || n != 3 {
		t.Errorf("expected length 3, got %d %v", n, ok)
	}
	if !in.Capabilities(seq).Has(CapFixedSequence | CapIndex | CapLen) {
		t.Errorf("unexpected capabilities %b", in.Capabilities(seq))
	}
	if _, err := in.TupleItem(seq, 5); excType(t, err) != "IndexError" {
		t.Errorf("expected IndexError, got %v", err)
	}
	if _, err := in.TupleItem(seq, -1); excType(t, err) != "IndexError" {
		t.Errorf("expected IndexError for negative tuple index, got %v", err)
	}

	last, err := in.Index(seq, -1)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if v, _ := in.Primitive(last); v != int64(30) {
		t.Errorf("expected 30, got %v", v)
	}
	in.DecRef(last)

	d, _ := in.Eval(`{"a": 1}`, 0, 0)
	defer in.DecRef(d)
	key, _ := in.NewString("missing")
	defer in.DecRef(key)
	if _, err := in.GetItem(d, key); excType(t, err) != "KeyError" {
		t.Errorf("expected KeyError, got %v", err)
	}

	sl, _ := in.Eval(`slice(1, None)`, 0, 0)
	defer in.DecRef(sl)
	sub, err := in.GetItem(seq, sl)
	if err != nil {
		t.Fatalf("slice failed: %v", err)
	}
	if s, _ := in.Repr(sub); s != "(20, 30)" {
		t.Errorf("expected (20, 30), got %s", s)
	}
	in.DecRef(sub)
}

func TestMappingColumns(t *testing.T) {
	in := New()
	defer in.Close()

	d, err := in.Eval(`{"a": 1, "b": 2}`, 0, 0)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	defer in.DecRef(d)

	for _, tt := range []struct {
		name string
		fn   func(Ref) (Ref, error)
		want string
	}{
		{"keys", in.Keys, `["a", "b"]`},
		{"values", in.Values, `[1, 2]`},
	} {
		r, err := tt.fn(d)
		if err != nil {
			t.Fatalf("%s failed: %v", tt.name, err)
		}
		if s, _ := in.Repr(r); s != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, s)
		}
		in.DecRef(r)
	}

	l, _ := in.NewList()
	defer in.DecRef(l)
	if _, err := in.Keys(l); excType(t, err) != "TypeError" {
		t.Errorf("expected TypeError for keys of a list, got %v", err)
	}
}

func TestBytes(t *testing.T) {
	in := New()
	defer in.Close()

	r, err := in.NewBytes([]byte("hi"))
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer in.DecRef(r)

	if in.Kind(r) != KindBytes {
		t.Errorf("expected bytes kind, got %s", in.Kind(r))
	}
	if _, ok := in.Primitive(r); ok {
		t.Error("bytes must not be a primitive")
	}
	if data, ok := in.Bytes(r); !ok || string(data) != "hi" {
		t.Errorf("expected hi, got %q %v", data, ok)
	}
	s, _ := in.NewString("hi")
	defer in.DecRef(s)
	if _, ok := in.Bytes(s); ok {
		t.Error("expected a string not to expose bytes")
	}
}

func TestSliceIndices(t *testing.T) {
	in := New()
	defer in.Close()

	tests := []struct {
		expr string
		want string
	}{
		{`slice(2)`, `"ab"`},
		{`slice(-2, None)`, `"de"`},
		{`slice(None, None, -1)`, `"edcba"`},
		{`slice(1, 4, 2)`, `"bd"`},
		{`slice(10, 20)`, `""`},
	}

	s, _ := in.NewString("abcde")
	defer in.DecRef(s)
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			key, err := in.Eval(tt.expr, 0, 0)
			if err != nil {
				t.Fatalf("eval failed: %v", err)
			}
			defer in.DecRef(key)
			got, err := in.GetItem(s, key)
			if err != nil {
				t.Fatalf("GetItem failed: %v", err)
			}
			defer in.DecRef(got)
			if repr, _ := in.Repr(got); repr != tt.want {
				t.Errorf("got %s, want %s", repr, tt.want)
			}
		})
	}
}

func TestEvalScopes(t *testing.T) {
	in := New()
	defer in.Close()

	globals, _ := in.NewDict()
	defer in.DecRef(globals)
	locals, _ := in.NewDict()
	defer in.DecRef(locals)

	set := func(d Ref, k string, v int64) {
		kr, _ := in.NewString(k)
		vr, _ := in.NewInt(v)
		if err := in.DictSetItem(d, kr, vr); err != nil {
			t.Fatalf("DictSetItem failed: %v", err)
		}
		in.DecRef(kr)
		in.DecRef(vr)
	}
	set(globals, "x", 1)
	set(globals, "y", 2)
	set(locals, "x", 10)

	r, err := in.Eval(`x + y`, globals, locals)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	defer in.DecRef(r)
	if v, _ := in.Primitive(r); v != int64(12) {
		t.Errorf("expected locals to shadow globals (12), got %v", v)
	}
}

func TestEvalErrors(t *testing.T) {
	in := New()
	defer in.Close()

	tests := []struct {
		src  string
		want string
	}{
		{`1 +`, "SyntaxError"},
		{`undefined_name`, "NameError"},
		{`[1][4]`, "IndexError"},
		{`{}["k"]`, "KeyError"},
		{`(1).nope`, "AttributeError"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			r, err := in.Eval(tt.src, 0, 0)
			if err == nil {
				in.DecRef(r)
				t.Fatal("expected error")
			}
			if got := excType(t, err); got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
	if in.Live() != 0 {
		t.Errorf("expected failed evals to leave no cells, got %d", in.Live())
	}
}

func TestCall(t *testing.T) {
	in := New()
	defer in.Close()

	fn, err := in.Builtin("dict")
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	defer in.DecRef(fn)

	args, _ := in.Own(in.NewTuple(0))
	defer args.Release()
	kwargs, _ := in.Own(in.NewDict())
	defer kwargs.Release()
	k, _ := in.NewString("a")
	v, _ := in.NewInt(1)
	in.DictSetItem(kwargs.Ref(), k, v)
	in.DecRef(k)
	in.DecRef(v)

	r, err := in.Call(fn, args.Ref(), kwargs.Ref())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	defer in.DecRef(r)
	if s, _ := in.Repr(r); s != `{"a": 1}` {
		t.Errorf("unexpected result %s", s)
	}

	if in.Callable(r) {
		t.Error("dict must not be callable")
	}
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("helper.star", "base = 40\n")
	write("greet.star", "load(\"helper.star\", \"base\")\nanswer = base + 2\n_hidden = 1\n")
	write("cycle.star", "load(\"cycle.star\", \"x\")\nx = 1\n")

	in := New(WithModulePath(dir))
	defer in.Close()

	mod, err := in.Import("greet")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	defer in.DecRef(mod)

	ans, found, err := in.LookupAttr(mod, "answer")
	if err != nil || !found {
		t.Fatalf("expected answer attribute, found=%v err=%v", found, err)
	}
	if v, _ := in.Primitive(ans); v != int64(42) {
		t.Errorf("expected 42, got %v", v)
	}
	in.DecRef(ans)

	if in.HasAttr(mod, "_hidden") {
		t.Error("expected private globals to stay hidden")
	}

	if _, err := in.Import("cycle"); excType(t, err) != "ImportError" {
		t.Errorf("expected ImportError for a cycle, got %v", err)
	}
	if _, err := in.Import("../etc"); excType(t, err) != "ImportError" {
		t.Errorf("expected ImportError for a path, got %v", err)
	}

	want := []string{"cycle", "greet", "helper", "json", "math", "time"}
	if diff := cmp.Diff(want, in.Modules()); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}
}

func TestEnterCancel(t *testing.T) {
	in := New()
	defer in.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	leave := in.Enter(ctx, nil)
	defer leave()

	mod, err := in.Exec("spin.star", "def spin():\n    while True:\n        pass\n")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	defer in.DecRef(mod)
	fn, _, _ := in.LookupAttr(mod, "spin")
	defer in.DecRef(fn)
	args, _ := in.Own(in.NewTuple(0))
	defer args.Release()

	_, err = in.Call(fn, args.Ref(), 0)
	if err == nil || !strings.Contains(err.Error(), "cancel") {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestMaxSteps(t *testing.T) {
	in := New(WithMaxSteps(10000))
	defer in.Close()
	leave := in.Enter(context.Background(), nil)
	defer leave()

	_, err := in.Eval(`[x for x in range(1000000)]`, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "too many steps") {
		t.Errorf("expected step limit error, got %v", err)
	}
}

func TestPrint(t *testing.T) {
	in := New()
	defer in.Close()

	var lines []string
	leave := in.Enter(context.Background(), func(s string) { lines = append(lines, s) })
	r, err := in.Eval(`print("hello", 1)`, 0, 0)
	leave()
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	in.DecRef(r)

	if diff := cmp.Diff([]string{"hello 1"}, lines); diff != "" {
		t.Errorf("print output mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseReportsLeaks(t *testing.T) {
	in := New()
	r, _ := in.NewList()
	if err := in.Close(); err == nil {
		t.Error("expected leak report")
	}
	in.DecRef(r)
	if _, err := in.NewNone(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := in.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}
