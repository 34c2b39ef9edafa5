package executor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/starbridge/hostfunc"
)

func newTestSession(t *testing.T, registry *hostfunc.Registry, opts ...SessionOption) *Session {
	t.Helper()
	exec, err := New(registry)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	t.Cleanup(func() { exec.Close() })

	session, err := exec.NewSession(opts...)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestSessionBasic(t *testing.T) {
	session := newTestSession(t, hostfunc.NewRegistry())

	result := session.Run(context.Background(), `console.log("hello", starlark.eval("'world'"))`)
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	if result.Output != "hello world\n" {
		t.Errorf("expected 'hello world', got: %q", result.Output)
	}
}

func TestSessionStatePersists(t *testing.T) {
	session := newTestSession(t, hostfunc.NewRegistry())

	result := session.Run(context.Background(), `var m = starlark.import("math")`)
	if result.Error != nil {
		t.Fatalf("first run failed: %v", result.Error)
	}

	result = session.Run(context.Background(), `m.get("floor").call(2.5)`)
	if result.Error != nil {
		t.Fatalf("second run failed: %v", result.Error)
	}
	if result.Value != "2" {
		t.Errorf("expected '2', got: %q", result.Value)
	}
}

func TestSessionRequire(t *testing.T) {
	session := newTestSession(t, hostfunc.NewRegistry())

	result := session.Run(context.Background(), `
var sl = require("starlark");
sl.import("json") === starlark.import("json")
`)
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	if result.Value != "true" {
		t.Errorf("expected require and the global to share handles, got %q", result.Value)
	}
}

func TestSessionPrintCaptured(t *testing.T) {
	var stream bytes.Buffer
	session := newTestSession(t, hostfunc.NewRegistry(), WithSessionOutput(&stream))

	result := session.Run(context.Background(), `starlark.eval("print('from starlark')"); console.log("from js")`)
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	want := "from starlark\nfrom js\n"
	if result.Output != want {
		t.Errorf("expected %q, got %q", want, result.Output)
	}
	if stream.String() != want {
		t.Errorf("expected streamed output %q, got %q", want, stream.String())
	}

	// Output is per run.
	result = session.Run(context.Background(), `1`)
	if result.Output != "" {
		t.Errorf("expected empty output, got %q", result.Output)
	}
}

func TestSessionForeignErrorCaught(t *testing.T) {
	session := newTestSession(t, hostfunc.NewRegistry())

	result := session.Run(context.Background(), `
var got;
try {
    starlark.eval("{}['x']");
} catch (e) {
    got = e.name + ":" + e.foreignType;
}
got
`)
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	if result.Value != "ForeignRuntimeError:KeyError" {
		t.Errorf("unexpected error shape %q", result.Value)
	}
}

func TestSessionBusy(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	registry := hostfunc.NewRegistry()
	registry.Register("sync.wait", func(ctx context.Context, args map[string]any) (any, error) {
		close(started)
		<-unblock
		return nil, nil
	})
	session := newTestSession(t, registry)

	done := make(chan Result, 1)
	go func() {
		done <- session.Run(context.Background(), `starlark.import("sync").get("wait").call()`)
	}()
	<-started

	if result := session.Run(context.Background(), `1`); !errors.Is(result.Error, ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy, got %v", result.Error)
	}
	close(unblock)

	if result := <-done; result.Error != nil {
		t.Errorf("blocked run failed: %v", result.Error)
	}
}

func TestSessionHostFunctionSeesContext(t *testing.T) {
	registry := hostfunc.NewRegistry()
	registry.Register("ctx.deadline", func(ctx context.Context, args map[string]any) (any, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	session := newTestSession(t, registry, WithSessionTimeout(time.Minute))

	result := session.Run(context.Background(), `starlark.import("ctx").get("deadline").call()`)
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	if result.Value != "true" {
		t.Errorf("expected the run deadline to reach the host function, got %q", result.Value)
	}
}

func TestSessionClosed(t *testing.T) {
	session := newTestSession(t, hostfunc.NewRegistry())

	if err := session.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	result := session.Run(context.Background(), `1`)
	if !errors.Is(result.Error, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", result.Error)
	}
}

func TestSessionCloseReleasesHandles(t *testing.T) {
	exec, err := New(hostfunc.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	defer exec.Close()

	keep, err := exec.NewSession()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	defer keep.Close()

	session, err := exec.NewSession()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	result := session.Run(context.Background(), `
var l = starlark.list([1, 2]);
var d = starlark.dict({a: 1});
var j = starlark.import("json");
`)
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	if n := session.Live(); n != 3 {
		t.Errorf("expected 3 live handles, got %d", n)
	}
	before := exec.in.Live()

	// The other session holds its own handle to the same module.
	if result := keep.Run(context.Background(), `var j = starlark.import("json")`); result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}

	session.Close()
	if n := exec.in.Live(); n != before-2 {
		t.Errorf("expected close to free the list and dict cells, live went from %d to %d", before, n)
	}

	result = keep.Run(context.Background(), `j.get("encode").call([1, "a"])`)
	if result.Error != nil {
		t.Fatalf("surviving session failed: %v", result.Error)
	}
	if result.Value != `[1,"a"]` {
		t.Errorf("unexpected encoding %q", result.Value)
	}
}

func TestSessionTimeoutThenReuse(t *testing.T) {
	session := newTestSession(t, hostfunc.NewRegistry(), WithSessionTimeout(100*time.Millisecond))

	result := session.Run(context.Background(), `while (true) {}`)
	if result.Error == nil || !strings.Contains(result.Error.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", result.Error)
	}

	result = session.Run(context.Background(), `starlark.eval("1 + 1")`)
	if result.Error != nil {
		t.Fatalf("run after timeout failed: %v", result.Error)
	}
	if result.Value != "2" {
		t.Errorf("expected '2', got %q", result.Value)
	}
}
