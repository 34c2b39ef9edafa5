package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"

	"github.com/caffeineduck/starbridge/bridge"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionBusy   = errors.New("session busy")
)

// Session is one JavaScript execution context: a goja runtime bridged to
// the executor's interpreter. Global state persists across Run calls.
type Session struct {
	exec   *Executor
	cfg    sessionConfig
	rt     *goja.Runtime
	bridge *bridge.Bridge
	output *sessionOutput

	// runMu guards closed and serializes Run and Close.
	runMu  sync.Mutex
	closed bool
}

// NewSession opens a session. The script sees the bridge both as the
// global "starlark" and through require("starlark"), and console output
// is captured into Result.Output.
func (e *Executor) NewSession(opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	in, err := e.acquire()
	if err != nil {
		return nil, err
	}

	s := &Session{
		exec:   e,
		cfg:    cfg,
		rt:     goja.New(),
		output: &sessionOutput{},
	}
	s.bridge = bridge.New(s.rt, in)

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(console.StdPrinter{
		StdoutPrint: s.print,
		StderrPrint: s.print,
	}))
	registry.RegisterNativeModule(bridge.ModuleName, s.bridge.Loader())
	registry.Enable(s.rt)
	console.Enable(s.rt)

	if err := s.rt.Set(bridge.ModuleName, s.bridge.Exports()); err != nil {
		s.bridge.Close()
		e.release()
		return nil, fmt.Errorf("install bridge: %w", err)
	}
	return s, nil
}

func (s *Session) print(msg string) {
	s.output.WriteString(msg + "\n")
	if s.cfg.stdout != nil {
		io.WriteString(s.cfg.stdout, msg+"\n")
	}
}

// Run executes code in the session. A Run issued while another is in
// progress fails with ErrSessionBusy.
func (s *Session) Run(ctx context.Context, code string) Result {
	start := time.Now()

	if !s.runMu.TryLock() {
		return Result{Error: ErrSessionBusy, Duration: time.Since(start)}
	}
	defer s.runMu.Unlock()

	if s.closed {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.exec.gil.Lock()
	defer s.exec.gil.Unlock()

	s.output.Reset()
	leave := s.bridge.Interpreter().Enter(ctx, s.print)
	defer leave()
	stop := context.AfterFunc(ctx, func() {
		s.rt.Interrupt(context.Cause(ctx))
	})

	v, err := s.rt.RunString(code)
	var value string
	if err == nil {
		value, err = s.stringify(v)
	}

	stop()
	s.rt.ClearInterrupt()
	s.bridge.Collect()

	result := Result{
		Output:   s.output.String(),
		Value:    value,
		Duration: time.Since(start),
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Error = fmt.Errorf("timeout after %v", s.cfg.timeout)
		} else {
			result.Error = err
		}
	}
	return result
}

func (s *Session) stringify(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) {
		return "", nil
	}
	var out string
	if ex := s.rt.Try(func() { out = v.String() }); ex != nil {
		return "", ex
	}
	return out, nil
}

// Live returns the number of foreign objects the session's scripts hold
// handles to.
func (s *Session) Live() int {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.bridge.Live()
}

// Close detaches every handle of the session, releasing the foreign
// objects behind them. It waits for a Run in progress.
func (s *Session) Close() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.exec.gil.Lock()
	s.bridge.Close()
	s.exec.gil.Unlock()

	s.exec.release()
	return nil
}

type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (o *sessionOutput) WriteString(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.WriteString(s)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}
