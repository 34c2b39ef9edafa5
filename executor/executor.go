package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/caffeineduck/starbridge/foreign"
	"github.com/caffeineduck/starbridge/hostfunc"
)

// ErrExecutorClosed is returned when creating a session on a closed
// Executor.
var ErrExecutorClosed = errors.New("executor closed")

// Result holds the output and metadata from code execution.
type Result struct {
	Output   string
	Value    string // string form of the completion value, empty for undefined
	Duration time.Duration
	Error    error
}

// Executor owns the embedded Starlark interpreter shared by its sessions.
// The interpreter exists while at least one session is open: the first
// session initializes it and closing the last one finalizes it.
type Executor struct {
	cfg      executorConfig
	registry *hostfunc.Registry
	log      *slog.Logger

	mu     sync.Mutex
	live   int
	in     *foreign.Interpreter
	closed bool

	// gil serializes every use of the interpreter across sessions.
	gil sync.Mutex
}

// New creates an Executor. Functions in registry are exposed as Starlark
// modules alongside the capabilities enabled by opts.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, dir := range cfg.modulePath {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("module path: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("module path %s: not a directory", dir)
		}
	}

	reg := hostfunc.NewRegistry()
	if cfg.kv != nil {
		hostfunc.NewKV(*cfg.kv).Register(reg)
	}
	if len(cfg.http.AllowedHosts) > 0 {
		hostfunc.NewHTTP(cfg.http).Register(reg)
	}
	if len(cfg.mounts) > 0 {
		hostfunc.NewFS(cfg.mounts...).Register(reg)
	}
	reg.Merge(registry)

	return &Executor{
		cfg:      cfg,
		registry: reg,
		log:      cfg.logger,
	}, nil
}

// Run executes code in a fresh session that is closed afterwards.
func (e *Executor) Run(ctx context.Context, code string, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := e.NewSession(WithSessionTimeout(cfg.timeout))
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}
	defer s.Close()

	result := s.Run(ctx, code)
	result.Duration = time.Since(start)
	return result
}

// Modules returns the names importable from Starlark: host modules,
// library modules and .star files on the module path.
func (e *Executor) Modules() ([]string, error) {
	in, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer e.release()

	e.gil.Lock()
	defer e.gil.Unlock()
	return in.Modules(), nil
}

// Live returns the number of open sessions.
func (e *Executor) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// acquire registers a live execution context, initializing the runtime
// for the first one.
func (e *Executor) acquire() (*foreign.Interpreter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}
	if e.live == 0 {
		e.initializeRuntime()
	}
	e.live++
	return e.in, nil
}

// release drops a live execution context, finalizing the runtime after
// the last one.
func (e *Executor) release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.live--
	if e.live == 0 {
		e.finalizeRuntime()
	}
}

func (e *Executor) initializeRuntime() {
	opts := []foreign.Option{
		foreign.WithModulePath(e.cfg.modulePath...),
		foreign.WithMaxSteps(e.cfg.maxSteps),
	}
	modules := e.registry.Modules()
	for _, name := range modules {
		opts = append(opts, foreign.WithModule(name, e.registry.Module(name)))
	}
	e.in = foreign.New(opts...)
	e.log.Debug("runtime initialized", "host_modules", modules, "module_path", e.cfg.modulePath)
}

func (e *Executor) finalizeRuntime() {
	if err := e.in.Close(); err != nil {
		e.log.Warn("runtime finalized with live objects", "error", err)
	} else {
		e.log.Debug("runtime finalized")
	}
	e.in = nil
}

// Close prevents new sessions. The runtime is finalized when the last
// open session closes; Close reports the sessions still open.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.live > 0 {
		return fmt.Errorf("executor closed with %d open session(s)", e.live)
	}
	return nil
}
