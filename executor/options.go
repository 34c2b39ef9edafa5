package executor

import (
	"io"
	"log/slog"
	"time"

	"github.com/caffeineduck/starbridge/hostfunc"
)

// Option configures a single Executor.Run call.
type Option func(*runConfig)

type runConfig struct {
	timeout time.Duration
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// ExecutorOption configures the Executor at creation time. Capabilities
// belong to the shared interpreter, so every session sees the same host
// modules.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	modulePath []string
	maxSteps   uint64
	kv         *hostfunc.KVConfig
	http       hostfunc.HTTPConfig
	mounts     []hostfunc.Mount
	logger     *slog.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithModulePath adds directories searched for NAME.star modules.
func WithModulePath(dirs ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.modulePath = append(c.modulePath, dirs...)
	}
}

// WithMaxSteps bounds the Starlark computation steps of each Run.
func WithMaxSteps(n uint64) ExecutorOption {
	return func(c *executorConfig) {
		c.maxSteps = n
	}
}

// WithKV enables the kv module with the given limits.
func WithKV(cfg hostfunc.KVConfig) ExecutorOption {
	return func(c *executorConfig) {
		c.kv = &cfg
	}
}

// WithAllowedHosts enables the http module for the listed hosts.
func WithAllowedHosts(hosts []string) ExecutorOption {
	return func(c *executorConfig) {
		c.http.AllowedHosts = hosts
	}
}

// WithHTTPConfig enables the http module with full control over its
// limits.
func WithHTTPConfig(cfg hostfunc.HTTPConfig) ExecutorOption {
	return func(c *executorConfig) {
		c.http = cfg
	}
}

// Mount permission modes (re-exported from hostfunc for convenience).
const (
	MountReadOnly        = hostfunc.MountReadOnly
	MountReadWrite       = hostfunc.MountReadWrite
	MountReadWriteCreate = hostfunc.MountReadWriteCreate
)

// WithMount adds a filesystem mount point with the specified permissions.
// The virtual path is what scripts see; host path is the actual location.
//
// Examples:
//
//	executor.WithMount("/data", "./input", executor.MountReadOnly)
//	executor.WithMount("/output", "./results", executor.MountReadWrite)
//	executor.WithMount("/workspace", "./work", executor.MountReadWriteCreate)
func WithMount(virtualPath, hostPath string, mode hostfunc.MountMode) ExecutorOption {
	return func(c *executorConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// WithLogger sets the logger for runtime lifecycle events.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	timeout time.Duration
	stdout  io.Writer
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout: 30 * time.Second,
	}
}

// WithSessionTimeout sets the maximum time of each Session.Run.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithSessionOutput copies console and print output to w as it is
// produced, in addition to collecting it in Result.Output.
func WithSessionOutput(w io.Writer) SessionOption {
	return func(c *sessionConfig) {
		c.stdout = w
	}
}
