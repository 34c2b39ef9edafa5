package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/starbridge/executor"
	"github.com/caffeineduck/starbridge/hostfunc"
)

var rootCmd = &cobra.Command{
	Use:   "starbridge [file]",
	Short: "JavaScript host for an embedded Starlark interpreter",
	Long: `starbridge - Script an embedded Starlark interpreter from JavaScript.

Scripts see a global "starlark" object (also available through
require("starlark")) that evaluates Starlark, imports modules and wraps
Starlark values as JavaScript handles. By default scripts have no access
to filesystem, network, or other system resources. Enable capabilities
explicitly with flags or a starbridge.toml file.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runRun, // Default to run command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default: ./starbridge.toml if present)")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.StringSlice("module-path", nil, "Directory searched for NAME.star modules (repeatable)")
	pf.Uint64("max-steps", 0, "Max Starlark steps per run, 0 for no limit")
	pf.Duration("timeout", 30*time.Second, "Execution timeout")
	pf.Bool("kv", false, "Enable key-value store")
	pf.StringSlice("allow-host", nil, "Allow HTTP to host (repeatable)")
	pf.StringSlice("mount", nil, "Mount filesystem virtual:host[:mode] (repeatable)")

	// Add run-specific flags to root (for default command)
	addRunFlags(rootCmd)
}

// newExecutor builds an Executor from the config file with command-line
// flags applied on top.
func newExecutor(cmd *cobra.Command) (*executor.Executor, *Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	level, _ := flags.GetString("log-level")
	logger, err := newLogger(cmd.ErrOrStderr(), level)
	if err != nil {
		return nil, nil, err
	}

	opts, err := cfg.executorOptions()
	if err != nil {
		return nil, nil, err
	}

	if flags.Changed("module-path") {
		dirs, _ := flags.GetStringSlice("module-path")
		opts = append(opts, executor.WithModulePath(dirs...))
	}
	if flags.Changed("max-steps") {
		n, _ := flags.GetUint64("max-steps")
		opts = append(opts, executor.WithMaxSteps(n))
	}
	if kv, _ := flags.GetBool("kv"); kv && !cfg.KV.Enabled {
		opts = append(opts, executor.WithKV(hostfunc.DefaultKVConfig()))
	}
	if flags.Changed("allow-host") {
		hosts, _ := flags.GetStringSlice("allow-host")
		opts = append(opts, executor.WithAllowedHosts(hosts))
	}
	mounts, _ := flags.GetStringSlice("mount")
	for _, spec := range mounts {
		m, err := hostfunc.ParseMount(spec)
		if err != nil {
			return nil, nil, err
		}
		host, err := filepath.Abs(m.HostPath)
		if err != nil {
			return nil, nil, fmt.Errorf("mount %s: %w", spec, err)
		}
		opts = append(opts, executor.WithMount(m.VirtualPath, host, m.Mode))
	}

	opts = append(opts, executor.WithLogger(logger))
	exec, err := executor.New(hostfunc.NewRegistry(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return exec, cfg, nil
}

// timeoutFor returns the --timeout flag when set, else the config value,
// else the flag default.
func timeoutFor(cmd *cobra.Command, cfg *Config) time.Duration {
	d, _ := cmd.Flags().GetDuration("timeout")
	if cmd.Flags().Changed("timeout") {
		return d
	}
	return cfg.duration(cfg.Timeout, d)
}
