package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/caffeineduck/starbridge/executor"
	"github.com/caffeineduck/starbridge/hostfunc"
)

const configFile = "starbridge.toml"

// Config represents a starbridge.toml file. Command-line flags override
// every field they correspond to.
type Config struct {
	ModulePath []string `toml:"module-path"`
	Timeout    string   `toml:"timeout"`
	MaxSteps   uint64   `toml:"max-steps"`
	Mounts     []string `toml:"mounts"`

	KV    KVSection    `toml:"kv"`
	HTTP  HTTPSection  `toml:"http"`
	Serve ServeSection `toml:"serve"`

	// Dir is the directory containing the file; relative paths are
	// resolved against it.
	Dir string `toml:"-"`
}

type KVSection struct {
	Enabled      bool `toml:"enabled"`
	MaxKeySize   int  `toml:"max-key-size"`
	MaxValueSize int  `toml:"max-value-size"`
	MaxEntries   int  `toml:"max-entries"`
}

type HTTPSection struct {
	AllowedHosts []string `toml:"allowed-hosts"`
	MaxBodySize  int64    `toml:"max-body-size"`
	MaxURLLength int      `toml:"max-url-length"`
	Timeout      string   `toml:"timeout"`
}

type ServeSection struct {
	Port       int    `toml:"port"`
	SessionTTL string `toml:"session-ttl"`
}

// loadConfig reads path, or starbridge.toml in the working directory when
// path is empty. A missing default file yields an empty Config.
func loadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = configFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return &Config{Dir: "."}, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir = filepath.Dir(path)

	for _, d := range []struct {
		name  string
		value string
	}{
		{"timeout", c.Timeout},
		{"http.timeout", c.HTTP.Timeout},
		{"serve.session-ttl", c.Serve.SessionTTL},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, d.name, err)
		}
	}
	return &c, nil
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

func (c *Config) duration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// executorOptions translates the capability settings of c.
func (c *Config) executorOptions() ([]executor.ExecutorOption, error) {
	var opts []executor.ExecutorOption

	var dirs []string
	for _, dir := range c.ModulePath {
		dirs = append(dirs, c.resolve(dir))
	}
	if len(dirs) > 0 {
		opts = append(opts, executor.WithModulePath(dirs...))
	}
	if c.MaxSteps > 0 {
		opts = append(opts, executor.WithMaxSteps(c.MaxSteps))
	}

	if c.KV.Enabled {
		opts = append(opts, executor.WithKV(hostfunc.KVConfig{
			MaxKeySize:   c.KV.MaxKeySize,
			MaxValueSize: c.KV.MaxValueSize,
			MaxEntries:   c.KV.MaxEntries,
		}))
	}

	if len(c.HTTP.AllowedHosts) > 0 {
		opts = append(opts, executor.WithHTTPConfig(hostfunc.HTTPConfig{
			AllowedHosts:   c.HTTP.AllowedHosts,
			MaxBodySize:    c.HTTP.MaxBodySize,
			MaxURLLength:   c.HTTP.MaxURLLength,
			RequestTimeout: c.duration(c.HTTP.Timeout, 0),
		}))
	}

	for _, spec := range c.Mounts {
		m, err := hostfunc.ParseMount(spec)
		if err != nil {
			return nil, err
		}
		opts = append(opts, executor.WithMount(m.VirtualPath, c.resolve(m.HostPath), m.Mode))
	}
	return opts, nil
}
