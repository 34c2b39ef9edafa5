// Package hostfunc provides host modules callable from Starlark code.
//
// Host functions are Go functions that scripts reach through load(),
// giving controlled access to external resources like HTTP, the
// filesystem and a key-value store.
//
// # Overview
//
// Scripts have no implicit access to system resources. Each capability
// must be explicitly enabled via a [Registry] and appropriate configuration.
// A function registered as "kv.get" is exposed as member get of the
// Starlark module kv:
//
//	load("kv", "kv")
//	kv.set("greeting", {"text": "hi"})
//	print(kv.get("greeting")["text"])
//
// # Registry
//
// The [Registry] manages available host functions. The trailing arguments
// of Register name the parameters positional arguments bind to:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("util.greet", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "hello " + args["name"].(string), nil
//	}, "name")
//
// Arguments reach the function as plain Go values (see [FromStarlark]) and
// results are converted back with [ToStarlark].
//
// # Built-in Capabilities
//
// HTTP: Controlled network access via [HTTP] and [HTTPConfig].
//
//	hostfunc.NewHTTP(hostfunc.HTTPConfig{
//	    AllowedHosts: []string{"api.example.com"},
//	}).Register(registry)
//
// Filesystem: Mount-based access via [FS], [Mount], and [MountMode].
//
//	hostfunc.NewFS(
//	    hostfunc.Mount{VirtualPath: "/data", HostPath: "./input", Mode: hostfunc.MountReadOnly},
//	).Register(registry)
//
// Key-Value Store: In-memory storage via [KV] and [KVConfig].
//
//	hostfunc.NewKV(hostfunc.DefaultKVConfig()).Register(registry)
//
// # Security Model
//
// All host functions follow the principle of least privilege:
//   - HTTP requests are limited to explicitly allowed hosts
//   - Filesystem access is restricted to mounted paths with specific permissions
//   - All operations have configurable size limits to prevent resource exhaustion
//
// See the executor package for higher-level APIs that configure these
// capabilities automatically.
package hostfunc
