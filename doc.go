// Package starbridge lets JavaScript running in goja drive an embedded
// Starlark interpreter.
//
// # Overview
//
// Starlark values cross into JavaScript as handles: objects that keep the
// underlying value alive for as long as the JavaScript side can reach them.
// The same Starlark value always comes back as the same handle, so ===
// works across calls. Handles the garbage collector reclaims release their
// reference the next time the bridge is used; Go code can also release a
// handle explicitly. Plain JavaScript data is copied into fresh Starlark
// values on every call.
//
// # Basic Usage
//
//	exec, _ := executor.New(hostfunc.NewRegistry())
//	defer exec.Close()
//
//	// Stateless execution
//	result := exec.Run(ctx, `console.log(starlark.eval("1 + 2"))`)
//	fmt.Println(result.Output) // 3
//
//	// Session with persistent state
//	session, _ := exec.NewSession()
//	session.Run(ctx, `var xs = starlark.eval("[1, 2, 3]")`)
//	session.Run(ctx, `xs.length`) // 3
//
// # Enabling Capabilities
//
// Scripts start with no access to the host. Capabilities are Starlark
// modules enabled per executor:
//
//	exec, _ := executor.New(registry,
//	    executor.WithKV(hostfunc.DefaultKVConfig()),
//	    executor.WithAllowedHosts([]string{"api.example.com"}),
//	    executor.WithMount("/data", "./input", hostfunc.MountReadOnly))
//
// See the [executor], [bridge], [foreign] and [hostfunc] packages for
// detailed API documentation.
package starbridge
