// Package executor runs JavaScript that drives an embedded Starlark
// interpreter through the bridge package.
//
// # Overview
//
// An [Executor] owns the interpreter and the host modules it exposes. It
// supports both stateless execution (single Run call) and stateful
// sessions (multiple Run calls with persistent state). The interpreter is
// created when the first session opens and torn down when the last one
// closes, reporting any foreign objects still referenced at that point.
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Run(ctx, `console.log(starlark.eval("[x * x for x in range(4)]").toString())`)
//	fmt.Println(result.Output) // [0, 1, 4, 9]
//
// # Sessions
//
// Sessions maintain state across multiple executions:
//
//	session, err := exec.NewSession()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Run(ctx, `const m = starlark.import("math")`)
//	session.Run(ctx, `console.log(m.get("sqrt").call(16))`) // Output: 4
//
// Closing a session releases every foreign object its scripts still hold.
//
// # Capabilities
//
// By default, scripts have no access to filesystem, network, or other
// system resources. Enable capabilities explicitly:
//
//	exec, _ := executor.New(hostfunc.NewRegistry(),
//	    executor.WithAllowedHosts([]string{"api.example.com"}),
//	    executor.WithMount("/data", "./input", hostfunc.MountReadOnly),
//	    executor.WithKV(hostfunc.DefaultKVConfig()),
//	)
package executor
