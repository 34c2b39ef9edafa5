// Package bridge exposes foreign (Starlark) objects to goja scripts.
//
// Every foreign object that crosses into JS is represented by exactly one
// handle per Bridge, no matter how often it crosses. The handle's wrapper
// owns one strong foreign reference. When the Go garbage collector
// reclaims the wrapper, a cleanup queues its reference, which the next
// bridge operation releases after evicting the identity store entry.
//
// From JS the bridge is used through require("starlark"):
//
//	const sl = require("starlark");
//	const math = sl.import("math");
//	math.get("sqrt").call(16); // 4
//	const d = sl.dict({a: 1});
//	d.item("a"); // 1
//	const sqrt = math.toJS().sqrt; // a plain JS function
//	sqrt(9); // 3
//
// A trailing plain object passed to call supplies keyword arguments.
package bridge
