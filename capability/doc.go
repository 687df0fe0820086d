// Package capability provides the host capabilities a sandboxed module
// imports from the bridge namespace: console output, clocks, number
// parsing, JSON, regular expressions, timers and fetch.
//
// Timers and microtasks call back into the module through the
// "$invokeCallback" export with the i32 the module supplied when
// scheduling. Fetch returns a future that settles on the instance loop.
package capability
