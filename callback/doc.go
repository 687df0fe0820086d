// Package callback lets host code call module functions and observe the
// collection of host values the module registered interest in.
//
// A module hands the host a function reference through a generator slot,
// which returns a *Callback. Invoking it calls back into the module through
// the trampoline export named after the slot. A Registry mirrors a
// finalization registry: targets are watched with runtime cleanups and the
// cleanup callback runs on the event loop.
package callback
