// Package wasmbridge runs sandboxed WebAssembly modules that were compiled
// to talk to a dynamic host through externref handles.
//
// A module sees host values only as opaque handles. It reads and writes them
// through imported slots: property access, calls, buffer copies, string
// operations and a small set of host capabilities such as timers, JSON,
// regular expressions and fetch. Host callbacks into the module go through
// trampoline exports, and values the module registers for finalization are
// reported back once they are collected.
//
// # Architecture Overview
//
//	wasmbridge/          One-shot Run helper
//	├── runtime/         Loader, artifacts, instances, fragments
//	├── imports/         Import table builder and slot marshalling
//	├── heap/            Reference counted handle table
//	├── value/           Host value model (objects, arrays, buffers, futures)
//	├── marshal/         Linear memory and buffer copies
//	├── jsstring/        String codec, builtin and polyfill tables
//	├── callback/        Callback wrappers and finalization registries
//	├── capability/      Host capabilities (console, clock, JSON, timers, fetch)
//	├── eventloop/       Per-instance task, microtask and timer loop
//	├── engine/          wazero integration
//	├── transport/       HTTP client for module and fetch traffic
//	├── config/          Environment and YAML configuration
//	├── metrics/         Prometheus collectors
//	├── wasm/            Binary reader, stream validation and test builder
//	└── errors/          Structured error types
//
// # Quick Start
//
//	bin, _ := os.ReadFile("app.wasm")
//	res, err := wasmbridge.Run(ctx, nil, bin, nil, "arg")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Use package runtime directly to compile once and instantiate many times,
// to stream modules from a reader or URL, or to load deferred and dynamic
// fragments.
//
// # Thread Safety
//
// Runtime and Artifact are safe for concurrent use. An Instance runs its
// module and event loop on the calling goroutine and must not be driven
// from two goroutines at once.
//
// # Memory Model
//
// Handles handed to the module stay live until the module releases them or
// the instance is closed. Closing an instance releases every handle it still
// holds, so long-lived hosts should recycle instances rather than rely on
// the module to balance its references.
package wasmbridge
