// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The four failure classes callers deal with are:
//
//	compile/compilation        malformed bytes, unsupported builtin request
//	instantiate/instantiation  unresolved import slot, binding failure
//	marshal/*                  out-of-range region, element kind mismatch
//	host/host_capability       a wrapped host operation failed
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
//		Path("bridge", "_1423").
//		Detail("copy of %d bytes past end of memory", n).
//		Build()
//
// Match classes with the sentinels:
//
//	if errors.Is(err, errors.ErrInstantiation) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
