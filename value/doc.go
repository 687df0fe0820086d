// Package value models the host heap: the dynamically typed values that
// cross the boundary between Go and the sandboxed module.
//
// Values are plain Go values where a Go type fits (nil, bool, float64,
// string) and pointer types where identity matters (*Array, *Object,
// *Function, *ArrayBuffer, *TypedArray, *DataView, *Future). Pointer
// identity is what the handle heap interns on, so the same object handed to
// the sandbox twice arrives as the same handle.
//
// Strings are WTF-8: valid UTF-8 plus encoded unpaired surrogates, so every
// sequence of 16-bit code units survives the trip through a Go string.
package value
