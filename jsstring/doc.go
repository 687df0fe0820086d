// Package jsstring converts between host strings and the UTF-16 code units
// a module works with, and provides the wasm:js-string import tables.
//
// Host strings are Go strings in WTF-8: well-formed text is plain UTF-8 and
// an unpaired surrogate is kept as its three-byte generalized encoding, so
// any sequence of code units survives a round trip. Arrays of code units
// cross the boundary ChunkSize units at a time, either element by element
// (Polyfill) or by region copies of linear memory (Native).
package jsstring
