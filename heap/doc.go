// Package heap maps host values to the 32-bit handles a sandbox module holds
// as externref.
//
// Handles below 8 are reserved and never counted: 0 is null, 1 undefined,
// 2 and 3 the booleans and 4 the global object. Every other handle is
// reference counted. Pointers and strings are interned so the same object
// always crosses the boundary with the same handle, which makes identity
// comparison on the sandbox side a plain integer compare.
//
// The sandbox gives a reference back with the release slot; Table.Release
// frees the handle once every reference handed out has been returned.
package heap
