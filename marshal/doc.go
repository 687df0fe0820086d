// Package marshal moves buffers between host typed-array views and sandbox
// linear memory.
//
// Copies run one element at a time with the accessor matching the element
// width, so odd lengths and unaligned regions never read past their end.
// Both sides are bounds checked before the first byte moves.
//
// Reinterpret and ViewMemory create views without copying. Classify returns
// the closed tag the sandbox uses to decode a host value it cannot inspect.
package marshal
