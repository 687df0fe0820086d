package jsstring

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/wippyai/wasm-bridge/value"
)

// unitAt returns the code unit at index i without materialising the whole
// unit slice.
func unitAt(s string, i uint32) (uint16, bool) {
	idx := uint64(i)
	var pos uint64
	for b := 0; b < len(s); {
		u, n, size := decode(s, b)
		if idx < pos+uint64(n) {
			return u[idx-pos], true
		}
		pos += uint64(n)
		b += size
	}
	return 0, false
}

func indexError(i uint32, s string) error {
	return &value.RangeError{Msg: fmt.Sprintf("index %d out of range for string of length %d", i, Length(s))}
}

// CharCodeAt returns the code unit at i. An index past the end is an error.
func CharCodeAt(s string, i uint32) (uint16, error) {
	u, ok := unitAt(s, i)
	if !ok {
		return 0, indexError(i, s)
	}
	return u, nil
}

// CodePointAt returns the code point starting at unit i. A lead surrogate
// followed by a trail combines; anything else is the unit itself.
func CodePointAt(s string, i uint32) (rune, error) {
	u, ok := unitAt(s, i)
	if !ok {
		return 0, indexError(i, s)
	}
	if isLead(u) {
		if next, ok := unitAt(s, i+1); ok && isTrail(next) {
			return 0x10000 + (rune(u)-surrogateMin)<<10 + rune(next) - trailMin, nil
		}
	}
	return rune(u), nil
}

// Compare orders strings by UTF-16 code units, returning -1, 0 or 1.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	return slices.Compare(Units(a), Units(b))
}

// Equals reports whether a and b have the same code units.
func Equals(a, b string) bool {
	if a == b {
		return true
	}
	// Distinct valid UTF-8 strings never share units.
	if utf8.ValidString(a) && utf8.ValidString(b) {
		return false
	}
	return Compare(a, b) == 0
}

// Concat joins a and b. A lead surrogate ending a and a trail surrogate
// starting b fuse into one code point.
func Concat(a, b string) string {
	lead, ok := edgeSurrogate(a, len(a)-3)
	if !ok || !isLead(lead) {
		return a + b
	}
	trail, ok := edgeSurrogate(b, 0)
	if !ok || !isTrail(trail) {
		return a + b
	}
	return a[:len(a)-3] + FromUnits([]uint16{lead, trail}) + b[3:]
}

// FromCharCode returns the one-unit string for u.
func FromCharCode(u uint16) string {
	return string(appendUnit(nil, u))
}

// FromCodePoint returns the string for code point cp.
func FromCodePoint(cp uint32) (string, error) {
	if cp > 0x10FFFF {
		return "", &value.RangeError{Msg: fmt.Sprintf("invalid code point %d", cp)}
	}
	if cp >= surrogateMin && cp <= surrogateMax {
		return FromCharCode(uint16(cp)), nil
	}
	return string(rune(cp)), nil
}

// Substring returns units [start, end) of s. Both indices clamp to the
// length and an empty or inverted range yields "".
func Substring(s string, start, end uint32) string {
	if start >= end {
		return ""
	}
	if !needsUnits(s) {
		n := uint32(len(s))
		start, end = min(start, n), min(end, n)
		return s[start:end]
	}
	units := Units(s)
	n := uint32(len(units))
	start, end = min(start, n), min(end, n)
	if start >= end {
		return ""
	}
	return FromUnits(units[start:end])
}

// needsUnits reports whether s has any non-ASCII byte.
func needsUnits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return true
		}
	}
	return false
}

// Test reports whether v is a string.
func Test(v value.Value) bool {
	_, ok := v.(string)
	return ok
}

// Cast returns v as a string or fails.
func Cast(v value.Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &value.TypeError{Msg: "expected a string, got " + value.TypeOf(v)}
	}
	return s, nil
}
