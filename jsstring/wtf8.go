package jsstring

import (
	"unicode/utf16"
	"unicode/utf8"
)

const (
	surrogateMin = 0xD800
	leadMax      = 0xDBFF
	trailMin     = 0xDC00
	surrogateMax = 0xDFFF
)

func isLead(u uint16) bool  { return u >= surrogateMin && u <= leadMax }
func isTrail(u uint16) bool { return u >= trailMin && u <= surrogateMax }

// decode reads the code point at byte offset i of s and returns it as one or
// two UTF-16 units (n) along with its encoded size. Surrogates encoded on
// their own decode to a single unit. Invalid bytes decode to U+FFFD.
func decode(s string, i int) (u [2]uint16, n, size int) {
	b := s[i]
	if b < utf8.RuneSelf {
		return [2]uint16{uint16(b)}, 1, 1
	}
	if b == 0xED && i+2 < len(s) && s[i+1] >= 0xA0 && s[i+1] <= 0xBF && s[i+2]&0xC0 == 0x80 {
		return [2]uint16{0xD000 | uint16(s[i+1]&0x3F)<<6 | uint16(s[i+2]&0x3F)}, 1, 3
	}
	r, size := utf8.DecodeRuneInString(s[i:])
	if r >= 0x10000 {
		hi, lo := utf16.EncodeRune(r)
		return [2]uint16{uint16(hi), uint16(lo)}, 2, size
	}
	return [2]uint16{uint16(r)}, 1, size
}

// Units returns the UTF-16 code units of s.
func Units(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for i := 0; i < len(s); {
		u, n, size := decode(s, i)
		out = append(out, u[:n]...)
		i += size
	}
	return out
}

// Length returns the number of UTF-16 code units in s.
func Length(s string) int {
	n := 0
	for i := 0; i < len(s); {
		_, k, size := decode(s, i)
		n += k
		i += size
	}
	return n
}

// FromUnits builds a string from UTF-16 code units. Paired surrogates
// become one code point; unpaired ones are kept as three-byte sequences.
func FromUnits(units []uint16) string {
	buf := make([]byte, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if isLead(u) && i+1 < len(units) && isTrail(units[i+1]) {
			buf = utf8.AppendRune(buf, utf16.DecodeRune(rune(u), rune(units[i+1])))
			i++
			continue
		}
		buf = appendUnit(buf, u)
	}
	return string(buf)
}

func appendUnit(buf []byte, u uint16) []byte {
	if u >= surrogateMin && u <= surrogateMax {
		return append(buf, 0xE0|byte(u>>12), 0x80|byte(u>>6)&0x3F, 0x80|byte(u)&0x3F)
	}
	return utf8.AppendRune(buf, rune(u))
}

// edgeSurrogate returns the lone surrogate encoded in the three bytes at
// s[i:i+3], if any.
func edgeSurrogate(s string, i int) (uint16, bool) {
	if i < 0 || i+3 > len(s) {
		return 0, false
	}
	u, n, size := decode(s, i)
	if n != 1 || size != 3 || u[0] < surrogateMin || u[0] > surrogateMax {
		return 0, false
	}
	return u[0], true
}
