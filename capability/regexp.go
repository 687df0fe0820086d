package capability

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

// RegExp is a compiled ECMAScript regular expression with its matching state.
type RegExp struct {
	re        *regexp2.Regexp
	source    string
	flags     string
	lastIndex int
	global    bool
	sticky    bool
}

// CompileRegExp compiles pattern with flags from the set "dgimsuy".
func CompileRegExp(pattern, flags string, timeout time.Duration) (*RegExp, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	r := &RegExp{source: pattern, flags: flags}
	for i, f := range flags {
		if strings.ContainsRune(flags[:i], f) {
			return nil, invalidFlags(flags)
		}
		switch f {
		case 'g':
			r.global = true
		case 'y':
			r.sticky = true
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u', 'd':
		default:
			return nil, invalidFlags(flags)
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, &SyntaxError{Msg: fmt.Sprintf("Invalid regular expression: /%s/%s: %v", pattern, flags, err)}
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	r.re = re
	return r, nil
}

func invalidFlags(flags string) error {
	return &SyntaxError{Msg: fmt.Sprintf("Invalid flags supplied to RegExp constructor '%s'", flags)}
}

// Get implements value.Getter.
func (r *RegExp) Get(key string) value.Value {
	switch key {
	case "source":
		return r.source
	case "flags":
		return r.flags
	case "lastIndex":
		return float64(r.lastIndex)
	case "global":
		return r.global
	case "sticky":
		return r.sticky
	case "ignoreCase":
		return strings.ContainsRune(r.flags, 'i')
	case "multiline":
		return strings.ContainsRune(r.flags, 'm')
	case "dotAll":
		return strings.ContainsRune(r.flags, 's')
	case "unicode":
		return strings.ContainsRune(r.flags, 'u')
	}
	return value.Undefined
}

// Set implements value.Setter. Only lastIndex is writable.
func (r *RegExp) Set(key string, v value.Value) {
	if key == "lastIndex" {
		r.lastIndex = int(value.ToInt32(v))
	}
}

func (r *RegExp) String() string { return "/" + r.source + "/" + r.flags }

// Exec runs one match against s. It returns nil when there is no match.
// Global and sticky expressions start at lastIndex and advance it. Indices
// in the result count UTF-16 code units.
func (r *RegExp) Exec(s string) (*value.Object, error) {
	runes := []rune(s)
	start := 0
	if r.global || r.sticky {
		if r.lastIndex < 0 || r.lastIndex > unitLen(runes) {
			r.lastIndex = 0
			return nil, nil
		}
		start = runeIndex(runes, r.lastIndex)
	}

	m, err := r.re.FindRunesMatchStartingAt(runes, start)
	if err != nil {
		return nil, err
	}
	if m == nil || (r.sticky && m.Index != start) {
		if r.global || r.sticky {
			r.lastIndex = 0
		}
		return nil, nil
	}
	if r.global || r.sticky {
		r.lastIndex = unitIndex(runes, m.Index+m.Length)
	}

	out := value.NewObject()
	groups := m.Groups()
	for i, g := range groups {
		if len(g.Captures) == 0 {
			out.Set(strconv.Itoa(i), value.Undefined)
		} else {
			out.Set(strconv.Itoa(i), g.String())
		}
	}
	out.Set("length", float64(len(groups)))
	out.Set("index", float64(unitIndex(runes, m.Index)))
	out.Set("input", s)

	named := value.Value(value.Undefined)
	for _, g := range groups {
		if _, err := strconv.Atoi(g.Name); err == nil {
			continue
		}
		if named == value.Undefined {
			named = value.NewObject()
		}
		obj := named.(*value.Object)
		if len(g.Captures) == 0 {
			obj.Set(g.Name, value.Undefined)
		} else {
			obj.Set(g.Name, g.String())
		}
	}
	out.Set("groups", named)
	return out, nil
}

// unitIndex converts a rune index to a UTF-16 unit index.
func unitIndex(runes []rune, i int) int {
	n := 0
	for _, r := range runes[:min(i, len(runes))] {
		n += unitWidth(r)
	}
	return n
}

// runeIndex converts a UTF-16 unit index to the index of the rune that
// contains it.
func runeIndex(runes []rune, units int) int {
	n := 0
	for i, r := range runes {
		if n >= units {
			return i
		}
		n += unitWidth(r)
	}
	return len(runes)
}

func unitLen(runes []rune) int { return unitIndex(runes, len(runes)) }

func unitWidth(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}

func regExp(v value.Value) (*RegExp, error) {
	r, ok := v.(*RegExp)
	if !ok {
		return nil, &value.TypeError{Msg: "not a regular expression: " + value.TypeOf(v)}
	}
	return r, nil
}

func regexps(opts Options) imports.Namespace {
	return imports.Namespace{
		// Compilation failures come back as the error text, not a trap.
		"regexpCompile": imports.Returns(imports.Ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			r, err := CompileRegExp(value.ToString(args[0]), value.ToString(args[1]), opts.RegexpTimeout)
			if err != nil {
				return err.Error(), nil
			}
			return r, nil
		}, imports.Ref, imports.Ref),
		"regexpExec": imports.Returns(imports.Ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			r, err := regExp(args[0])
			if err != nil {
				return nil, err
			}
			m, err := r.Exec(value.ToString(args[1]))
			if err != nil || m == nil {
				return nil, err
			}
			return m, nil
		}, imports.Ref, imports.Ref),
		"regexpTest": imports.Returns(imports.Bool, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			r, err := regExp(args[0])
			if err != nil {
				return nil, err
			}
			m, err := r.Exec(value.ToString(args[1]))
			return m != nil, err
		}, imports.Ref, imports.Ref),
		"regexpEscape": imports.Returns(imports.Ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return regexp2.Escape(value.ToString(args[0])), nil
		}, imports.Ref),
		"isRegExp": imports.Returns(imports.Bool, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			_, ok := args[0].(*RegExp)
			return ok, nil
		}, imports.Ref),
	}
}
