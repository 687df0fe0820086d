package value

import (
	"context"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Value is any host value. The dynamic types are:
//
//	nil                null
//	UndefinedType      undefined
//	bool               boolean
//	float64            number (int, int32, uint32 and int64 are accepted as numbers)
//	string             string, WTF-8 encoded
//	*Array             list
//	*Object            plain object
//	*Function          host function
//	*ArrayBuffer       raw buffer, plain or shared
//	*TypedArray        element-kind view over a buffer
//	*DataView          raw byte view over a buffer
//	*Future            pending result
//	Callable           anything else that can be invoked
type Value = any

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

// Undefined is the host undefined value.
var Undefined = UndefinedType{}

// IsUndefined reports whether v is undefined.
func IsUndefined(v Value) bool {
	_, ok := v.(UndefinedType)
	return ok
}

// IsNullish reports whether v is null or undefined.
func IsNullish(v Value) bool {
	return v == nil || IsUndefined(v)
}

// Callable is implemented by every invocable host value.
type Callable interface {
	Call(ctx context.Context, this Value, args ...Value) (Value, error)
}

// Function is a host function, optionally usable as a constructor.
type Function struct {
	Fn        func(ctx context.Context, this Value, args []Value) (Value, error)
	Construct func(ctx context.Context, args []Value) (Value, error)
	Name      string
}

// NewFunction wraps fn as a named host function.
func NewFunction(name string, fn func(ctx context.Context, this Value, args []Value) (Value, error)) *Function {
	return &Function{Name: name, Fn: fn}
}

// Call implements Callable.
func (f *Function) Call(ctx context.Context, this Value, args ...Value) (Value, error) {
	if f.Fn == nil {
		return nil, &TypeError{Msg: f.Name + " is not callable"}
	}
	return f.Fn(ctx, this, args)
}

// New invokes the function as a constructor.
func (f *Function) New(ctx context.Context, args ...Value) (Value, error) {
	if f.Construct == nil {
		return nil, &TypeError{Msg: f.Name + " is not a constructor"}
	}
	return f.Construct(ctx, args)
}

// TypeError is raised for operations applied to values of the wrong type.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string { return "TypeError: " + e.Msg }

// Thrown carries a host value raised as an exception.
type Thrown struct {
	Value Value
}

func (e *Thrown) Error() string { return "uncaught " + ToString(e.Value) }

// Array is a host list.
type Array struct {
	Elems []Value
}

// NewArray creates an array of n undefined elements.
func NewArray(n int) *Array {
	a := &Array{Elems: make([]Value, n)}
	for i := range a.Elems {
		a.Elems[i] = Undefined
	}
	return a
}

// ArrayOf creates an array holding vs.
func ArrayOf(vs ...Value) *Array {
	return &Array{Elems: vs}
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// Get returns element i, or undefined when out of range.
func (a *Array) Get(i int) Value {
	if i < 0 || i >= len(a.Elems) {
		return Undefined
	}
	return a.Elems[i]
}

// Set stores v at i, growing the array with undefined holes as needed.
func (a *Array) Set(i int, v Value) {
	if i < 0 {
		return
	}
	for len(a.Elems) <= i {
		a.Elems = append(a.Elems, Undefined)
	}
	a.Elems[i] = v
}

// Push appends v.
func (a *Array) Push(v Value) {
	a.Elems = append(a.Elems, v)
}

// TypeOf returns the host typeof string for v.
func TypeOf(v Value) string {
	switch v.(type) {
	case UndefinedType:
		return "undefined"
	case bool:
		return "boolean"
	case float64, int, int32, uint32:
		return "number"
	case int64, uint64:
		return "bigint"
	case string:
		return "string"
	case Callable:
		return "function"
	default:
		return "object"
	}
}

// ToNumber converts v to a number.
func ToNumber(v Value) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case UndefinedType:
		return math.NaN()
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case uint32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case string:
		return ParseNumber(x)
	default:
		return math.NaN()
	}
}

// ParseNumber converts a numeric string the way unary plus does: surrounding
// whitespace is ignored, the empty string is 0, anything else unparsable is NaN.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-') {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// ToBoolean converts v to a boolean.
func ToBoolean(v Value) bool {
	switch x := v.(type) {
	case nil, UndefinedType:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case uint64:
		return x != 0
	}
	if TypeOf(v) == "number" {
		f := ToNumber(v)
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// ToString converts v to a string.
func ToString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case UndefinedType:
		return "undefined"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case *Array:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			if !IsNullish(e) {
				parts[i] = ToString(e)
			}
		}
		return strings.Join(parts, ",")
	case *Function:
		return "function " + x.Name + "() { [native code] }"
	case error:
		return x.Error()
	}
	if TypeOf(v) == "number" {
		return FormatNumber(ToNumber(v))
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "[object Object]"
}

// FormatNumber renders a number the way the host prints it.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// Go writes e-07 and e+21; the host writes e-7 and e+21.
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + string(sign) + exp
}

// StrictEquals compares two values with === semantics.
func StrictEquals(a, b Value) bool {
	if TypeOf(a) == "number" && TypeOf(b) == "number" {
		return ToNumber(a) == ToNumber(b)
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}
