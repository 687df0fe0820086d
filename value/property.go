package value

import (
	"context"
	"math"
)

// Constructor is implemented by host values usable with new.
type Constructor interface {
	New(ctx context.Context, args ...Value) (Value, error)
}

// Getter is implemented by host values with named properties.
type Getter interface {
	Get(key string) Value
}

// Setter is implemented by host values with writable named properties.
type Setter interface {
	Set(key string, v Value)
}

// index converts a property key to an element index.
func index(key Value) (int, bool) {
	var f float64
	switch k := key.(type) {
	case string:
		if k == "" {
			return 0, false
		}
		f = ParseNumber(k)
		if FormatNumber(f) != k {
			return 0, false
		}
	case float64, int, int32, uint32:
		f = ToNumber(k)
	default:
		return 0, false
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// GetProperty reads o[key]. Reading from null or undefined is a TypeError.
func GetProperty(o, key Value) (Value, error) {
	name := ToString(key)
	switch x := o.(type) {
	case nil, UndefinedType:
		return nil, &TypeError{Msg: "cannot read properties of " + ToString(o) + " (reading '" + name + "')"}
	case *Object:
		return x.Get(name), nil
	case *Array:
		if i, ok := index(key); ok {
			return x.Get(i), nil
		}
		if name == "length" {
			return float64(x.Len()), nil
		}
	case *TypedArray:
		if i, ok := index(key); ok {
			return x.Get(i), nil
		}
		switch name {
		case "length":
			return float64(x.Len()), nil
		case "byteLength":
			return float64(x.ByteLength()), nil
		case "byteOffset":
			return float64(x.ByteOffset()), nil
		case "buffer":
			return x.Buffer(), nil
		}
	case *DataView:
		switch name {
		case "byteLength":
			return float64(x.ByteLength()), nil
		case "byteOffset":
			return float64(x.ByteOffset()), nil
		case "buffer":
			return x.Buffer(), nil
		}
	case *ArrayBuffer:
		if name == "byteLength" {
			return float64(x.ByteLength()), nil
		}
	case *Function:
		if name == "name" {
			return x.Name, nil
		}
	case Getter:
		return x.Get(name), nil
	}
	return Undefined, nil
}

// SetProperty writes o[key] = v. Writes to values without settable
// properties are ignored, except on null and undefined where they fail.
func SetProperty(o, key, v Value) error {
	switch x := o.(type) {
	case nil, UndefinedType:
		return &TypeError{Msg: "cannot set properties of " + ToString(o) + " (setting '" + ToString(key) + "')"}
	case *Object:
		x.Set(ToString(key), v)
	case *Array:
		if i, ok := index(key); ok {
			x.Set(i, v)
			return nil
		}
		if ToString(key) == "length" {
			n := int(ToNumber(v))
			if n < 0 {
				return &RangeError{Msg: "invalid array length"}
			}
			for len(x.Elems) < n {
				x.Elems = append(x.Elems, Undefined)
			}
			x.Elems = x.Elems[:n]
		}
	case *TypedArray:
		if i, ok := index(key); ok {
			x.Set(i, v)
		}
	case Setter:
		x.Set(ToString(key), v)
	}
	return nil
}

// HasProperty implements the in operator.
func HasProperty(o, key Value) (bool, error) {
	switch x := o.(type) {
	case *Object:
		return x.Has(ToString(key)), nil
	case *Array:
		if i, ok := index(key); ok {
			return i < x.Len(), nil
		}
		return ToString(key) == "length", nil
	case *TypedArray:
		if i, ok := index(key); ok {
			return i < x.Len(), nil
		}
		switch ToString(key) {
		case "length", "byteLength", "byteOffset", "buffer":
			return true, nil
		}
		return false, nil
	case nil, UndefinedType, bool, float64, string, int, int32, uint32, int64, uint64:
		return false, &TypeError{Msg: "cannot use 'in' operator to search for '" + ToString(key) + "' in " + ToString(o)}
	default:
		return false, nil
	}
}

// DeleteProperty removes an own property of a plain object.
func DeleteProperty(o, key Value) bool {
	if x, ok := o.(*Object); ok {
		return x.Delete(ToString(key))
	}
	return false
}

// CallMethod invokes o[name] with o as the receiver.
func CallMethod(ctx context.Context, o, name Value, args []Value) (Value, error) {
	m, err := GetProperty(o, name)
	if err != nil {
		return nil, err
	}
	fn, ok := m.(Callable)
	if !ok {
		return nil, &TypeError{Msg: ToString(name) + " is not a function"}
	}
	return fn.Call(ctx, o, args...)
}
