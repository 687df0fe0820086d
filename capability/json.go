package capability

import (
	"context"
	"io"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

var jsonAPI = jsoniter.Config{EscapeHTML: false}.Froze()

// SyntaxError reports malformed JSON text.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string { return "SyntaxError: " + e.Msg }

// Stringify serializes v the way JSON.stringify does. Object keys keep
// insertion order, non-finite numbers become null, and undefined or
// function values are skipped in objects and null in lists. The second
// result is false when v itself has no JSON form.
func Stringify(v value.Value) (string, bool, error) {
	if !serializable(v) {
		return "", false, nil
	}
	st := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(st)

	enc := encoder{stream: st, seen: make(map[any]bool)}
	if err := enc.write(v); err != nil {
		return "", false, err
	}
	if st.Error != nil {
		return "", false, st.Error
	}
	return string(st.Buffer()), true, nil
}

func serializable(v value.Value) bool {
	if value.IsUndefined(v) {
		return false
	}
	_, fn := v.(value.Callable)
	return !fn
}

type encoder struct {
	stream *jsoniter.Stream
	seen   map[any]bool
}

func (e *encoder) enter(v any) error {
	if e.seen[v] {
		return &value.TypeError{Msg: "converting circular structure to JSON"}
	}
	e.seen[v] = true
	return nil
}

func (e *encoder) write(v value.Value) error {
	st := e.stream
	switch x := v.(type) {
	case nil:
		st.WriteNil()
	case bool:
		st.WriteBool(x)
	case string:
		st.WriteString(x)
	case int64, uint64:
		return &value.TypeError{Msg: "do not know how to serialize a BigInt"}
	case float64, int, int32, uint32:
		f := value.ToNumber(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			st.WriteNil()
		} else {
			st.WriteRaw(value.FormatNumber(f))
		}
	case *value.Array:
		if err := e.enter(x); err != nil {
			return err
		}
		defer delete(e.seen, x)
		st.WriteArrayStart()
		for i, el := range x.Elems {
			if i > 0 {
				st.WriteMore()
			}
			if !serializable(el) {
				st.WriteNil()
				continue
			}
			if err := e.write(el); err != nil {
				return err
			}
		}
		st.WriteArrayEnd()
	case *value.Object:
		if err := e.enter(x); err != nil {
			return err
		}
		defer delete(e.seen, x)
		st.WriteObjectStart()
		first := true
		for _, k := range x.Keys() {
			el := x.Get(k)
			if !serializable(el) {
				continue
			}
			if !first {
				st.WriteMore()
			}
			first = false
			st.WriteObjectField(k)
			if err := e.write(el); err != nil {
				return err
			}
		}
		st.WriteObjectEnd()
	case *value.TypedArray:
		st.WriteObjectStart()
		for i := range x.Len() {
			if i > 0 {
				st.WriteMore()
			}
			st.WriteObjectField(strconv.Itoa(i))
			if err := e.write(x.Get(i)); err != nil {
				return err
			}
		}
		st.WriteObjectEnd()
	default:
		st.WriteEmptyObject()
	}
	return nil
}

// Parse reads JSON text into host values. Objects keep key order.
func Parse(text string) (value.Value, error) {
	iter := jsoniter.ParseString(jsonAPI, text)
	v, err := readValue(iter)
	if err != nil {
		return nil, err
	}
	if iter.Error != nil {
		return nil, truncated(iter)
	}
	// Only the end of input may follow the value.
	if iter.WhatIsNext() != jsoniter.InvalidValue || iter.Error != io.EOF {
		return nil, &SyntaxError{Msg: "unexpected non-whitespace character after JSON"}
	}
	return v, nil
}

func readValue(iter *jsoniter.Iterator) (value.Value, error) {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		return iter.ReadString(), nil
	case jsoniter.NumberValue:
		f := iter.ReadFloat64()
		// A number may end at the end of input.
		if iter.Error == io.EOF {
			iter.Error = nil
		}
		return f, nil
	case jsoniter.BoolValue:
		return iter.ReadBool(), nil
	case jsoniter.NilValue:
		iter.ReadNil()
		return nil, nil
	case jsoniter.ArrayValue:
		arr := value.NewArray(0)
		var err error
		ok := iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			var el value.Value
			el, err = readValue(it)
			arr.Push(el)
			return err == nil && it.Error == nil
		})
		if !ok && err == nil {
			err = truncated(iter)
		}
		return arr, err
	case jsoniter.ObjectValue:
		obj := value.NewObject()
		var err error
		ok := iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			var el value.Value
			el, err = readValue(it)
			obj.Set(key, el)
			return err == nil && it.Error == nil
		})
		if !ok && err == nil {
			err = truncated(iter)
		}
		return obj, err
	default:
		if iter.Error == nil {
			return nil, &SyntaxError{Msg: "unexpected token in JSON"}
		}
		return nil, truncated(iter)
	}
}

func truncated(iter *jsoniter.Iterator) error {
	if iter.Error != nil && iter.Error != io.EOF {
		return &SyntaxError{Msg: iter.Error.Error()}
	}
	return &SyntaxError{Msg: "unexpected end of JSON input"}
}

func jsonSlots() imports.Namespace {
	return imports.Namespace{
		"jsonStringify": imports.Returns(imports.Ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			s, ok, err := Stringify(args[0])
			if err != nil || !ok {
				return value.Undefined, err
			}
			return s, nil
		}, imports.Ref),
		"jsonParse": imports.Returns(imports.Ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return Parse(value.ToString(args[0]))
		}, imports.Ref),
	}
}
