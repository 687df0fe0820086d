package imports

import (
	"context"

	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/value"
)

func typedArray(v value.Value) (*value.TypedArray, error) {
	a, ok := v.(*value.TypedArray)
	if !ok {
		return nil, &value.TypeError{Msg: "not a typed array: " + value.TypeOf(v)}
	}
	return a, nil
}

func dataView(v value.Value) (*value.DataView, error) {
	d, ok := v.(*value.DataView)
	if !ok {
		return nil, &value.TypeError{Msg: "not a data view: " + value.TypeOf(v)}
	}
	return d, nil
}

func elementKind(v value.Value) (value.ElementKind, error) {
	n := Int(v)
	if n < 0 || !value.ElementKind(n).Valid() {
		return 0, &value.RangeError{Msg: "invalid element kind"}
	}
	return value.ElementKind(n), nil
}

// backing returns the buffer behind a view or buffer and the view's offset in it.
func backing(v value.Value) (*value.ArrayBuffer, int, error) {
	switch x := v.(type) {
	case *value.ArrayBuffer:
		return x, 0, nil
	case *value.TypedArray:
		return x.Buffer(), x.ByteOffset(), nil
	case *value.DataView:
		return x.Buffer(), x.ByteOffset(), nil
	default:
		return nil, 0, &value.TypeError{Msg: "not a buffer: " + value.TypeOf(v)}
	}
}

// Buffers returns the slots that move data between host buffers and sandbox
// memory, plus typed-array and data-view access.
func Buffers() Namespace {
	ns := Namespace{
		"classifyBuffer": Returns(I32, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return marshal.BufferKind(args[0]), nil
		}, Ref),
		"viewKind": Returns(I32, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			k, ok := marshal.ViewKind(args[0])
			if !ok {
				return -1, nil
			}
			return int(k), nil
		}, Ref),
		"newArrayBuffer": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			n := Int(args[0])
			if n < 0 {
				return nil, &value.RangeError{Msg: "invalid array buffer length"}
			}
			return value.NewArrayBuffer(n), nil
		}, I32),
		"newTypedArray": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			kind, err := elementKind(args[0])
			if err != nil {
				return nil, err
			}
			n := Int(args[1])
			if n < 0 {
				return nil, &value.RangeError{Msg: "invalid typed array length"}
			}
			return value.NewTypedArray(kind, n), nil
		}, I32, I32),
		"reinterpret": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			kind, err := elementKind(args[1])
			if err != nil {
				return nil, err
			}
			return marshal.Reinterpret(args[0], kind, Int(args[2]), Int(args[3]))
		}, Ref, I32, I32, I32),
		"byteLength": Returns(I32, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			switch x := args[0].(type) {
			case *value.ArrayBuffer:
				return x.ByteLength(), nil
			case *value.TypedArray:
				return x.ByteLength(), nil
			case *value.DataView:
				return x.ByteLength(), nil
			}
			return nil, &value.TypeError{Msg: "not a buffer: " + value.TypeOf(args[0])}
		}, Ref),
		"byteOffset": Returns(I32, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			_, off, err := backing(args[0])
			return off, err
		}, Ref),
		"buffer": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			buf, _, err := backing(args[0])
			return buf, err
		}, Ref),
		"bufferSlice": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			buf, ok := args[0].(*value.ArrayBuffer)
			if !ok {
				return nil, &value.TypeError{Msg: "not an array buffer: " + value.TypeOf(args[0])}
			}
			return buf.Slice(Int(args[1]), Int(args[2])), nil
		}, Ref, I32, I32),
		"typedArrayLength": Returns(I32, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			a, err := typedArray(args[0])
			if err != nil {
				return nil, err
			}
			return a.Len(), nil
		}, Ref),
		"typedArrayGet": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			a, err := typedArray(args[0])
			if err != nil {
				return nil, err
			}
			return a.Get(Int(args[1])), nil
		}, Ref, I32),
		"typedArraySet": Void(func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			a, err := typedArray(args[0])
			if err != nil {
				return nil, err
			}
			a.Set(Int(args[1]), args[2])
			return nil, nil
		}, Ref, I32, Ref),

		"dataViewCopy": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			buf, base, err := backing(args[0])
			if err != nil {
				return nil, err
			}
			return marshal.CopyToDataView(buf, base+Int(args[1]), Int(args[2]))
		}, Ref, I32, I32),
		"viewMemory": Returns(Ref, func(_ context.Context, env Env, args []value.Value) (value.Value, error) {
			kind, err := elementKind(args[2])
			if err != nil {
				return nil, err
			}
			return marshal.ViewMemory(env.Memory(), value.ToUint32(args[0]), value.ToUint32(args[1]), kind)
		}, I32, I32, I32),

		// copyToSandbox(view, viewOffset, ptr, length) writes length elements
		// of view into the region at ptr.
		"copyToSandbox": Void(func(_ context.Context, env Env, args []value.Value) (value.Value, error) {
			a, err := typedArray(args[0])
			if err != nil {
				return nil, err
			}
			n := value.ToUint32(args[3])
			dst := marshal.Region{Memory: env.Memory(), Ptr: value.ToUint32(args[2]), Len: n, Kind: a.Kind()}
			return nil, marshal.CopyHostToSandbox(a, Int(args[1]), dst, 0, int(n))
		}, Ref, I32, I32, I32),
		// copyFromSandbox(ptr, view, viewOffset, length) reads length
		// elements at ptr into view.
		"copyFromSandbox": Void(func(_ context.Context, env Env, args []value.Value) (value.Value, error) {
			a, err := typedArray(args[1])
			if err != nil {
				return nil, err
			}
			n := value.ToUint32(args[3])
			src := marshal.Region{Memory: env.Memory(), Ptr: value.ToUint32(args[0]), Len: n, Kind: a.Kind()}
			return nil, marshal.CopySandboxToHost(src, 0, a, Int(args[2]), int(n))
		}, I32, Ref, I32, I32),
	}

	for _, acc := range dataViewAccessors {
		ns["dataViewGet"+acc.name] = Returns(acc.kind, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			d, err := dataView(args[0])
			if err != nil {
				return nil, err
			}
			return acc.get(d, Int(args[1]), args[2].(bool))
		}, Ref, I32, Bool)
		ns["dataViewSet"+acc.name] = Void(func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			d, err := dataView(args[0])
			if err != nil {
				return nil, err
			}
			return nil, acc.set(d, Int(args[1]), args[2], args[3].(bool))
		}, Ref, I32, acc.kind, Bool)
	}
	return ns
}

// dataViewAccessor reads and writes one width of a data view. Single-byte
// accessors ignore the endianness flag.
type dataViewAccessor struct {
	name string
	kind Kind
	get  func(d *value.DataView, off int, little bool) (value.Value, error)
	set  func(d *value.DataView, off int, v value.Value, little bool) error
}

var dataViewAccessors = []dataViewAccessor{
	{
		name: "Int8", kind: I32,
		get: func(d *value.DataView, off int, _ bool) (value.Value, error) {
			v, err := d.GetInt8(off)
			return float64(v), err
		},
		set: func(d *value.DataView, off int, v value.Value, _ bool) error {
			return d.SetUint8(off, uint8(value.ToInt32(v)))
		},
	},
	{
		name: "Uint8", kind: I32,
		get: func(d *value.DataView, off int, _ bool) (value.Value, error) {
			v, err := d.GetUint8(off)
			return float64(v), err
		},
		set: func(d *value.DataView, off int, v value.Value, _ bool) error {
			return d.SetUint8(off, uint8(value.ToUint32(v)))
		},
	},
	{
		name: "Int16", kind: I32,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			v, err := d.GetInt16(off, little)
			return float64(v), err
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetUint16(off, uint16(value.ToInt32(v)), little)
		},
	},
	{
		name: "Uint16", kind: I32,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			v, err := d.GetUint16(off, little)
			return float64(v), err
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetUint16(off, uint16(value.ToUint32(v)), little)
		},
	},
	{
		name: "Int32", kind: I32,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			v, err := d.GetInt32(off, little)
			return float64(v), err
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetUint32(off, uint32(value.ToInt32(v)), little)
		},
	},
	{
		name: "Uint32", kind: I32,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			v, err := d.GetUint32(off, little)
			return float64(v), err
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetUint32(off, value.ToUint32(v), little)
		},
	},
	{
		name: "BigInt64", kind: I64,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			v, err := d.GetInt64(off, little)
			return v, err
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetUint64(off, uint64(value.ToBigInt64(v)), little)
		},
	},
	{
		name: "BigUint64", kind: I64,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			v, err := d.GetUint64(off, little)
			return v, err
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetUint64(off, uint64(value.ToBigInt64(v)), little)
		},
	},
	{
		name: "Float32", kind: F32,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			v, err := d.GetFloat32(off, little)
			return float64(v), err
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetFloat32(off, float32(value.ToNumber(v)), little)
		},
	},
	{
		name: "Float64", kind: F64,
		get: func(d *value.DataView, off int, little bool) (value.Value, error) {
			return d.GetFloat64(off, little)
		},
		set: func(d *value.DataView, off int, v value.Value, little bool) error {
			return d.SetFloat64(off, value.ToNumber(v), little)
		},
	},
}
