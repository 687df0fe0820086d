package marshal

import (
	stderrors "errors"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

// ViewKind reports the element kind of v when v is a typed-array view.
func ViewKind(v value.Value) (value.ElementKind, bool) {
	a, ok := v.(*value.TypedArray)
	if !ok {
		return 0, false
	}
	return a.Kind(), true
}

// Reinterpret returns a new view of kind over the live buffer behind v
// without copying. byteOffset is relative to the start of v; length counts
// elements of kind, and -1 takes the rest of v's buffer.
// v may be a typed array, a data view or an array buffer.
func Reinterpret(v value.Value, kind value.ElementKind, byteOffset, length int) (*value.TypedArray, error) {
	if !kind.Valid() {
		return nil, errors.Unsupported(errors.PhaseMarshal, kind.String())
	}

	var (
		buf  *value.ArrayBuffer
		base int
	)
	switch x := v.(type) {
	case *value.TypedArray:
		buf, base = x.Buffer(), x.ByteOffset()
	case *value.DataView:
		buf, base = x.Buffer(), x.ByteOffset()
	case *value.ArrayBuffer:
		buf = x
	default:
		return nil, errors.KindMismatch(errors.PhaseMarshal, "buffer view", value.TypeOf(v))
	}
	if byteOffset < 0 {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, nil, byteOffset, buf.ByteLength())
	}

	view, err := value.NewTypedArrayOn(kind, buf, base+byteOffset, length)
	if err != nil {
		return nil, rangeError(err)
	}
	return view, nil
}

// ViewMemory aliases length elements of sandbox memory at ptr as a host view.
// Writes through the view land in sandbox memory. The view is invalidated
// when the memory grows.
func ViewMemory(mem Memory, ptr, length uint32, kind value.ElementKind) (*value.TypedArray, error) {
	r := Region{Memory: mem, Ptr: ptr, Len: length, Kind: kind}
	if err := r.Check(); err != nil {
		return nil, err
	}
	b, err := mem.Read(ptr, uint32(r.ByteLength()))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "view memory")
	}
	view, err := value.NewTypedArrayOn(kind, value.WrapBytes(b), 0, int(length))
	if err != nil {
		return nil, rangeError(err)
	}
	return view, nil
}

// CopyToDataView copies byteLength bytes of buf starting at byteOffset into a
// fresh buffer and returns a data view over it.
func CopyToDataView(buf *value.ArrayBuffer, byteOffset, byteLength int) (*value.DataView, error) {
	if byteOffset < 0 || byteLength < 0 || byteOffset+byteLength > buf.ByteLength() {
		return nil, errors.RegionOutOfBounds(errors.PhaseMarshal, uint64(max(byteOffset, 0)), uint64(max(byteLength, 0)), uint64(buf.ByteLength()))
	}
	dst := value.NewArrayBuffer(byteLength)
	copy(dst.Bytes(), buf.Bytes()[byteOffset:byteOffset+byteLength])
	dv, err := value.NewDataView(dst, 0, -1)
	if err != nil {
		return nil, rangeError(err)
	}
	return dv, nil
}

// BufferKind distinguishes buffers: 0 for a plain ArrayBuffer, 1 for a
// SharedArrayBuffer and 2 for anything else.
func BufferKind(v value.Value) int {
	b, ok := v.(*value.ArrayBuffer)
	switch {
	case !ok:
		return 2
	case b.Shared():
		return 1
	default:
		return 0
	}
}

func rangeError(err error) error {
	var re *value.RangeError
	if stderrors.As(err, &re) {
		return errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).Detail("%s", re.Msg).Cause(err).Build()
	}
	return errors.Wrap(errors.PhaseMarshal, errors.KindInvalidInput, err, "")
}
