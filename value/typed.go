package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementKind enumerates typed-array element kinds.
type ElementKind uint8

const (
	Int8 ElementKind = iota
	Uint8
	Uint8Clamped
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
	BigInt64
	BigUint64
)

// ElementKinds lists every kind in declaration order.
var ElementKinds = []ElementKind{Int8, Uint8, Uint8Clamped, Int16, Uint16, Int32, Uint32, Float32, Float64, BigInt64, BigUint64}

// Size returns the element width in bytes.
func (k ElementKind) Size() int {
	switch k {
	case Int8, Uint8, Uint8Clamped:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	default:
		return 8
	}
}

// Valid reports whether k is a known kind.
func (k ElementKind) Valid() bool {
	return k <= BigUint64
}

func (k ElementKind) String() string {
	switch k {
	case Int8:
		return "Int8Array"
	case Uint8:
		return "Uint8Array"
	case Uint8Clamped:
		return "Uint8ClampedArray"
	case Int16:
		return "Int16Array"
	case Uint16:
		return "Uint16Array"
	case Int32:
		return "Int32Array"
	case Uint32:
		return "Uint32Array"
	case Float32:
		return "Float32Array"
	case Float64:
		return "Float64Array"
	case BigInt64:
		return "BigInt64Array"
	case BigUint64:
		return "BigUint64Array"
	default:
		return fmt.Sprintf("ElementKind(%d)", uint8(k))
	}
}

// RangeError is raised when a view or index falls outside its buffer.
type RangeError struct {
	Msg string
}

func (e *RangeError) Error() string { return "RangeError: " + e.Msg }

// ArrayBuffer is a raw byte buffer, plain or shared.
type ArrayBuffer struct {
	data   []byte
	shared bool
}

// NewArrayBuffer allocates a zeroed buffer.
func NewArrayBuffer(n int) *ArrayBuffer {
	return &ArrayBuffer{data: make([]byte, n)}
}

// NewSharedArrayBuffer allocates a zeroed shared buffer.
func NewSharedArrayBuffer(n int) *ArrayBuffer {
	return &ArrayBuffer{data: make([]byte, n), shared: true}
}

// WrapBytes returns a buffer aliasing b. Writes through the buffer are visible in b.
func WrapBytes(b []byte) *ArrayBuffer {
	return &ArrayBuffer{data: b}
}

// Bytes returns the live backing slice.
func (b *ArrayBuffer) Bytes() []byte { return b.data }

// ByteLength returns the buffer size.
func (b *ArrayBuffer) ByteLength() int { return len(b.data) }

// Shared reports whether the buffer is a shared buffer.
func (b *ArrayBuffer) Shared() bool { return b.shared }

// Slice copies [begin, end) into a new buffer of the same sharedness.
// Negative indices count from the end and out-of-range indices are clamped.
func (b *ArrayBuffer) Slice(begin, end int) *ArrayBuffer {
	n := len(b.data)
	begin, end = clampIndex(begin, n), clampIndex(end, n)
	if end < begin {
		end = begin
	}
	out := make([]byte, end-begin)
	copy(out, b.data[begin:end])
	return &ArrayBuffer{data: out, shared: b.shared}
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			return 0
		}
	}
	if i > n {
		return n
	}
	return i
}

// TypedArray is an element-kind view over a buffer region.
type TypedArray struct {
	buf    *ArrayBuffer
	offset int
	length int
	kind   ElementKind
}

// NewTypedArray allocates a fresh zeroed array of length elements.
func NewTypedArray(kind ElementKind, length int) *TypedArray {
	return &TypedArray{
		buf:    NewArrayBuffer(length * kind.Size()),
		length: length,
		kind:   kind,
	}
}

// NewTypedArrayOn creates a view of length elements at byteOffset.
// A negative length covers the rest of the buffer.
func NewTypedArrayOn(kind ElementKind, buf *ArrayBuffer, byteOffset, length int) (*TypedArray, error) {
	size := kind.Size()
	if byteOffset < 0 || byteOffset%size != 0 {
		return nil, &RangeError{Msg: fmt.Sprintf("start offset of %s should be a multiple of %d", kind, size)}
	}
	if byteOffset > buf.ByteLength() {
		return nil, &RangeError{Msg: fmt.Sprintf("start offset %d is outside the bounds of the buffer", byteOffset)}
	}
	if length < 0 {
		rest := buf.ByteLength() - byteOffset
		if rest%size != 0 {
			return nil, &RangeError{Msg: fmt.Sprintf("byte length of %s should be a multiple of %d", kind, size)}
		}
		length = rest / size
	}
	if byteOffset+length*size > buf.ByteLength() {
		return nil, &RangeError{Msg: fmt.Sprintf("invalid typed array length: %d", length)}
	}
	return &TypedArray{buf: buf, offset: byteOffset, length: length, kind: kind}, nil
}

// TypedArrayOf creates a fresh array holding vs converted to kind.
func TypedArrayOf(kind ElementKind, vs ...Value) *TypedArray {
	a := NewTypedArray(kind, len(vs))
	for i, v := range vs {
		a.Set(i, v)
	}
	return a
}

// Kind returns the element kind.
func (a *TypedArray) Kind() ElementKind { return a.kind }

// Buffer returns the underlying buffer.
func (a *TypedArray) Buffer() *ArrayBuffer { return a.buf }

// ByteOffset returns the view's offset into its buffer.
func (a *TypedArray) ByteOffset() int { return a.offset }

// ByteLength returns the view's size in bytes.
func (a *TypedArray) ByteLength() int { return a.length * a.kind.Size() }

// Len returns the number of elements.
func (a *TypedArray) Len() int { return a.length }

// Bytes returns the live bytes covered by the view.
func (a *TypedArray) Bytes() []byte {
	return a.buf.data[a.offset : a.offset+a.ByteLength()]
}

// Get returns element i as a number (int64/uint64 for the 64-bit integer kinds),
// or undefined when out of range.
func (a *TypedArray) Get(i int) Value {
	if i < 0 || i >= a.length {
		return Undefined
	}
	b := a.Bytes()[i*a.kind.Size():]
	switch a.kind {
	case Int8:
		return float64(int8(b[0]))
	case Uint8, Uint8Clamped:
		return float64(b[0])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case BigInt64:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// Set converts v to the element kind and stores it at i. Out-of-range writes are ignored.
func (a *TypedArray) Set(i int, v Value) {
	if i < 0 || i >= a.length {
		return
	}
	b := a.Bytes()[i*a.kind.Size():]
	switch a.kind {
	case Int8, Uint8:
		b[0] = byte(toUint64(v))
	case Uint8Clamped:
		b[0] = clampUint8(ToNumber(v))
	case Int16, Uint16:
		binary.LittleEndian.PutUint16(b, uint16(toUint64(v)))
	case Int32, Uint32:
		binary.LittleEndian.PutUint32(b, uint32(toUint64(v)))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(ToNumber(v))))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(ToNumber(v)))
	default:
		binary.LittleEndian.PutUint64(b, toUint64(v))
	}
}

// toUint64 applies modular integer conversion: NaN and infinities become 0,
// fractions truncate toward zero, and the result wraps modulo 2^64.
func toUint64(v Value) uint64 {
	switch x := v.(type) {
	case int64:
		return uint64(x)
	case uint64:
		return x
	}
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	if f >= -(1<<63) && f < 1<<63 {
		return uint64(int64(f))
	}
	f = math.Mod(f, 1<<64)
	if f < 0 {
		f += 1 << 64
	}
	return uint64(f)
}

func clampUint8(f float64) byte {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return byte(math.RoundToEven(f))
}

// DataView is a raw byte view over a buffer region with explicit endianness.
type DataView struct {
	buf    *ArrayBuffer
	offset int
	length int
}

// NewDataView creates a view of byteLength bytes at byteOffset. A negative
// length covers the rest of the buffer.
func NewDataView(buf *ArrayBuffer, byteOffset, byteLength int) (*DataView, error) {
	if byteOffset < 0 || byteOffset > buf.ByteLength() {
		return nil, &RangeError{Msg: fmt.Sprintf("start offset %d is outside the bounds of the buffer", byteOffset)}
	}
	if byteLength < 0 {
		byteLength = buf.ByteLength() - byteOffset
	}
	if byteOffset+byteLength > buf.ByteLength() {
		return nil, &RangeError{Msg: fmt.Sprintf("invalid data view length %d", byteLength)}
	}
	return &DataView{buf: buf, offset: byteOffset, length: byteLength}, nil
}

// Buffer returns the underlying buffer.
func (d *DataView) Buffer() *ArrayBuffer { return d.buf }

// ByteOffset returns the view's offset into its buffer.
func (d *DataView) ByteOffset() int { return d.offset }

// ByteLength returns the view's size in bytes.
func (d *DataView) ByteLength() int { return d.length }

// Bytes returns the live bytes covered by the view.
func (d *DataView) Bytes() []byte {
	return d.buf.data[d.offset : d.offset+d.length]
}

func (d *DataView) at(off, n int) ([]byte, error) {
	if off < 0 || off+n > d.length {
		return nil, &RangeError{Msg: fmt.Sprintf("offset %d is outside the bounds of the DataView", off)}
	}
	return d.buf.data[d.offset+off : d.offset+off+n], nil
}

func order(little bool) binary.ByteOrder {
	if little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// GetUint8 reads an unsigned byte.
func (d *DataView) GetUint8(off int) (uint8, error) {
	b, err := d.at(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetInt8 reads a signed byte.
func (d *DataView) GetInt8(off int) (int8, error) {
	v, err := d.GetUint8(off)
	return int8(v), err
}

// GetUint16 reads an unsigned 16-bit integer.
func (d *DataView) GetUint16(off int, little bool) (uint16, error) {
	b, err := d.at(off, 2)
	if err != nil {
		return 0, err
	}
	return order(little).Uint16(b), nil
}

// GetInt16 reads a signed 16-bit integer.
func (d *DataView) GetInt16(off int, little bool) (int16, error) {
	v, err := d.GetUint16(off, little)
	return int16(v), err
}

// GetUint32 reads an unsigned 32-bit integer.
func (d *DataView) GetUint32(off int, little bool) (uint32, error) {
	b, err := d.at(off, 4)
	if err != nil {
		return 0, err
	}
	return order(little).Uint32(b), nil
}

// GetInt32 reads a signed 32-bit integer.
func (d *DataView) GetInt32(off int, little bool) (int32, error) {
	v, err := d.GetUint32(off, little)
	return int32(v), err
}

// GetUint64 reads an unsigned 64-bit integer.
func (d *DataView) GetUint64(off int, little bool) (uint64, error) {
	b, err := d.at(off, 8)
	if err != nil {
		return 0, err
	}
	return order(little).Uint64(b), nil
}

// GetInt64 reads a signed 64-bit integer.
func (d *DataView) GetInt64(off int, little bool) (int64, error) {
	v, err := d.GetUint64(off, little)
	return int64(v), err
}

// GetFloat32 reads a 32-bit float.
func (d *DataView) GetFloat32(off int, little bool) (float32, error) {
	v, err := d.GetUint32(off, little)
	return math.Float32frombits(v), err
}

// GetFloat64 reads a 64-bit float.
func (d *DataView) GetFloat64(off int, little bool) (float64, error) {
	v, err := d.GetUint64(off, little)
	return math.Float64frombits(v), err
}

// SetUint8 writes a byte.
func (d *DataView) SetUint8(off int, v uint8) error {
	b, err := d.at(off, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// SetUint16 writes a 16-bit integer.
func (d *DataView) SetUint16(off int, v uint16, little bool) error {
	b, err := d.at(off, 2)
	if err != nil {
		return err
	}
	order(little).PutUint16(b, v)
	return nil
}

// SetUint32 writes a 32-bit integer.
func (d *DataView) SetUint32(off int, v uint32, little bool) error {
	b, err := d.at(off, 4)
	if err != nil {
		return err
	}
	order(little).PutUint32(b, v)
	return nil
}

// SetUint64 writes a 64-bit integer.
func (d *DataView) SetUint64(off int, v uint64, little bool) error {
	b, err := d.at(off, 8)
	if err != nil {
		return err
	}
	order(little).PutUint64(b, v)
	return nil
}

// SetFloat32 writes a 32-bit float.
func (d *DataView) SetFloat32(off int, v float32, little bool) error {
	return d.SetUint32(off, math.Float32bits(v), little)
}

// SetFloat64 writes a 64-bit float.
func (d *DataView) SetFloat64(off int, v float64, little bool) error {
	return d.SetUint64(off, math.Float64bits(v), little)
}

// ToInt32 applies the modular 32-bit integer conversion.
func ToInt32(v Value) int32 { return int32(toUint64(v)) }

// ToUint32 applies the modular unsigned 32-bit integer conversion.
func ToUint32(v Value) uint32 { return uint32(toUint64(v)) }

// ToBigInt64 applies the modular 64-bit integer conversion.
func ToBigInt64(v Value) int64 { return int64(toUint64(v)) }
