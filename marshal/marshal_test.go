package marshal

import (
	"bytes"
	"errors"
	"testing"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestRoundTripEveryKind(t *testing.T) {
	for _, kind := range value.ElementKinds {
		t.Run(kind.String(), func(t *testing.T) {
			const n = 5
			size := kind.Size()
			mem := make(SliceMemory, 64)
			// Unaligned pointer and odd element count.
			region := Region{Memory: mem, Ptr: 3, Len: n, Kind: kind}
			orig := pattern(n * size)
			copy(mem[3:], orig)

			host := value.NewTypedArray(kind, n)
			if err := CopySandboxToHost(region, 0, host, 0, n); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(host.Bytes(), orig) {
				t.Fatalf("host bytes = %v, want %v", host.Bytes(), orig)
			}

			clear(mem)
			if err := CopyHostToSandbox(host, 0, region, 0, n); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(mem[3:3+n*size], orig) {
				t.Errorf("sandbox bytes = %v, want %v", mem[3:3+n*size], orig)
			}
			if mem[2] != 0 || mem[3+n*size] != 0 {
				t.Error("copy touched bytes outside the region")
			}
		})
	}
}

func TestCopyOffsets(t *testing.T) {
	mem := make(SliceMemory, 32)
	region := Region{Memory: mem, Ptr: 8, Len: 4, Kind: value.Uint16}
	host := value.TypedArrayOf(value.Uint16, 10.0, 20.0, 30.0, 40.0)

	if err := CopyHostToSandbox(host, 1, region, 2, 2); err != nil {
		t.Fatal(err)
	}
	got := value.NewTypedArray(value.Uint16, 4)
	if err := CopySandboxToHost(region, 0, got, 0, 4); err != nil {
		t.Fatal(err)
	}
	want := []value.Value{0.0, 0.0, 20.0, 30.0}
	for i, w := range want {
		if got.Get(i) != w {
			t.Errorf("element %d = %v, want %v", i, got.Get(i), w)
		}
	}
}

func TestCopyRejections(t *testing.T) {
	mem := make(SliceMemory, 16)
	tests := []struct {
		name   string
		host   *value.TypedArray
		region Region
		hostOf int
		sbOf   int
		length int
		want   error
	}{
		{
			name:   "kind mismatch",
			host:   value.NewTypedArray(value.Int8, 4),
			region: Region{Memory: mem, Len: 4, Kind: value.Uint8},
			length: 4,
			want:   &bridgeerrors.Error{Phase: bridgeerrors.PhaseMarshal, Kind: bridgeerrors.KindKindMismatch},
		},
		{
			name:   "region past memory",
			host:   value.NewTypedArray(value.Int32, 4),
			region: Region{Memory: mem, Ptr: 4, Len: 4, Kind: value.Int32},
			length: 1,
			want:   &bridgeerrors.Error{Phase: bridgeerrors.PhaseMarshal, Kind: bridgeerrors.KindOutOfBounds},
		},
		{
			name:   "host too short",
			host:   value.NewTypedArray(value.Uint8, 2),
			region: Region{Memory: mem, Len: 8, Kind: value.Uint8},
			hostOf: 1,
			length: 2,
			want:   &bridgeerrors.Error{Phase: bridgeerrors.PhaseMarshal, Kind: bridgeerrors.KindOutOfBounds},
		},
		{
			name:   "sandbox offset past region",
			host:   value.NewTypedArray(value.Uint8, 8),
			region: Region{Memory: mem, Len: 4, Kind: value.Uint8},
			sbOf:   3,
			length: 2,
			want:   &bridgeerrors.Error{Phase: bridgeerrors.PhaseMarshal, Kind: bridgeerrors.KindOutOfBounds},
		},
		{
			name:   "negative length",
			host:   value.NewTypedArray(value.Uint8, 8),
			region: Region{Memory: mem, Len: 4, Kind: value.Uint8},
			length: -1,
			want:   bridgeerrors.ErrMarshal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clear(mem)
			for i := 0; i < tt.host.Len(); i++ {
				tt.host.Set(i, 1.0)
			}
			err := CopyHostToSandbox(tt.host, tt.hostOf, tt.region, tt.sbOf, tt.length)
			if !errors.Is(err, tt.want) {
				t.Fatalf("CopyHostToSandbox = %v, want %v", err, tt.want)
			}
			if !bytes.Equal(mem, make([]byte, len(mem))) {
				t.Error("rejected copy wrote to memory")
			}
			if err := CopySandboxToHost(tt.region, tt.sbOf, tt.host, tt.hostOf, tt.length); !errors.Is(err, tt.want) {
				t.Errorf("CopySandboxToHost = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReinterpret(t *testing.T) {
	buf := value.NewArrayBuffer(16)
	u8, err := value.NewTypedArrayOn(value.Uint8, buf, 4, 12)
	if err != nil {
		t.Fatal(err)
	}

	u32, err := Reinterpret(u8, value.Uint32, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if u32.ByteOffset() != 8 || u32.Len() != 2 {
		t.Fatalf("offset=%d len=%d, want 8 and 2", u32.ByteOffset(), u32.Len())
	}
	u32.Set(0, 0xAABBCCDD)
	if buf.Bytes()[8] != 0xDD {
		t.Error("reinterpreted view does not alias the buffer")
	}

	dv, _ := value.NewDataView(buf, 0, -1)
	if v, err := Reinterpret(dv, value.Float64, 0, -1); err != nil || v.Len() != 2 {
		t.Errorf("Reinterpret(DataView) = %v, %v", v, err)
	}
	if _, err := Reinterpret(u8, value.Int32, 2, 1); !errors.Is(err, bridgeerrors.ErrMarshal) {
		t.Errorf("misaligned reinterpret = %v", err)
	}
	if _, err := Reinterpret(u8, value.Uint8, 0, 13); !errors.Is(err, bridgeerrors.ErrMarshal) {
		t.Errorf("oversized reinterpret = %v", err)
	}
	if _, err := Reinterpret("text", value.Uint8, 0, 1); !errors.Is(err, bridgeerrors.ErrMarshal) {
		t.Errorf("reinterpret of a string = %v", err)
	}
	if k, ok := ViewKind(u32); !ok || k != value.Uint32 {
		t.Errorf("ViewKind = %v, %v", k, ok)
	}
	if _, ok := ViewKind(buf); ok {
		t.Error("a buffer is not a view")
	}
}

func TestViewMemory(t *testing.T) {
	mem := make(SliceMemory, 16)
	view, err := ViewMemory(mem, 4, 2, value.Int16)
	if err != nil {
		t.Fatal(err)
	}
	view.Set(1, -2.0)
	if mem[6] != 0xFE || mem[7] != 0xFF {
		t.Errorf("write through view = %v", mem[4:8])
	}
	if _, err := ViewMemory(mem, 12, 3, value.Int16); err == nil {
		t.Error("view past the end should fail")
	}
}

func TestCopyToDataView(t *testing.T) {
	buf := value.WrapBytes([]byte{1, 2, 3, 4, 5})
	dv, err := CopyToDataView(buf, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dv.Bytes(), []byte{2, 3, 4}) {
		t.Errorf("copy = %v", dv.Bytes())
	}
	dv.Bytes()[0] = 9
	if buf.Bytes()[1] != 2 {
		t.Error("CopyToDataView must not alias")
	}
	if _, err := CopyToDataView(buf, 3, 3); err == nil {
		t.Error("range past the buffer should fail")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   value.Value
		want Tag
	}{
		{value.Undefined, 1},
		{true, 2},
		{1.5, 3},
		{int32(1), 3},
		{"", 4},
		{value.ArrayOf(), 5},
		{value.NewTypedArray(value.Int8, 0), 6},
		{value.NewTypedArray(value.Uint8, 0), 7},
		{value.NewTypedArray(value.Uint8Clamped, 0), 8},
		{value.NewTypedArray(value.Int16, 0), 9},
		{value.NewTypedArray(value.Uint16, 0), 10},
		{value.NewTypedArray(value.Int32, 0), 11},
		{value.NewTypedArray(value.Uint32, 0), 12},
		{value.NewTypedArray(value.Float32, 0), 13},
		{value.NewTypedArray(value.Float64, 0), 14},
		{mustDataView(t), 15},
		{value.NewArrayBuffer(0), 16},
		{value.NewSharedArrayBuffer(0), 17},
		{value.NewFuture(nil), 18},
		{nil, 19},
		{value.NewObject(), 19},
		{int64(1), 19},
		{value.NewFunction("f", nil), 19},
		{value.NewTypedArray(value.BigInt64, 0), 20},
		{value.NewTypedArray(value.BigUint64, 0), 21},
	}
	for _, tt := range tests {
		got := Classify(tt.in)
		if got != tt.want {
			t.Errorf("Classify(%T) = %d (%s), want %d", tt.in, got, got, tt.want)
		}
		if again := Classify(tt.in); again != got {
			t.Errorf("Classify(%T) unstable: %d then %d", tt.in, got, again)
		}
	}
}

func TestBufferKind(t *testing.T) {
	if BufferKind(value.NewArrayBuffer(1)) != 0 || BufferKind(value.NewSharedArrayBuffer(1)) != 1 || BufferKind("x") != 2 {
		t.Error("BufferKind mismatch")
	}
}

func mustDataView(t *testing.T) *value.DataView {
	t.Helper()
	dv, err := value.NewDataView(value.NewArrayBuffer(4), 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	return dv
}
