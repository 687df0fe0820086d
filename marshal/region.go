package marshal

import (
	"encoding/binary"
	"strconv"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

// Region is an array of Len elements of Kind in sandbox memory starting at Ptr.
type Region struct {
	Memory Memory
	Ptr    uint32
	Len    uint32
	Kind   value.ElementKind
}

// ByteLength returns the size of the region in bytes.
func (r Region) ByteLength() uint64 {
	return uint64(r.Len) * uint64(r.Kind.Size())
}

// Check reports whether the whole region lies inside its memory.
func (r Region) Check() error {
	if !r.Kind.Valid() {
		return errors.Unsupported(errors.PhaseMarshal, r.Kind.String())
	}
	if r.Memory == nil {
		return errors.InvalidInput(errors.PhaseMarshal, "region has no memory")
	}
	extent := uint64(r.Memory.Size())
	if uint64(r.Ptr)+r.ByteLength() > extent {
		return errors.RegionOutOfBounds(errors.PhaseMarshal, uint64(r.Ptr), r.ByteLength(), extent)
	}
	return nil
}

func checkSpan(side string, offset, length, extent int) error {
	if offset < 0 || length < 0 || offset+length > extent {
		return errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
			Path(side).
			Detail("elements [%d, %d) exceed length %d", offset, offset+length, extent).
			Build()
	}
	return nil
}

func checkKinds(host *value.TypedArray, r Region) error {
	if host == nil {
		return errors.InvalidInput(errors.PhaseMarshal, "host view is nil")
	}
	if host.Kind() != r.Kind {
		return errors.KindMismatch(errors.PhaseMarshal, r.Kind.String(), host.Kind().String())
	}
	return r.Check()
}

// CopyHostToSandbox copies length elements from host[hostOffset:] into
// dst[sandboxOffset:]. Offsets and length count elements. Nothing is written
// unless both sides are in range.
func CopyHostToSandbox(host *value.TypedArray, hostOffset int, dst Region, sandboxOffset, length int) error {
	if err := checkKinds(host, dst); err != nil {
		return err
	}
	if err := checkSpan("host", hostOffset, length, host.Len()); err != nil {
		return err
	}
	if err := checkSpan("sandbox", sandboxOffset, length, int(dst.Len)); err != nil {
		return err
	}

	size := dst.Kind.Size()
	src := host.Bytes()
	mem := dst.Memory
	for i := 0; i < length; i++ {
		b := src[(hostOffset+i)*size:]
		addr := dst.Ptr + uint32((sandboxOffset+i)*size)
		var err error
		switch size {
		case 1:
			err = mem.WriteU8(addr, b[0])
		case 2:
			err = mem.WriteU16(addr, binary.LittleEndian.Uint16(b))
		case 4:
			err = mem.WriteU32(addr, binary.LittleEndian.Uint32(b))
		default:
			err = mem.WriteU64(addr, binary.LittleEndian.Uint64(b))
		}
		if err != nil {
			return errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "element "+strconv.Itoa(sandboxOffset+i))
		}
	}
	return nil
}

// CopySandboxToHost copies length elements from src[sandboxOffset:] into
// host[hostOffset:].
func CopySandboxToHost(src Region, sandboxOffset int, host *value.TypedArray, hostOffset, length int) error {
	if err := checkKinds(host, src); err != nil {
		return err
	}
	if err := checkSpan("sandbox", sandboxOffset, length, int(src.Len)); err != nil {
		return err
	}
	if err := checkSpan("host", hostOffset, length, host.Len()); err != nil {
		return err
	}

	size := src.Kind.Size()
	dst := host.Bytes()
	mem := src.Memory
	for i := 0; i < length; i++ {
		b := dst[(hostOffset+i)*size:]
		addr := src.Ptr + uint32((sandboxOffset+i)*size)
		var err error
		switch size {
		case 1:
			b[0], err = mem.ReadU8(addr)
		case 2:
			var v uint16
			v, err = mem.ReadU16(addr)
			binary.LittleEndian.PutUint16(b, v)
		case 4:
			var v uint32
			v, err = mem.ReadU32(addr)
			binary.LittleEndian.PutUint32(b, v)
		default:
			var v uint64
			v, err = mem.ReadU64(addr)
			binary.LittleEndian.PutUint64(b, v)
		}
		if err != nil {
			return errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "element "+strconv.Itoa(sandboxOffset+i))
		}
	}
	return nil
}
