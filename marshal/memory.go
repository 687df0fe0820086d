package marshal

import (
	"encoding/binary"

	"github.com/wippyai/wasm-bridge/errors"
)

// Memory is sandbox linear memory as seen by the marshaller.
// Every accessor reports out-of-range access as an error instead of trapping.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
	Size() uint32
}

// SliceMemory is a Memory backed by a byte slice. Reads alias the slice.
type SliceMemory []byte

func (m SliceMemory) span(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m)) {
		return nil, errors.RegionOutOfBounds(errors.PhaseMarshal, uint64(offset), uint64(length), uint64(len(m)))
	}
	return m[offset:end], nil
}

func (m SliceMemory) Read(offset, length uint32) ([]byte, error) {
	return m.span(offset, length)
}

func (m SliceMemory) Write(offset uint32, data []byte) error {
	b, err := m.span(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m SliceMemory) ReadU8(offset uint32) (uint8, error) {
	b, err := m.span(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m SliceMemory) ReadU16(offset uint32) (uint16, error) {
	b, err := m.span(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (m SliceMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m SliceMemory) ReadU64(offset uint32) (uint64, error) {
	b, err := m.span(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m SliceMemory) WriteU8(offset uint32, v uint8) error {
	b, err := m.span(offset, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (m SliceMemory) WriteU16(offset uint32, v uint16) error {
	b, err := m.span(offset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

func (m SliceMemory) WriteU32(offset uint32, v uint32) error {
	b, err := m.span(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (m SliceMemory) WriteU64(offset uint32, v uint64) error {
	b, err := m.span(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

func (m SliceMemory) Size() uint32 { return uint32(len(m)) }

var _ Memory = SliceMemory(nil)
