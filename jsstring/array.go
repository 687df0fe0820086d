package jsstring

import (
	"context"
	"encoding/binary"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/value"
)

// ChunkSize is the number of code units moved per step in both directions.
const ChunkSize = 500

// Accessor exports a module may provide for its i16 arrays.
const (
	GetExport = "$wasmI16ArrayGet"
	SetExport = "$wasmI16ArraySet"
)

// Array reads and writes single elements of a module-owned i16 array
// identified by a.
type Array interface {
	Get(ctx context.Context, a, i uint32) (uint16, error)
	Set(ctx context.Context, a, i uint32, u uint16) error
}

// MemoryArray treats a as the address of element 0 in linear memory.
type MemoryArray struct {
	Memory marshal.Memory
}

func (m MemoryArray) addr(a, i uint32) (uint32, error) {
	off := uint64(a) + 2*uint64(i)
	if off+2 > uint64(m.Memory.Size()) {
		return 0, errors.RegionOutOfBounds(errors.PhaseMarshal, off, 2, uint64(m.Memory.Size()))
	}
	return uint32(off), nil
}

func (m MemoryArray) Get(_ context.Context, a, i uint32) (uint16, error) {
	off, err := m.addr(a, i)
	if err != nil {
		return 0, err
	}
	return m.Memory.ReadU16(off)
}

func (m MemoryArray) Set(_ context.Context, a, i uint32, u uint16) error {
	off, err := m.addr(a, i)
	if err != nil {
		return err
	}
	return m.Memory.WriteU16(off, u)
}

// ExportArray goes through the module's accessor exports.
type ExportArray struct {
	Env imports.Env
}

func (e ExportArray) Get(ctx context.Context, a, i uint32) (uint16, error) {
	res, err := e.Env.Call(ctx, GetExport, uint64(a), uint64(i))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, errors.InvalidInput(errors.PhaseMarshal, GetExport+" returned no value")
	}
	return uint16(res[0]), nil
}

func (e ExportArray) Set(ctx context.Context, a, i uint32, u uint16) error {
	_, err := e.Env.Call(ctx, SetExport, uint64(a), uint64(i), uint64(u))
	return err
}

// ArrayFor picks the export accessors when the module has both, and linear
// memory otherwise.
func ArrayFor(env imports.Env) Array {
	if env.HasExport(GetExport) && env.HasExport(SetExport) {
		return ExportArray{Env: env}
	}
	return MemoryArray{Memory: env.Memory()}
}

// ReadUnits decodes elements [start, end) of a one unit at a time, ChunkSize
// units per step. Units are joined before conversion so pairs split across
// chunks survive. Storage grows with the units actually read, so a bogus
// end fails on the first bad element instead of allocating up front.
func ReadUnits(ctx context.Context, arr Array, a, start, end uint32) (string, error) {
	if end <= start {
		return "", nil
	}
	units := make([]uint16, 0, min(end-start, ChunkSize))
	chunk := make([]uint16, 0, ChunkSize)
	for idx := start; idx < end; {
		n := min(end-idx, ChunkSize)
		chunk = chunk[:0]
		for range n {
			u, err := arr.Get(ctx, a, idx)
			if err != nil {
				return "", err
			}
			chunk = append(chunk, u)
			idx++
		}
		units = append(units, chunk...)
	}
	return FromUnits(units), nil
}

// WriteUnits encodes s into a starting at element start, one unit at a
// time, and returns the number of units written.
func WriteUnits(ctx context.Context, arr Array, s string, a, start uint32) (uint32, error) {
	units := Units(s)
	for base := 0; base < len(units); base += ChunkSize {
		for i, u := range units[base:min(base+ChunkSize, len(units))] {
			if err := arr.Set(ctx, a, start+uint32(base+i), u); err != nil {
				return 0, err
			}
		}
	}
	return uint32(len(units)), nil
}

// ReadRegion decodes elements [start, end) of the i16 array at address a,
// copying ChunkSize units per step.
func ReadRegion(mem marshal.Memory, a, start, end uint32) (string, error) {
	if end <= start {
		return "", nil
	}
	src := marshal.Region{Memory: mem, Ptr: a, Len: end, Kind: value.Uint16}
	if err := src.Check(); err != nil {
		return "", err
	}
	host := value.NewTypedArray(value.Uint16, int(end-start))
	for off := 0; off < host.Len(); off += ChunkSize {
		n := min(ChunkSize, host.Len()-off)
		if err := marshal.CopySandboxToHost(src, int(start)+off, host, off, n); err != nil {
			return "", err
		}
	}
	b := host.Bytes()
	units := make([]uint16, host.Len())
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return FromUnits(units), nil
}

// WriteRegion encodes s into the i16 array at address a starting at element
// start, copying ChunkSize units per step.
func WriteRegion(mem marshal.Memory, s string, a, start uint32) (uint32, error) {
	units := Units(s)
	if len(units) == 0 {
		return 0, nil
	}
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	host, err := value.NewTypedArrayOn(value.Uint16, value.WrapBytes(b), 0, len(units))
	if err != nil {
		return 0, err
	}
	dst := marshal.Region{Memory: mem, Ptr: a, Len: start + uint32(len(units)), Kind: value.Uint16}
	for off := 0; off < len(units); off += ChunkSize {
		n := min(ChunkSize, len(units)-off)
		if err := marshal.CopyHostToSandbox(host, off, dst, int(start)+off, n); err != nil {
			return 0, err
		}
	}
	return uint32(len(units)), nil
}
