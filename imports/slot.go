package imports

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/eventloop"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/value"
)

// Kind is how a slot parameter or result is represented at the wasm boundary.
type Kind uint8

const (
	I32 Kind = iota + 1
	I64
	F32
	F64
	// Ref is a host value carried as an externref heap handle.
	Ref
	// Bool is an i32 that is 0 or 1.
	Bool
	// Handle is an externref passed through as a raw heap.Handle.
	Handle
)

// ValueType returns the wasm value type for k.
func (k Kind) ValueType() api.ValueType {
	switch k {
	case I64:
		return api.ValueTypeI64
	case F32:
		return api.ValueTypeF32
	case F64:
		return api.ValueTypeF64
	case Ref, Handle:
		return api.ValueTypeExternref
	default:
		return api.ValueTypeI32
	}
}

func (k Kind) String() string {
	switch k {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Ref:
		return "externref"
	case Bool:
		return "bool"
	case Handle:
		return "handle"
	default:
		return "invalid"
	}
}

// kindOf maps a declared wasm value type to a slot kind.
func kindOf(vt api.ValueType) (Kind, bool) {
	switch vt {
	case api.ValueTypeI32:
		return I32, true
	case api.ValueTypeI64:
		return I64, true
	case api.ValueTypeF32:
		return F32, true
	case api.ValueTypeF64:
		return F64, true
	case api.ValueTypeExternref:
		return Ref, true
	default:
		return 0, false
	}
}

// Env is the instance a slot runs against. It is bound once when the
// instance is created and read-only afterwards.
type Env interface {
	Heap() *heap.Table
	Loop() *eventloop.Loop
	Memory() marshal.Memory
	// Call invokes an export of the main module with raw wasm values.
	Call(ctx context.Context, export string, params ...uint64) ([]uint64, error)
	HasExport(name string) bool
	Logger() *zap.Logger
}

// Func implements a slot. Arguments arrive decoded per the slot's kinds:
// numbers as float64, i64 as int64, booleans as bool, references as the
// host value behind the handle and raw handles as heap.Handle.
type Func func(ctx context.Context, env Env, args []value.Value) (value.Value, error)

// Slot describes one host function the sandbox may import.
type Slot struct {
	Fn      Func
	Params  []Kind
	Results []Kind
	// Dynamic slots take the signature the importing module declares.
	Dynamic bool
}

// Void declares a slot with no result.
func Void(fn Func, params ...Kind) Slot {
	return Slot{Fn: fn, Params: params}
}

// Returns declares a slot with a single result.
func Returns(result Kind, fn Func, params ...Kind) Slot {
	return Slot{Fn: fn, Params: params, Results: []Kind{result}}
}

// Dynamic declares a slot that adopts the declared signature.
func Dynamic(fn Func) Slot {
	return Slot{Fn: fn, Dynamic: true}
}

// Signature renders the slot signature as "(a b) -> (c)".
func (s Slot) Signature() string {
	if s.Dynamic {
		return "dynamic"
	}
	return signature(valueTypes(s.Params), valueTypes(s.Results))
}

func valueTypes(kinds []Kind) []api.ValueType {
	out := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		out[i] = k.ValueType()
	}
	return out
}

func signature(params, results []api.ValueType) string {
	join := func(ts []api.ValueType) string {
		names := make([]string, len(ts))
		for i, t := range ts {
			names[i] = api.ValueTypeName(t)
		}
		return strings.Join(names, " ")
	}
	return fmt.Sprintf("(%s) -> (%s)", join(params), join(results))
}
