package imports

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/value"
)

// Decode converts a raw wasm value of kind k to a host value. Handles are
// borrowed: decoding does not change their reference count.
func Decode(h *heap.Table, k Kind, raw uint64) (value.Value, error) {
	switch k {
	case I32:
		return float64(int32(uint32(raw))), nil
	case I64:
		return int64(raw), nil
	case F32:
		return float64(math.Float32frombits(uint32(raw))), nil
	case F64:
		return math.Float64frombits(raw), nil
	case Bool:
		return uint32(raw) != 0, nil
	case Ref:
		return h.Get(heap.Handle(uint32(raw)))
	case Handle:
		return heap.Handle(uint32(raw)), nil
	default:
		return nil, errors.Unsupported(errors.PhaseMarshal, "slot kind "+k.String())
	}
}

// Encode converts a host value to a raw wasm value of kind k. References
// are retained once on behalf of the sandbox, which gives them back through
// the release slot.
func Encode(h *heap.Table, k Kind, v value.Value) uint64 {
	switch k {
	case I32:
		return uint64(value.ToUint32(v))
	case I64:
		return uint64(value.ToBigInt64(v))
	case F32:
		return uint64(math.Float32bits(float32(value.ToNumber(v))))
	case F64:
		return math.Float64bits(value.ToNumber(v))
	case Bool:
		if value.ToBoolean(v) {
			return 1
		}
		return 0
	case Handle:
		if hv, ok := v.(heap.Handle); ok {
			return uint64(hv)
		}
		return uint64(h.Ref(v))
	default:
		return uint64(h.Ref(v))
	}
}

// adapt turns a slot into a wazero host function. A slot error aborts the
// wasm call that reached it and surfaces from that call as a host capability error.
func adapt(namespace, name string, fn Func, params, results []Kind, env Env) api.GoModuleFunc {
	slot := namespace + "." + name
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		h := env.Heap()
		args := make([]value.Value, len(params))
		for i, k := range params {
			v, err := Decode(h, k, stack[i])
			if err != nil {
				panic(errors.HostCapability(slot, err))
			}
			args[i] = v
		}

		res, err := fn(ctx, env, args)
		if err != nil {
			panic(errors.HostCapability(slot, err))
		}
		if len(results) > 0 {
			stack[0] = Encode(h, results[0], res)
		}
	}
}
