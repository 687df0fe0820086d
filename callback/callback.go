package callback

import (
	"context"
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

// Callback is a host-callable wrapper around a module function.
//
// Calling it invokes the module export named after the slot that created
// it with (ref, argc, args...). Missing arguments are padded with
// undefined up to the arity fixed by the slot.
type Callback struct {
	env    imports.Env
	export string
	ref    uint32
	arity  int
}

// New wraps ref. Calls go to export on env.
func New(env imports.Env, export string, ref uint32, arity int) *Callback {
	return &Callback{env: env, export: export, ref: ref, arity: arity}
}

// Original returns the module's reference to the wrapped function.
func (c *Callback) Original() uint32 { return c.ref }

// Arity returns the number of declared parameters.
func (c *Callback) Arity() int { return c.arity }

// Export returns the trampoline export name.
func (c *Callback) Export() string { return c.export }

func (c *Callback) String() string {
	return fmt.Sprintf("callback(%s#%d/%d)", c.export, c.ref, c.arity)
}

// Call implements value.Callable. The receiver is ignored.
func (c *Callback) Call(ctx context.Context, _ value.Value, args ...value.Value) (value.Value, error) {
	if len(args) > c.arity {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(c.export).
			Detail("called with %d arguments, accepts at most %d", len(args), c.arity).
			Build()
	}

	h := c.env.Heap()
	params := make([]uint64, 2+c.arity)
	params[0] = uint64(c.ref)
	params[1] = uint64(len(args))
	for i := range c.arity {
		if i < len(args) {
			params[2+i] = imports.Encode(h, imports.Ref, args[i])
		} else {
			params[2+i] = uint64(heap.Undefined)
		}
	}

	res, err := c.env.Call(ctx, c.export, params...)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return value.Undefined, nil
	}
	return imports.Decode(h, imports.Ref, res[0])
}

// IsWrapped reports whether v wraps a module function.
func IsWrapped(v value.Value) bool {
	_, ok := v.(*Callback)
	return ok
}

// Generator returns the slot that wraps a module function reference for
// the given slot name and arity. The module must export a trampoline with
// the same name taking (i32 ref, i32 argc, externref × arity).
func Generator(slot string, arity int) imports.Slot {
	return imports.Returns(imports.Ref, func(_ context.Context, env imports.Env, args []value.Value) (value.Value, error) {
		if !env.HasExport(slot) {
			return nil, errors.NotFound(errors.PhaseHost, "trampoline export", slot)
		}
		return New(env, slot, value.ToUint32(args[0]), arity), nil
	}, imports.I32)
}

// Slots returns the wrapper inspection and finalization registry slots.
func Slots() imports.Namespace {
	return imports.Namespace{
		"isWrapped": imports.Returns(imports.Bool, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return IsWrapped(args[0]), nil
		}, imports.Ref),
		"unwrap": imports.Returns(imports.I32, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			c, ok := args[0].(*Callback)
			if !ok {
				return nil, &value.TypeError{Msg: "not a wrapped function: " + value.TypeOf(args[0])}
			}
			return c.Original(), nil
		}, imports.Ref),
		"newFinalizationRegistry": imports.Returns(imports.Ref, func(ctx context.Context, env imports.Env, args []value.Value) (value.Value, error) {
			fn, ok := args[0].(value.Callable)
			if !ok {
				return nil, &value.TypeError{Msg: "cleanup callback must be a function"}
			}
			return NewRegistry(context.WithoutCancel(ctx), env.Loop(), fn), nil
		}, imports.Ref),
		"finalizationRegister": imports.Void(func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			r, err := registry(args[0])
			if err != nil {
				return nil, err
			}
			return nil, r.Register(args[1], args[2], args[3])
		}, imports.Ref, imports.Ref, imports.Ref, imports.Ref),
		"finalizationUnregister": imports.Returns(imports.Bool, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			r, err := registry(args[0])
			if err != nil {
				return nil, err
			}
			return r.Unregister(args[1])
		}, imports.Ref, imports.Ref),
	}
}

func registry(v value.Value) (*Registry, error) {
	r, ok := v.(*Registry)
	if !ok {
		return nil, &value.TypeError{Msg: "not a finalization registry: " + value.TypeOf(v)}
	}
	return r, nil
}
