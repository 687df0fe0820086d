package imports

import (
	"context"

	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/value"
)

// RootNamespace is the import module name of the fixed table.
const RootNamespace = "bridge"

// Args converts a host list argument to a Go slice. Undefined and null are
// empty argument lists.
func Args(v value.Value) ([]value.Value, error) {
	switch x := v.(type) {
	case *value.Array:
		return x.Elems, nil
	case nil, value.UndefinedType:
		return nil, nil
	default:
		return nil, &value.TypeError{Msg: "argument list must be an array, got " + value.TypeOf(v)}
	}
}

// Int converts a decoded numeric argument to int.
func Int(v value.Value) int {
	return int(value.ToInt32(v))
}

// Core returns the object-model slots: handle lifetime, property access,
// dynamic dispatch, construction, lists, conversions and type tagging.
func Core() Namespace {
	return Namespace{
		"release": Void(func(_ context.Context, env Env, args []value.Value) (value.Value, error) {
			return nil, env.Heap().Release(args[0].(heap.Handle))
		}, Handle),
		"dup": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return args[0], nil
		}, Ref),
		"global": Returns(Handle, func(context.Context, Env, []value.Value) (value.Value, error) {
			return heap.Global, nil
		}),

		"getProperty": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.GetProperty(args[0], args[1])
		}, Ref, Ref),
		"setProperty": Void(func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return nil, value.SetProperty(args[0], args[1], args[2])
		}, Ref, Ref, Ref),
		"hasProperty": Returns(Bool, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.HasProperty(args[0], args[1])
		}, Ref, Ref),
		"deleteProperty": Returns(Bool, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.DeleteProperty(args[0], args[1]), nil
		}, Ref, Ref),

		"callMethod": Returns(Ref, func(ctx context.Context, _ Env, args []value.Value) (value.Value, error) {
			list, err := Args(args[2])
			if err != nil {
				return nil, err
			}
			return value.CallMethod(ctx, args[0], args[1], list)
		}, Ref, Ref, Ref),
		"callFunction": Returns(Ref, func(ctx context.Context, _ Env, args []value.Value) (value.Value, error) {
			fn, ok := args[0].(value.Callable)
			if !ok {
				return nil, &value.TypeError{Msg: value.TypeOf(args[0]) + " is not a function"}
			}
			list, err := Args(args[2])
			if err != nil {
				return nil, err
			}
			return fn.Call(ctx, args[1], list...)
		}, Ref, Ref, Ref),
		"construct": Returns(Ref, func(ctx context.Context, _ Env, args []value.Value) (value.Value, error) {
			ctor, ok := args[0].(value.Constructor)
			if !ok {
				return nil, &value.TypeError{Msg: value.TypeOf(args[0]) + " is not a constructor"}
			}
			list, err := Args(args[1])
			if err != nil {
				return nil, err
			}
			return ctor.New(ctx, list...)
		}, Ref, Ref),

		"newObject": Returns(Ref, func(context.Context, Env, []value.Value) (value.Value, error) {
			return value.NewObject(), nil
		}),
		"newArray": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			n := Int(args[0])
			if n < 0 {
				return nil, &value.RangeError{Msg: "invalid array length"}
			}
			return value.NewArray(n), nil
		}, I32),
		"arrayLength": Returns(I32, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			a, ok := args[0].(*value.Array)
			if !ok {
				return nil, &value.TypeError{Msg: "not an array"}
			}
			return a.Len(), nil
		}, Ref),
		"arrayGet": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.GetProperty(args[0], args[1])
		}, Ref, I32),
		"arraySet": Void(func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return nil, value.SetProperty(args[0], args[1], args[2])
		}, Ref, I32, Ref),
		"arrayPush": Void(func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			a, ok := args[0].(*value.Array)
			if !ok {
				return nil, &value.TypeError{Msg: "not an array"}
			}
			a.Push(args[1])
			return nil, nil
		}, Ref, Ref),
		"list1": Returns(Ref, listOf, Ref),
		"list2": Returns(Ref, listOf, Ref, Ref),
		"list3": Returns(Ref, listOf, Ref, Ref, Ref),
		"list4": Returns(Ref, listOf, Ref, Ref, Ref, Ref),

		"numberToRef": Returns(Ref, identity, F64),
		"refToNumber": Returns(F64, toNumber, Ref),
		"boolToRef":   Returns(Ref, identity, Bool),
		"refToBool":   Returns(Bool, toBool, Ref),
		"bigintToRef": Returns(Ref, identity, I64),
		"refToBigInt": Returns(I64, identity, Ref),
		"toString": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.ToString(args[0]), nil
		}, Ref),
		"typeof": Returns(Ref, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.TypeOf(args[0]), nil
		}, Ref),
		"isUndefined": Returns(Bool, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.IsUndefined(args[0]), nil
		}, Ref),
		"strictEquals": Returns(Bool, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return value.StrictEquals(args[0], args[1]), nil
		}, Ref, Ref),
		"classify": Returns(I32, func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			return uint32(marshal.Classify(args[0])), nil
		}, Ref),

		"newFuture": Returns(Ref, func(_ context.Context, env Env, _ []value.Value) (value.Value, error) {
			return value.NewFuture(env.Loop()), nil
		}),
		"resolveFuture": Void(func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			f, err := future(args[0])
			if err != nil {
				return nil, err
			}
			f.Resolve(args[1])
			return nil, nil
		}, Ref, Ref),
		"rejectFuture": Void(func(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
			f, err := future(args[0])
			if err != nil {
				return nil, err
			}
			f.Reject(args[1])
			return nil, nil
		}, Ref, Ref),
		"futureThen": Void(futureThen, Ref, Ref, Ref),
	}
}

func identity(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
	return args[0], nil
}

func toNumber(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
	return value.ToNumber(args[0]), nil
}

func toBool(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
	return value.ToBoolean(args[0]), nil
}

func listOf(_ context.Context, _ Env, args []value.Value) (value.Value, error) {
	return value.ArrayOf(args...), nil
}

func future(v value.Value) (*value.Future, error) {
	f, ok := v.(*value.Future)
	if !ok {
		return nil, &value.TypeError{Msg: "not a future: " + value.TypeOf(v)}
	}
	return f, nil
}

// futureThen subscribes two callables to a future. The rejection callable
// also learns whether the reason was undefined.
func futureThen(ctx context.Context, env Env, args []value.Value) (value.Value, error) {
	f, err := future(args[0])
	if err != nil {
		return nil, err
	}
	onOK, ok1 := args[1].(value.Callable)
	onErr, ok2 := args[2].(value.Callable)
	if !ok1 || !ok2 {
		return nil, &value.TypeError{Msg: "future callbacks must be functions"}
	}
	loop := env.Loop()
	f.Then(func(v value.Value) {
		if _, err := onOK.Call(ctx, value.Undefined, v); err != nil {
			loop.Fail(err)
		}
	}, func(reason value.Value) {
		if _, err := onErr.Call(ctx, value.Undefined, reason, value.IsUndefined(reason)); err != nil {
			loop.Fail(err)
		}
	})
	return nil, nil
}
