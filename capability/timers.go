package capability

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

// CallbackExport is the main module export that runs a scheduled callback.
// It receives the i32 the module passed when scheduling.
const CallbackExport = "$invokeCallback"

func delay(ms value.Value) time.Duration {
	f := value.ToNumber(ms)
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Millisecond))
}

// invoker runs the module callback c from the loop. Failures end the
// current run.
func invoker(ctx context.Context, env imports.Env, c value.Value) func() {
	ctx = context.WithoutCancel(ctx)
	ref := uint64(value.ToUint32(c))
	return func() {
		if _, err := env.Call(ctx, CallbackExport, ref); err != nil {
			env.Logger().Warn("scheduled callback failed", zap.Error(err))
			env.Loop().Fail(err)
		}
	}
}

func timers() imports.Namespace {
	schedule := func(every bool) imports.Slot {
		return imports.Returns(imports.I32, func(ctx context.Context, env imports.Env, args []value.Value) (value.Value, error) {
			if !env.HasExport(CallbackExport) {
				return nil, &value.TypeError{Msg: "module does not export " + CallbackExport}
			}
			fn := invoker(ctx, env, args[1])
			if every {
				return env.Loop().SetInterval(delay(args[0]), fn), nil
			}
			return env.Loop().SetTimeout(delay(args[0]), fn), nil
		}, imports.F64, imports.I32)
	}
	cancel := imports.Void(func(_ context.Context, env imports.Env, args []value.Value) (value.Value, error) {
		env.Loop().Clear(imports.Int(args[0]))
		return nil, nil
	}, imports.I32)

	return imports.Namespace{
		"setTimeout":    schedule(false),
		"setInterval":   schedule(true),
		"clearTimeout":  cancel,
		"clearInterval": cancel,
		"queueMicrotask": imports.Void(func(ctx context.Context, env imports.Env, args []value.Value) (value.Value, error) {
			if !env.HasExport(CallbackExport) {
				return nil, &value.TypeError{Msg: "module does not export " + CallbackExport}
			}
			env.Loop().Microtask(invoker(ctx, env, args[0]))
			return nil, nil
		}, imports.I32),
	}
}
