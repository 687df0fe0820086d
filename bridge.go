package wasmbridge

import (
	"context"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/value"
)

// Run compiles bin with the js-string builtins, instantiates it once with
// additional imports and calls its entrypoint with args. The runtime and
// instance are closed before Run returns. A nil cfg uses defaults.
func Run(ctx context.Context, cfg *runtime.Config, bin []byte, additional imports.Table, args ...value.Value) (value.Value, error) {
	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer rt.Close(ctx)

	art, err := rt.Compile(ctx, bin, runtime.WithBuiltins(runtime.BuiltinJSString))
	if err != nil {
		return nil, err
	}
	inst, err := art.Instantiate(ctx, additional, runtime.Options{})
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)

	return inst.InvokeMain(ctx, args...)
}
