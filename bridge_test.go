package wasmbridge

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wippyai/wasm-bridge/capability"
	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/value"
	"github.com/wippyai/wasm-bridge/wasm"
)

// greetModule prints its first argument through the caller's env.greet
// import and returns it.
func greetModule() []byte {
	ext := []wasm.ValType{wasm.ValExtern}
	b := wasm.NewBuilder()
	get := b.ImportFunc(imports.RootNamespace, "arrayGet", []wasm.ValType{wasm.ValExtern, wasm.ValI32}, ext)
	greet := b.ImportFunc("env", "greet", ext, ext)
	main := b.Func(ext, ext, wasm.NewCode().
		LocalGet(0).I32Const(0).Call(get).Call(greet).
		End().Body())
	b.ExportFunc(runtime.DefaultEntrypoint, main)
	return b.Bytes()
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	cfg := &runtime.Config{Capabilities: capability.Options{Output: &out}}
	extra := imports.Table{"env": {
		"greet": imports.Returns(imports.Ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return "Hello, " + value.ToString(args[0]) + "!", nil
		}, imports.Ref),
	}}

	res, err := Run(context.Background(), cfg, greetModule(), extra, "World")
	if err != nil {
		t.Fatal(err)
	}
	if res != "Hello, World!" {
		t.Errorf("Run = %v", res)
	}
}

func TestRunFailures(t *testing.T) {
	ctx := context.Background()
	if _, err := Run(ctx, nil, []byte("nope"), nil); !errors.Is(err, bridgeerrors.ErrCompilation) {
		t.Errorf("bad bytes: %v, want compilation error", err)
	}
	if _, err := Run(ctx, nil, greetModule(), nil); !errors.Is(err, bridgeerrors.ErrInstantiation) {
		t.Errorf("missing env.greet: %v, want instantiation error", err)
	}
}
