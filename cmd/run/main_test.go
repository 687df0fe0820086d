package main

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/transport"
	"github.com/wippyai/wasm-bridge/value"
	"github.com/wippyai/wasm-bridge/wasm"
)

func TestSplitArgs(t *testing.T) {
	if got := splitArgs(""); got != nil {
		t.Errorf("splitArgs(\"\") = %v", got)
	}
	want := []value.Value{"a", "", "b c"}
	if diff := cmp.Diff(want, splitArgs("a,,b c")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertArg(t *testing.T) {
	tests := []struct {
		text string
		typ  api.ValueType
		want value.Value
	}{
		{" 42 ", api.ValueTypeI32, 42.0},
		{"1.5", api.ValueTypeF64, 1.5},
		{"-9", api.ValueTypeI64, int64(-9)},
		{`"quoted"`, api.ValueTypeExternref, "quoted"},
		{"true", api.ValueTypeExternref, true},
		{"plain text", api.ValueTypeExternref, "plain text"},
	}
	for _, tt := range tests {
		if got := convertArg(tt.text, tt.typ); got != tt.want {
			t.Errorf("convertArg(%q, %s) = %#v, want %#v", tt.text, api.ValueTypeName(tt.typ), got, tt.want)
		}
	}
	if got := convertArg("x", api.ValueTypeF32); !math.IsNaN(got.(float64)) {
		t.Errorf("convertArg(x, f32) = %v, want NaN", got)
	}
}

func TestPrintSignatures(t *testing.T) {
	b := wasm.NewBuilder()
	b.ImportFunc("bridge", "print", []wasm.ValType{wasm.ValExtern}, nil)
	add := b.Func([]wasm.ValType{wasm.ValI32, wasm.ValI32}, []wasm.ValType{wasm.ValI32},
		wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).End().Body())
	b.ExportFunc("add", add)
	b.Custom("producers", []byte{0x01, 0x02, 0x03})

	ctx := context.Background()
	rt, err := runtime.New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)
	art, err := rt.Compile(ctx, b.Bytes(), runtime.WithBuiltins(runtime.BuiltinJSString))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	printSignatures(&out, art)
	for _, want := range []string{"Builtins: js-string", "bridge.print(externref)", "add(i32, i32) -> i32", "producers (3 bytes)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestLoaders(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "part.wasm"), []byte("bytes"), 0o644); err != nil {
			t.Fatal(err)
		}
		l := newLoaders(nil, options{wasmFile: filepath.Join(dir, "main.wasm")})
		got, err := l.load(ctx, "part.wasm")
		if err != nil || string(got) != "bytes" {
			t.Errorf("load = %q, %v", got, err)
		}
		if _, err := l.load(ctx, "../outside.wasm"); err == nil {
			t.Error("load outside the module directory should fail")
		}
	})

	t.Run("remote", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/app/part.wasm" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte("remote"))
		}))
		defer srv.Close()

		client := transport.NewClient(transport.Options{RetryMax: -1})
		l := newLoaders(client, options{moduleURL: srv.URL + "/app/main.wasm"})
		got, err := l.load(ctx, "part.wasm")
		if err != nil || string(got) != "remote" {
			t.Errorf("load = %q, %v", got, err)
		}
		if _, err := l.load(ctx, "missing.wasm"); err == nil {
			t.Error("404 should fail")
		}

		bin, aux, err := l.options().LoadDynamicModule(ctx, "part.wasm", "part.js")
		if err != nil || string(bin) != "remote" || aux != nil {
			t.Errorf("LoadDynamicModule = %q, %v, %v", bin, aux, err)
		}
	})
}
