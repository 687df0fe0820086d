package imports

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/eventloop"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/value"
	"github.com/wippyai/wasm-bridge/wasm"
)

type testEnv struct {
	heap *heap.Table
	loop *eventloop.Loop
	mem  marshal.Memory
}

func newTestEnv() *testEnv {
	return &testEnv{
		heap: heap.New(value.NewObject()),
		loop: eventloop.New(),
		mem:  make(marshal.SliceMemory, 256),
	}
}

func (e *testEnv) Heap() *heap.Table { return e.heap }
func (e *testEnv) Loop() *eventloop.Loop { return e.loop }
func (e *testEnv) Memory() marshal.Memory { return e.mem }
func (e *testEnv) HasExport(string) bool { return false }
func (e *testEnv) Logger() *zap.Logger { return zap.NewNop() }
func (e *testEnv) Call(context.Context, string, ...uint64) ([]uint64, error) {
	return nil, errors.New("no exports")
}

func call(t *testing.T, env Env, ns Namespace, name string, args ...value.Value) (value.Value, error) {
	t.Helper()
	s, ok := ns[name]
	if !ok {
		t.Fatalf("slot %s not defined", name)
	}
	if len(args) != len(s.Params) {
		t.Fatalf("slot %s takes %d args, got %d", name, len(s.Params), len(args))
	}
	return s.Fn(context.Background(), env, args)
}

func TestMergeFixedWins(t *testing.T) {
	fixed := Table{"bridge": {"a": Void(nil), "b": Void(nil, I32)}}
	caller := Table{
		"bridge": {"b": Void(nil, F64), "c": Void(nil)},
		"env":    {"d": Void(nil)},
	}

	merged, collisions := Merge(fixed, caller)

	if len(collisions) != 1 || collisions[0] != (Collision{Namespace: "bridge", Name: "b"}) {
		t.Errorf("collisions = %v", collisions)
	}
	if s, _ := merged.Lookup("bridge", "b"); len(s.Params) != 1 || s.Params[0] != I32 {
		t.Error("fixed slot b was replaced")
	}
	for _, name := range [][2]string{{"bridge", "a"}, {"bridge", "c"}, {"env", "d"}} {
		if _, ok := merged.Lookup(name[0], name[1]); !ok {
			t.Errorf("%s.%s missing after merge", name[0], name[1])
		}
	}
	if merged.Len() != 4 {
		t.Errorf("Len = %d, want 4", merged.Len())
	}
	if _, ok := fixed.Lookup("bridge", "c"); ok {
		t.Error("Merge modified the fixed table")
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Add should panic on a duplicate slot")
		}
	}()
	tbl := Table{"bridge": {"a": Void(nil)}}
	tbl.Add("bridge", Namespace{"a": Void(nil)})
}

func TestFixedTableHasNoOverlap(t *testing.T) {
	tbl := Fixed()
	if tbl.Len() != len(Core())+len(Buffers()) {
		t.Errorf("Len = %d, want %d", tbl.Len(), len(Core())+len(Buffers()))
	}
}

func TestResolve(t *testing.T) {
	noop := func(context.Context, Env, []value.Value) (value.Value, error) { return nil, nil }
	tbl := Table{
		"bridge": {
			"len": Returns(I32, noop, Ref),
			"any": Dynamic(noop),
		},
	}
	ext := []api.ValueType{api.ValueTypeExternref}
	i32 := []api.ValueType{api.ValueTypeI32}
	v128 := []api.ValueType{api.ValueType(0x7b)}

	tests := []struct {
		name    string
		wanted  []Import
		missing int
	}{
		{"exact", []Import{{Module: "bridge", Name: "len", Params: ext, Results: i32}}, 0},
		{"dynamic adopts", []Import{{Module: "bridge", Name: "any", Params: i32, Results: ext}}, 0},
		{"absent", []Import{{Module: "bridge", Name: "nope"}}, 1},
		{"mismatch", []Import{{Module: "bridge", Name: "len", Params: i32, Results: i32}}, 1},
		{"dynamic v128", []Import{{Module: "bridge", Name: "any", Params: v128}}, 1},
		{"collects all", []Import{{Module: "x", Name: "a"}, {Module: "bridge", Name: "len"}, {Module: "y", Name: "b"}}, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bindings, err := Resolve(tbl, tc.wanted)
			if tc.missing == 0 {
				if err != nil {
					t.Fatalf("Resolve: %v", err)
				}
				if len(bindings) != len(tc.wanted) {
					t.Errorf("got %d bindings", len(bindings))
				}
				return
			}
			var mie *bridgeerrors.MissingImportsError
			if !errors.As(err, &mie) {
				t.Fatalf("err = %v, want MissingImportsError", err)
			}
			if len(mie.Imports) != tc.missing {
				t.Errorf("missing = %v, want %d entries", mie.Imports, tc.missing)
			}
			if bindings != nil {
				t.Error("partial bindings returned")
			}
		})
	}
}

func TestCodec(t *testing.T) {
	h := heap.New(nil)
	obj := value.NewObject()

	tests := []struct {
		kind Kind
		in   value.Value
		want value.Value
	}{
		{I32, -5.0, -5.0},
		{I32, 4294967295.0, -1.0},
		{I64, int64(math.MinInt64), int64(math.MinInt64)},
		{F32, 0.5, 0.5},
		{F64, math.Inf(-1), math.Inf(-1)},
		{Bool, true, true},
		{Bool, 0.0, false},
		{Ref, obj, obj},
		{Ref, "s", "s"},
		{Ref, value.Undefined, value.Undefined},
	}
	for _, tt := range tests {
		raw := Encode(h, tt.kind, tt.in)
		got, err := Decode(h, tt.kind, raw)
		if err != nil {
			t.Fatalf("%s: Decode: %v", tt.kind, err)
		}
		if got != tt.want {
			t.Errorf("%s: %v round-tripped to %v", tt.kind, tt.in, got)
		}
	}

	raw := Encode(h, Handle, obj)
	if got, _ := Decode(h, Handle, raw); got != heap.Handle(raw) {
		t.Errorf("Handle decode = %v", got)
	}
	if Encode(h, Handle, heap.Handle(99)) != 99 {
		t.Error("raw handles should pass through")
	}
	if _, err := Decode(h, Ref, 4000); !errors.Is(err, bridgeerrors.ErrMarshal) {
		t.Errorf("stale handle decode = %v", err)
	}
}

func TestCoreSlots(t *testing.T) {
	env := newTestEnv()
	core := Core()

	obj, _ := call(t, env, core, "newObject")
	if _, err := call(t, env, core, "setProperty", obj, "k", 2.0); err != nil {
		t.Fatal(err)
	}
	if got, _ := call(t, env, core, "getProperty", obj, "k"); got != 2.0 {
		t.Errorf("getProperty = %v", got)
	}
	if got, _ := call(t, env, core, "hasProperty", obj, "k"); got != true {
		t.Error("hasProperty = false")
	}
	if got, _ := call(t, env, core, "deleteProperty", obj, "k"); got != true {
		t.Error("deleteProperty = false")
	}
	if _, err := call(t, env, core, "getProperty", value.Undefined, "k"); err == nil {
		t.Error("property of undefined should fail")
	}

	list, _ := call(t, env, core, "list2", 1.0, "two")
	if n, _ := call(t, env, core, "arrayLength", list); n != 2 {
		t.Errorf("arrayLength = %v", n)
	}
	_, _ = call(t, env, core, "arrayPush", list, 3.0)
	if got, _ := call(t, env, core, "arrayGet", list, 2.0); got != 3.0 {
		t.Errorf("arrayGet(2) = %v", got)
	}

	sum := value.NewFunction("sum", func(_ context.Context, this value.Value, args []value.Value) (value.Value, error) {
		total := 0.0
		for _, a := range args {
			total += value.ToNumber(a)
		}
		return total, nil
	})
	if got, _ := call(t, env, core, "callFunction", sum, value.Undefined, value.ArrayOf(1.0, 2.0)); got != 3.0 {
		t.Errorf("callFunction = %v", got)
	}
	holder := value.ObjectOf("sum", sum)
	if got, _ := call(t, env, core, "callMethod", holder, "sum", value.ArrayOf(4.0)); got != 4.0 {
		t.Errorf("callMethod = %v", got)
	}
	if _, err := call(t, env, core, "callFunction", obj, value.Undefined, nil); err == nil {
		t.Error("calling a non-function should fail")
	}
	if _, err := call(t, env, core, "construct", sum, nil); err == nil {
		t.Error("constructing a plain function should fail")
	}

	if got, _ := call(t, env, core, "classify", "s"); got != uint32(marshal.TagString) {
		t.Errorf("classify = %v", got)
	}
	if got, _ := call(t, env, core, "typeof", sum); got != "function" {
		t.Errorf("typeof = %v", got)
	}
	if got, _ := call(t, env, core, "strictEquals", obj, obj); got != true {
		t.Error("strictEquals(obj, obj) = false")
	}
}

func TestFutureSlots(t *testing.T) {
	env := newTestEnv()
	core := Core()

	var got []value.Value
	record := value.NewFunction("record", func(_ context.Context, _ value.Value, args []value.Value) (value.Value, error) {
		got = append(got, args...)
		return nil, nil
	})

	ok, _ := call(t, env, core, "newFuture")
	bad, _ := call(t, env, core, "newFuture")
	for _, f := range []value.Value{ok, bad} {
		if _, err := call(t, env, core, "futureThen", f, record, record); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = call(t, env, core, "resolveFuture", ok, "yes")
	_, _ = call(t, env, core, "rejectFuture", bad, value.Undefined)

	if err := env.loop.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "yes" || !value.IsUndefined(got[1]) || got[2] != true {
		t.Errorf("reactions got %v", got)
	}
}

func TestBufferSlots(t *testing.T) {
	env := newTestEnv()
	buf := Buffers()

	view, err := call(t, env, buf, "newTypedArray", float64(value.Uint16), 4.0)
	if err != nil {
		t.Fatal(err)
	}
	arr := view.(*value.TypedArray)
	for i := 0; i < 4; i++ {
		arr.Set(i, float64(i+1))
	}

	if _, err := call(t, env, buf, "copyToSandbox", view, 0.0, 16.0, 4.0); err != nil {
		t.Fatal(err)
	}
	if v, _ := env.mem.ReadU16(22); v != 4 {
		t.Errorf("sandbox[22] = %d, want 4", v)
	}

	back := value.NewTypedArray(value.Uint16, 4)
	if _, err := call(t, env, buf, "copyFromSandbox", 18.0, back, 1.0, 3.0); err != nil {
		t.Fatal(err)
	}
	if back.Get(1) != 2.0 || back.Get(3) != 4.0 {
		t.Errorf("copied back %v %v", back.Get(1), back.Get(3))
	}

	if _, err := call(t, env, buf, "copyToSandbox", view, 2.0, 0.0, 4.0); !errors.Is(err, bridgeerrors.ErrMarshal) {
		t.Errorf("oversized copy = %v, want marshal error", err)
	}

	dv, err := call(t, env, buf, "dataViewCopy", view, 2.0, 4.0)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := call(t, env, buf, "dataViewGetUint16", dv, 0.0, true); got != 2.0 {
		t.Errorf("dataViewGetUint16 = %v", got)
	}
	if _, err := call(t, env, buf, "dataViewSetInt32", dv, 0.0, -2.0, false); err != nil {
		t.Fatal(err)
	}
	if got, _ := call(t, env, buf, "dataViewGetInt32", dv, 0.0, false); got != -2.0 {
		t.Errorf("dataViewGetInt32 = %v", got)
	}
	if arr.Get(1) != 2.0 {
		t.Error("dataViewCopy must not alias the source")
	}

	alias, err := call(t, env, buf, "reinterpret", view, float64(value.Uint8), 0.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	alias.(*value.TypedArray).Set(0, 9.0)
	if arr.Get(0) != 9.0 {
		t.Errorf("reinterpret does not alias: %v", arr.Get(0))
	}

	if got, _ := call(t, env, buf, "viewKind", view); got != int(value.Uint16) {
		t.Errorf("viewKind = %v", got)
	}
	if got, _ := call(t, env, buf, "viewKind", "x"); got != -1 {
		t.Errorf("viewKind(string) = %v", got)
	}
	if got, _ := call(t, env, buf, "classifyBuffer", value.NewSharedArrayBuffer(1)); got != 1 {
		t.Errorf("classifyBuffer = %v", got)
	}
}

// lenModule exports len(externref) -> i32 backed by bridge.typedArrayLength.
func lenModule() []byte {
	ext := []wasm.ValType{wasm.ValExtern}
	i32 := []wasm.ValType{wasm.ValI32}
	b := wasm.NewBuilder()
	imp := b.ImportFunc(RootNamespace, "typedArrayLength", ext, i32)
	fn := b.Func(ext, i32, wasm.NewCode().LocalGet(0).Call(imp).End().Body())
	b.ExportFunc("len", fn)
	return b.Bytes()
}

func TestSlotsThroughWasm(t *testing.T) {
	ctx := context.Background()
	e, err := engine.New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close(ctx)

	compiled, err := e.Compile(ctx, lenModule())
	if err != nil {
		t.Fatal(err)
	}
	bindings, err := Resolve(Fixed(), ImportsOf(compiled))
	if err != nil {
		t.Fatal(err)
	}

	env := newTestEnv()
	hosts := make(map[string]api.Module)
	for ns, funcs := range HostModules(bindings, env) {
		m, err := e.InstantiateHost(ctx, ns, funcs)
		if err != nil {
			t.Fatal(err)
		}
		hosts[ns] = m
	}
	mod, err := e.Instantiate(ctx, compiled, hosts)
	if err != nil {
		t.Fatal(err)
	}

	h := env.heap.Ref(value.NewTypedArray(value.Float64, 7))
	res, err := mod.ExportedFunction("len").Call(ctx, uint64(h))
	if err != nil {
		t.Fatal(err)
	}
	if res[0] != 7 {
		t.Errorf("len = %d, want 7", res[0])
	}

	_, err = mod.ExportedFunction("len").Call(ctx, uint64(env.heap.Ref("not a view")))
	if !errors.Is(err, bridgeerrors.ErrHostCapability) {
		t.Errorf("err = %v, want host capability error", err)
	}
}
