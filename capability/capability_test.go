package capability

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-bridge/eventloop"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/transport"
	"github.com/wippyai/wasm-bridge/value"
)

type fakeEnv struct {
	heap    *heap.Table
	loop    *eventloop.Loop
	exports bool
	logger  *zap.Logger
	fail    error

	mu    sync.Mutex
	calls []uint64
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{heap: heap.New(value.NewObject()), loop: eventloop.New(), exports: true}
}

func (e *fakeEnv) Heap() *heap.Table { return e.heap }
func (e *fakeEnv) Loop() *eventloop.Loop { return e.loop }
func (e *fakeEnv) Memory() marshal.Memory { return make(marshal.SliceMemory, 16) }
func (e *fakeEnv) HasExport(string) bool { return e.exports }
func (e *fakeEnv) Logger() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return zap.NewNop()
}
func (e *fakeEnv) Call(_ context.Context, export string, params ...uint64) ([]uint64, error) {
	if export != CallbackExport {
		return nil, errors.New("unexpected export " + export)
	}
	e.mu.Lock()
	e.calls = append(e.calls, params...)
	e.mu.Unlock()
	return nil, e.fail
}

func call(t *testing.T, env imports.Env, ns imports.Namespace, name string, args ...value.Value) value.Value {
	t.Helper()
	s, ok := ns[name]
	if !ok {
		t.Fatalf("slot %s not defined", name)
	}
	if len(args) != len(s.Params) {
		t.Fatalf("slot %s takes %d args, got %d", name, len(s.Params), len(args))
	}
	v, err := s.Fn(context.Background(), env, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func TestCatalogLeavesCoreAlone(t *testing.T) {
	fixed := imports.Fixed()
	for name := range Catalog(Options{}) {
		if _, ok := fixed.Lookup(imports.RootNamespace, name); ok {
			t.Errorf("capability %s collides with a fixed slot", name)
		}
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.5", 1.5},
		{"  -2e3 ", -2000},
		{".5", 0.5},
		{"5.", 5},
		{"+Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		if got := ParseFloat(tt.in); got != tt.want {
			t.Errorf("ParseFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"", "abc", "0x10", "1.5abc", "1e", "--1", "NaN"} {
		if got := ParseFloat(in); !math.IsNaN(got) {
			t.Errorf("ParseFloat(%q) = %v, want NaN", in, got)
		}
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	ns := console(Options{Output: &buf})
	call(t, newFakeEnv(), ns, "print", 1.5)
	call(t, newFakeEnv(), ns, "print", "hi")
	if got := buf.String(); got != "1.5\nhi\n" {
		t.Errorf("output = %q", got)
	}
}

func TestClock(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	ns := clock(Options{Now: func() time.Time { return now }})
	env := newFakeEnv()

	if got := call(t, env, ns, "dateNow"); got != 1.7e12 {
		t.Errorf("dateNow = %v", got)
	}
	now = now.Add(1500 * time.Microsecond)
	if got := call(t, env, ns, "performanceNow"); got != 1500.0 {
		t.Errorf("performanceNow = %v, want 1500", got)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		want string
	}{
		{"number", 1.5, "1.5"},
		{"nan", math.NaN(), "null"},
		{"string", "a\"b<", `"a\"b<"`},
		{"object order", value.ObjectOf("b", 1.0, "a", true), `{"b":1,"a":true}`},
		{"skips undefined", value.ObjectOf("a", value.Undefined, "b", nil), `{"b":null}`},
		{"array holes", value.ArrayOf(1.0, value.Undefined, value.NewFunction("f", nil)), `[1,null,null]`},
		{"typed array", value.TypedArrayOf(value.Uint8, 1.0, 2.0), `{"0":1,"1":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Stringify(tt.in)
			if err != nil || !ok {
				t.Fatalf("Stringify = %q, %v, %v", got, ok, err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, ok, _ := Stringify(value.Undefined); ok {
		t.Error("undefined should have no JSON form")
	}
	var te *value.TypeError
	if _, _, err := Stringify(int64(1)); !errors.As(err, &te) {
		t.Errorf("bigint: err = %v", err)
	}
	loop := value.NewObject()
	loop.Set("self", loop)
	if _, _, err := Stringify(loop); !errors.As(err, &te) {
		t.Errorf("cycle: err = %v", err)
	}
	shared := value.NewObject()
	if got, _, err := Stringify(value.ArrayOf(shared, shared)); err != nil || got != "[{},{}]" {
		t.Errorf("repeated non-cyclic value = %s, %v", got, err)
	}
}

func TestParse(t *testing.T) {
	v, err := Parse(` {"a": [1, "x", null, true], "b": {"c": -0.5}} `)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := Stringify(v)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"a":[1,"x",null,true],"b":{"c":-0.5}}`; got != want {
		t.Errorf("round trip = %s, want %s", got, want)
	}

	for _, in := range []string{"", "[1,", `{"a":}`, "1 2", "tru", `"open`} {
		var se *SyntaxError
		if _, err := Parse(in); !errors.As(err, &se) {
			t.Errorf("Parse(%q) err = %v, want SyntaxError", in, err)
		}
	}
}

func TestRegExpExec(t *testing.T) {
	re, err := CompileRegExp(`(?<word>\w)`, "g", 0)
	if err != nil {
		t.Fatal(err)
	}
	m, err := re.Exec("😀ab")
	if err != nil || m == nil {
		t.Fatalf("Exec = %v, %v", m, err)
	}
	groups := m.Get("groups").(*value.Object)
	got := []value.Value{m.Get("0"), m.Get("index"), groups.Get("word"), re.Get("lastIndex")}
	if diff := cmp.Diff([]value.Value{"a", 2.0, "a", 3.0}, got); diff != "" {
		t.Errorf("first match (-want +got):\n%s", diff)
	}
	if m, _ := re.Exec("😀ab"); m == nil || m.Get("0") != "b" {
		t.Errorf("second match = %v", m)
	}
	if m, _ := re.Exec("😀ab"); m != nil || re.Get("lastIndex") != 0.0 {
		t.Errorf("exhausted match = %v, lastIndex %v", m, re.Get("lastIndex"))
	}

	plain, err := CompileRegExp(`(a)(b)?`, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	m, _ = plain.Exec("xa")
	if m == nil || m.Get("1") != "a" || !value.IsUndefined(m.Get("2")) || !value.IsUndefined(m.Get("groups")) {
		t.Errorf("unmatched group: %v", m)
	}
	if m.Get("length") != 3.0 {
		t.Errorf("length = %v, want 3", m.Get("length"))
	}
}

func TestRegExpSticky(t *testing.T) {
	re, err := CompileRegExp("a", "y", 0)
	if err != nil {
		t.Fatal(err)
	}
	re.Set("lastIndex", 1.0)
	if m, _ := re.Exec("ba"); m == nil {
		t.Fatal("sticky match at lastIndex failed")
	}
	re.Set("lastIndex", 0.0)
	if m, _ := re.Exec("bba"); m != nil {
		t.Error("sticky match must not search ahead")
	}
}

func TestRegExpSlots(t *testing.T) {
	env := newFakeEnv()
	ns := regexps(Options{RegexpTimeout: time.Second})

	re := call(t, env, ns, "regexpCompile", "HELLO", "i")
	if _, ok := re.(*RegExp); !ok {
		t.Fatalf("regexpCompile = %v", re)
	}
	if got := call(t, env, ns, "regexpTest", re, "say hello"); got != true {
		t.Error("case-insensitive test failed")
	}
	if got := call(t, env, ns, "regexpExec", re, "nope"); got != nil {
		t.Errorf("no match = %v, want null", got)
	}
	if got := call(t, env, ns, "isRegExp", re); got != true {
		t.Error("isRegExp")
	}

	msg, ok := call(t, env, ns, "regexpCompile", "(", "").(string)
	if !ok || !strings.HasPrefix(msg, "SyntaxError: Invalid regular expression: /(/") {
		t.Errorf("bad pattern = %v", msg)
	}
	msg, _ = call(t, env, ns, "regexpCompile", "a", "gg").(string)
	if !strings.Contains(msg, "Invalid flags") {
		t.Errorf("duplicate flag = %v", msg)
	}
	if got := call(t, env, ns, "regexpEscape", "a.b"); got != `a\.b` {
		t.Errorf("regexpEscape = %v", got)
	}
}

func TestTimers(t *testing.T) {
	env := newFakeEnv()
	ns := timers()

	call(t, env, ns, "setTimeout", 5.0, 1.0)
	cancelled := call(t, env, ns, "setTimeout", 1.0, 2.0)
	call(t, env, ns, "clearTimeout", cancelled)
	call(t, env, ns, "queueMicrotask", 3.0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.loop.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint64{3, 1}, env.calls); diff != "" {
		t.Errorf("callbacks (-want +got):\n%s", diff)
	}

	env.exports = false
	if _, err := ns["setTimeout"].Fn(context.Background(), env, []value.Value{0.0, 1.0}); err == nil {
		t.Error("scheduling without the callback export should fail")
	}
}

func TestFailedCallbackIsLogged(t *testing.T) {
	tests := []struct {
		name string
		slot string
		args []value.Value
	}{
		{"timeout", "setTimeout", []value.Value{0.0, 4.0}},
		{"interval", "setInterval", []value.Value{0.0, 4.0}},
		{"microtask", "queueMicrotask", []value.Value{4.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			env := newFakeEnv()
			env.logger = zap.New(core)
			env.fail = errors.New("unreachable executed")
			call(t, env, timers(), tt.slot, tt.args...)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := env.loop.Run(ctx); !errors.Is(err, env.fail) {
				t.Fatalf("Run = %v, want the callback error", err)
			}
			entries := logs.FilterMessage("scheduled callback failed").All()
			if len(entries) != 1 {
				t.Fatalf("got %d warnings, want 1", len(entries))
			}
			if got := entries[0].ContextMap()["error"]; got != "unreachable executed" {
				t.Errorf("error field = %v", got)
			}
		})
	}
}

func runFetch(t *testing.T, env *fakeEnv, ns imports.Namespace, url string, init value.Value) *value.Future {
	t.Helper()
	f, ok := call(t, env, ns, "fetch", url, init).(*value.Future)
	if !ok {
		t.Fatal("fetch did not return a future")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := env.loop.Run(ctx); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Token", r.Header.Get("Token"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	env := newFakeEnv()
	ns := fetch(Options{Client: transport.NewClient(transport.Options{})})

	init := value.ObjectOf("method", "post", "headers", value.ObjectOf("Token", "t1"), "body", "x")
	f := runFetch(t, env, ns, srv.URL, init)
	if f.State() != value.Fulfilled {
		t.Fatalf("state = %s, reason %v", f.State(), f.Result())
	}
	resp := f.Result().(*value.Object)
	headers := resp.Get("headers").(*value.Object)
	got := []value.Value{resp.Get("status"), resp.Get("ok"), resp.Get("text"), headers.Get("x-method"), headers.Get("x-token")}
	if diff := cmp.Diff([]value.Value{201.0, true, "created", "POST", "t1"}, got); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
}

func TestFetchRejects(t *testing.T) {
	ac := NewAbortController()
	ac.Abort()

	tests := []struct {
		name   string
		client *transport.Client
		init   value.Value
		reason string
	}{
		{"no client", nil, value.Undefined, "TypeError"},
		{"aborted", transport.NewClient(transport.Options{}), value.ObjectOf("signal", ac), "AbortError"},
		{"body on get", transport.NewClient(transport.Options{}), value.ObjectOf("body", "x"), "TypeError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := runFetch(t, newFakeEnv(), fetch(Options{Client: tt.client}), "http://127.0.0.1:1/", tt.init)
			if f.State() != value.Rejected {
				t.Fatalf("state = %s", f.State())
			}
			if got := f.Result().(*value.Object).Get("name"); got != tt.reason {
				t.Errorf("reason = %v, want %s", got, tt.reason)
			}
		})
	}
}
