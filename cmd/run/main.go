package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/capability"
	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/eventloop"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/transport"
	"github.com/wippyai/wasm-bridge/value"
)

type options struct {
	wasmFile    string
	moduleURL   string
	configFile  string
	args        string
	builtins    bool
	list        bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.wasmFile, "wasm", "", "Path to module wasm file")
	flag.StringVar(&o.moduleURL, "url", "", "URL to fetch the module from")
	flag.StringVar(&o.configFile, "config", "", "YAML config file (overrides WASMBRIDGE_* variables)")
	flag.StringVar(&o.args, "args", "", "Arguments passed to the entrypoint (comma-separated)")
	flag.BoolVar(&o.builtins, "builtins", true, "Compile with the js-string builtins")
	flag.BoolVar(&o.list, "list", false, "List imports and exports and exit")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if (o.wasmFile == "") == (o.moduleURL == "") {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-args a,b] [-config bridge.yaml]")
		fmt.Fprintln(os.Stderr, "       run -url <https://host/app.wasm> [-args a,b]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	setLoggers(log)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go serveMetrics(log, cfg.Metrics.Addr, reg)
	}

	client := transport.NewClient(cfg.Transport(log))
	rcfg := cfg.Runtime(client, os.Stdout)
	rcfg.Observers = append(rcfg.Observers, m)

	rt, err := runtime.New(ctx, rcfg)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	var opts []runtime.CompileOption
	if o.builtins {
		opts = append(opts, runtime.WithBuiltins(runtime.BuiltinJSString))
	}
	start := time.Now()
	art, err := compile(ctx, rt, o, opts)
	if err != nil {
		return err
	}
	m.ObserveCompile(start)
	log.Info("module compiled", zap.Duration("took", time.Since(start)), zap.Int("imports", len(art.Imports())))

	if o.list {
		printSignatures(os.Stdout, art)
		return nil
	}

	ld := newLoaders(client, o)
	if o.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(ctx, art, source(o), ld.options())
	}

	inst, err := art.Instantiate(ctx, nil, ld.options())
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)
	m.InstancesCreated.Inc()

	if cfg.Loop.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Loop.RunTimeout)
		defer cancel()
	}

	start = time.Now()
	res, err := inst.InvokeMain(ctx, splitArgs(o.args)...)
	m.ObserveInvoke(start, err)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", rcfg.Entrypoint, err)
	}
	if !value.IsUndefined(res) {
		fmt.Printf("Result: %s\n", display(res))
	}
	return nil
}

func setLoggers(log *zap.Logger) {
	runtime.SetLogger(log.Named("runtime"))
	engine.SetLogger(log.Named("engine"))
	eventloop.SetLogger(log.Named("loop"))
	imports.SetLogger(log.Named("imports"))
	callback.SetLogger(log.Named("callback"))
	capability.SetLogger(log.Named("capability"))
	transport.SetLogger(log.Named("transport"))
}

func serveMetrics(log *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}

func compile(ctx context.Context, rt *runtime.Runtime, o options, opts []runtime.CompileOption) (*runtime.Artifact, error) {
	if o.moduleURL != "" {
		return rt.CompileURL(ctx, o.moduleURL, opts...)
	}
	f, err := os.Open(o.wasmFile)
	if err != nil {
		return nil, fmt.Errorf("open module: %w", err)
	}
	defer f.Close()
	return rt.CompileStreaming(ctx, f, opts...)
}

func source(o options) string {
	if o.moduleURL != "" {
		return o.moduleURL
	}
	return o.wasmFile
}

func splitArgs(s string) []value.Value {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	args := make([]value.Value, len(parts))
	for i, p := range parts {
		args[i] = p
	}
	return args
}

// display renders a result as JSON where possible.
func display(v value.Value) string {
	if s, ok, err := capability.Stringify(v); err == nil && ok {
		return s
	}
	return value.ToString(v)
}

func printSignatures(w io.Writer, art *runtime.Artifact) {
	fmt.Fprintf(w, "Builtins: %s\n", strings.Join(art.Builtins(), ", "))
	fmt.Fprintf(w, "\nImports:\n")
	for _, imp := range art.Imports() {
		fmt.Fprintf(w, "  %s.%s\n", imp.Module, signature(imp.Name, imp.Params, imp.Results))
	}
	fmt.Fprintf(w, "\nExports:\n")
	for _, name := range art.Exports() {
		def, _ := art.Export(name)
		fmt.Fprintf(w, "  %s\n", signature(name, def.ParamTypes(), def.ResultTypes()))
	}
	if custom := art.CustomSections(); len(custom) > 0 {
		fmt.Fprintf(w, "\nCustom sections:\n")
		for _, cs := range custom {
			fmt.Fprintf(w, "  %s (%d bytes)\n", cs.Name, len(cs.Data))
		}
	}
}

// loaders fetch fragments next to the main module, from disk or over HTTP.
type loaders struct {
	client *transport.Client
	base   string
	remote bool
}

func newLoaders(client *transport.Client, o options) *loaders {
	if o.moduleURL != "" {
		return &loaders{client: client, base: o.moduleURL, remote: true}
	}
	return &loaders{client: client, base: filepath.Dir(o.wasmFile)}
}

func (l *loaders) options() runtime.Options {
	return runtime.Options{
		LoadDeferredWasm: l.load,
		LoadDynamicModule: func(ctx context.Context, wasmName, _ string) ([]byte, value.Value, error) {
			bin, err := l.load(ctx, wasmName)
			return bin, nil, err
		},
	}
}

func (l *loaders) load(ctx context.Context, name string) ([]byte, error) {
	if !l.remote {
		return os.ReadFile(filepath.Join(l.base, filepath.Clean("/"+name)))
	}
	base, err := url.Parse(l.base)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(name)
	if err != nil {
		return nil, err
	}
	resp, body, err := l.client.Fetch(ctx, http.MethodGet, base.ResolveReference(ref).String(), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := transport.CheckStatus(resp); err != nil {
		return nil, err
	}
	return body, nil
}
