package runtime

import (
	"context"
	"io"
	"net/http"
	"slices"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/capability"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/transport"
	"github.com/wippyai/wasm-bridge/wasm"
)

// DefaultEntrypoint is the export InvokeMain calls.
const DefaultEntrypoint = "$invokeMain"

// BuiltinJSString is the only builtin set the loader knows.
const BuiltinJSString = "js-string"

// Config configures a Runtime.
type Config struct {
	Engine       engine.Config
	Capabilities capability.Options
	// Observers receive handle events of every instance heap.
	Observers []heap.Observer
	// MaxModuleSize bounds streamed modules in bytes. Zero disables the bound.
	MaxModuleSize int64
	// Entrypoint overrides DefaultEntrypoint.
	Entrypoint string
}

// Runtime compiles artifacts. Artifacts and instances created through it
// share one wazero runtime and become unusable after Close.
type Runtime struct {
	engine *engine.Engine
	client *transport.Client
	cfg    Config
}

// New creates a runtime. A nil config uses defaults.
func New(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.Entrypoint == "" {
		c.Entrypoint = DefaultEntrypoint
	}

	eng, err := engine.New(ctx, &c.Engine)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	client := c.Capabilities.Client
	if client == nil {
		client = transport.NewClient(transport.Options{Logger: Logger()})
	}
	return &Runtime{engine: eng, client: client, cfg: c}, nil
}

// Close releases the runtime together with every artifact and instance.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// CompileOption adjusts a single compilation.
type CompileOption func(*compileConfig)

type compileConfig struct {
	builtins []string
}

// WithBuiltins replaces the default builtin set. Names other than
// "js-string" fail compilation.
func WithBuiltins(names ...string) CompileOption {
	return func(c *compileConfig) { c.builtins = names }
}

func newCompileConfig(opts []CompileOption) (*compileConfig, error) {
	c := &compileConfig{builtins: []string{BuiltinJSString}}
	for _, o := range opts {
		o(c)
	}
	for _, b := range c.builtins {
		if b != BuiltinJSString {
			return nil, errors.Compilation("unsupported builtin "+b, nil)
		}
	}
	return c, nil
}

// Compile validates and compiles a module binary.
func (r *Runtime) Compile(ctx context.Context, bin []byte, opts ...CompileOption) (*Artifact, error) {
	cc, err := newCompileConfig(opts)
	if err != nil {
		return nil, err
	}
	compiled, err := r.engine.Compile(ctx, bin)
	if err != nil {
		return nil, err
	}
	a := newArtifact(r, compiled, cc.builtins)
	a.custom = customSections(bin)
	Logger().Debug("artifact compiled",
		zap.Int("size", len(bin)),
		zap.Int("imports", len(a.imports)),
		zap.Int("custom_sections", len(a.custom)),
		zap.Strings("builtins", a.Builtins()))
	return a, nil
}

// CompileStreaming reads a module from src, checking the header and each
// section envelope as it arrives, then compiles it like Compile.
func (r *Runtime) CompileStreaming(ctx context.Context, src io.Reader, opts ...CompileOption) (*Artifact, error) {
	if _, err := newCompileConfig(opts); err != nil {
		return nil, err
	}
	bin, err := wasm.ReadStream(ctx, src, r.cfg.MaxModuleSize)
	if err != nil {
		return nil, errors.Compilation("read module stream", err)
	}
	return r.Compile(ctx, bin, opts...)
}

// CompileResponse compiles the body of an HTTP response. Non-2xx responses
// and unknown content encodings fail compilation. The body is closed.
func (r *Runtime) CompileResponse(ctx context.Context, resp *http.Response, opts ...CompileOption) (*Artifact, error) {
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return nil, errors.Compilation("fetch module", err)
	}
	body, err := transport.Body(resp)
	if err != nil {
		return nil, errors.Compilation("decode module body", err)
	}
	defer body.Close()
	return r.CompileStreaming(ctx, body, opts...)
}

// CompileURL fetches a module over HTTP and compiles it.
func (r *Runtime) CompileURL(ctx context.Context, url string, opts ...CompileOption) (*Artifact, error) {
	resp, err := r.client.Get(ctx, url)
	if err != nil {
		return nil, errors.Compilation("fetch module", err)
	}
	return r.CompileResponse(ctx, resp, opts...)
}

// Artifact is a compiled module. It is immutable and may be instantiated
// any number of times.
type Artifact struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	exports  map[string]api.FunctionDefinition
	builtins []string
	imports  []imports.Import
	custom   []wasm.CustomSection
}

// customSections decodes the custom sections of an already compiled binary.
// Modules using sections the decoder does not model report none.
func customSections(bin []byte) []wasm.CustomSection {
	m, err := wasm.ParseModule(bin)
	if err != nil {
		Logger().Debug("custom sections unavailable", zap.Error(err))
		return nil
	}
	return m.CustomSections
}

func newArtifact(r *Runtime, compiled wazero.CompiledModule, builtins []string) *Artifact {
	b := slices.Clone(builtins)
	sort.Strings(b)
	return &Artifact{
		runtime:  r,
		compiled: compiled,
		exports:  compiled.ExportedFunctions(),
		builtins: slices.Compact(b),
		imports:  imports.ImportsOf(compiled),
	}
}

// Builtins returns the builtin sets the artifact was compiled with.
func (a *Artifact) Builtins() []string { return slices.Clone(a.builtins) }

// HasBuiltin reports whether name was enabled at compile time.
func (a *Artifact) HasBuiltin(name string) bool {
	return slices.Contains(a.builtins, name)
}

// Imports returns the function imports in declaration order.
func (a *Artifact) Imports() []imports.Import { return slices.Clone(a.imports) }

// CustomSections returns the module's custom sections in binary order.
func (a *Artifact) CustomSections() []wasm.CustomSection {
	return slices.Clone(a.custom)
}

// Exports returns the exported function names, sorted.
func (a *Artifact) Exports() []string {
	names := make([]string, 0, len(a.exports))
	for name := range a.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export returns the definition of an exported function.
func (a *Artifact) Export(name string) (api.FunctionDefinition, bool) {
	def, ok := a.exports[name]
	return def, ok
}

// Close releases the compiled code. Live instances are not affected.
func (a *Artifact) Close(ctx context.Context) error {
	return a.compiled.Close(ctx)
}
