package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Engine wraps a wazero runtime shared by every artifact compiled through it.
type Engine struct {
	runtime wazero.Runtime
	closed  bool
	mu      sync.Mutex
}

// Config holds configuration for engine creation
type Config struct {
	// CacheDir enables the on-disk compilation cache. Empty keeps compiled
	// code in a process-wide in-memory cache.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CloseOnContextDone stops running wasm when the call context is cancelled.
	CloseOnContextDone bool
}

// HostFunc is one function of a host module.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

var (
	cachesMu sync.Mutex
	caches   = map[string]wazero.CompilationCache{}
)

// sharedCache returns the compilation cache for dir, creating it once per process.
func sharedCache(ctx context.Context, dir string) (wazero.CompilationCache, error) {
	cachesMu.Lock()
	defer cachesMu.Unlock()

	if c, ok := caches[dir]; ok {
		return c, nil
	}
	var c wazero.CompilationCache
	if dir == "" {
		c = wazero.NewCompilationCache()
	} else {
		var err error
		c, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache %q: %w", dir, err)
		}
	}
	caches[dir] = c
	return c, nil
}

// New creates an engine. A nil config uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	cache, err := sharedCache(ctx, cfg.CacheDir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "engine")
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCompilationCache(cache).
		WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	Logger().Debug("engine created",
		zap.String("cache_dir", cfg.CacheDir),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages))

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Compile validates and compiles a module binary.
func (e *Engine) Compile(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Compilation("wazero rejected module", err)
	}
	return compiled, nil
}

// InstantiateHost builds an anonymous host module exporting funcs. Anonymous
// modules are not registered in the runtime, so every instance gets its own.
func (e *Engine) InstantiateHost(ctx context.Context, namespace string, funcs []HostFunc) (api.Module, error) {
	if err := e.check(); err != nil {
		return nil, err
	}

	builder := e.runtime.NewHostModuleBuilder(namespace)
	for _, f := range funcs {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.Fn, f.Params, f.Results).
			WithName(f.Name).
			Export(f.Name)
	}
	compiled, err := builder.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile host module %q: %w", namespace, err)
	}
	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	_ = compiled.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate host module %q: %w", namespace, err)
	}
	return mod, nil
}

// Instantiate instantiates compiled anonymously, resolving each import
// module name through imports first. Start functions other than the module's
// own start section are not run.
func (e *Engine) Instantiate(ctx context.Context, compiled wazero.CompiledModule, imports map[string]api.Module) (api.Module, error) {
	if err := e.check(); err != nil {
		return nil, err
	}

	ctx = experimental.WithImportResolver(ctx, func(name string) api.Module {
		return imports[name]
	})
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, err
	}
	return mod, nil
}

// Close releases the runtime and every module instantiated from it.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.runtime.Close(ctx)
}

func (e *Engine) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.Closed(errors.PhaseRuntime, "engine")
	}
	return nil
}
