package runtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/capability"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/eventloop"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/jsstring"
	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/value"
)

// Options configures a single instantiation.
type Options struct {
	// LoadDeferredWasm returns the bytes of a deferred fragment.
	LoadDeferredWasm func(ctx context.Context, name string) ([]byte, error)
	// LoadDynamicModule returns the bytes of a dynamic module and the
	// auxiliary object whose functions it imports from "dynamic".
	LoadDynamicModule func(ctx context.Context, wasmName, auxName string) ([]byte, value.Value, error)
}

// binding is the environment every slot of one instance runs against. The
// module fields are written once, right after instantiation.
type binding struct {
	heap   *heap.Table
	loop   *eventloop.Loop
	logger *zap.Logger
	module api.Module
	memory *engine.Memory
}

func (b *binding) Heap() *heap.Table { return b.heap }
func (b *binding) Loop() *eventloop.Loop { return b.loop }
func (b *binding) Logger() *zap.Logger { return b.logger }
func (b *binding) Memory() marshal.Memory { return b.memory }

func (b *binding) HasExport(name string) bool {
	return b.module != nil && b.module.ExportedFunction(name) != nil
}

func (b *binding) Call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	if b.module == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "instance")
	}
	fn := b.module.ExportedFunction(export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", export)
	}
	return fn.Call(ctx, params...)
}

// Instance is an instantiated artifact with its own heap, event loop and
// host modules.
type Instance struct {
	id        uuid.UUID
	artifact  *Artifact
	env       *binding
	global    *value.Object
	opts      Options
	hosts     []api.Module
	fragments []api.Module
	mu        sync.Mutex
	closed    bool
}

// Instantiate binds the artifact's imports and instantiates it.
//
// The import object is the fixed table, the string table under
// "wasm:js-string" and additional. Fixed slots take precedence: an
// additional slot with the same name is ignored. Every import must resolve
// or instantiation fails listing all unresolved imports.
func (a *Artifact) Instantiate(ctx context.Context, additional imports.Table, opts Options) (*Instance, error) {
	id := uuid.New()
	log := Logger().With(zap.String("instance", id.String()))

	global := value.NewObject()
	env := &binding{
		heap:   heap.New(global),
		loop:   eventloop.New(),
		logger: log,
		memory: engine.NewMemory(nil),
	}
	for _, o := range a.runtime.cfg.Observers {
		env.heap.Subscribe(o)
	}
	inst := &Instance{id: id, artifact: a, env: env, global: global, opts: opts}

	table := a.importTable(inst, additional)
	bindings, err := imports.Resolve(table, a.imports)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	hosts, err := inst.hostModules(ctx, bindings)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	mod, err := a.runtime.engine.Instantiate(ctx, a.compiled, hosts)
	if err != nil {
		inst.closeHosts(ctx)
		return nil, errors.Instantiation(err)
	}
	env.module = mod
	env.memory = engine.NewMemory(mod.Memory())

	log.Debug("instance created", zap.Int("imports", len(bindings)), zap.Int("host_modules", len(hosts)))
	return inst, nil
}

// importTable composes the import object for one instance.
func (a *Artifact) importTable(inst *Instance, additional imports.Table) imports.Table {
	fixed := imports.Fixed()
	fixed.Add(imports.RootNamespace, capability.Catalog(a.runtime.cfg.Capabilities))
	fixed.Add(imports.RootNamespace, callback.Slots())
	fixed.Add(imports.RootNamespace, inst.fragmentSlots())
	fixed.Add(jsstring.Namespace, jsstring.Table(a.HasBuiltin(BuiltinJSString)))
	for name, arity := range a.trampolines(fixed) {
		fixed.Define(imports.RootNamespace, name, callback.Generator(name, arity))
	}

	table, collisions := imports.Merge(fixed, additional)
	for _, c := range collisions {
		inst.env.logger.Warn("additional import shadows a fixed slot and is ignored",
			zap.String("namespace", c.Namespace), zap.String("slot", c.Name))
	}
	return table
}

// trampolines finds the wrapper generator imports of the artifact: root
// imports taking an i32 and returning an externref, not already in fixed,
// whose name is also exported as a trampoline (i32 ref, i32 argc,
// externref × arity). The trampoline's parameter count fixes the arity.
func (a *Artifact) trampolines(fixed imports.Table) map[string]int {
	out := make(map[string]int)
	for _, imp := range a.imports {
		if imp.Module != imports.RootNamespace {
			continue
		}
		if _, ok := fixed.Lookup(imp.Module, imp.Name); ok {
			continue
		}
		if len(imp.Params) != 1 || imp.Params[0] != api.ValueTypeI32 ||
			len(imp.Results) != 1 || imp.Results[0] != api.ValueTypeExternref {
			continue
		}
		def, ok := a.exports[imp.Name]
		if !ok {
			continue
		}
		if arity, ok := trampolineArity(def); ok {
			out[imp.Name] = arity
		}
	}
	return out
}

func trampolineArity(def api.FunctionDefinition) (int, bool) {
	params := def.ParamTypes()
	if len(params) < 2 || params[0] != api.ValueTypeI32 || params[1] != api.ValueTypeI32 {
		return 0, false
	}
	for _, p := range params[2:] {
		if p != api.ValueTypeExternref {
			return 0, false
		}
	}
	return len(params) - 2, true
}

// hostModules instantiates one anonymous host module per import namespace.
func (i *Instance) hostModules(ctx context.Context, bindings []imports.Binding) (map[string]api.Module, error) {
	eng := i.artifact.runtime.engine
	out := make(map[string]api.Module)
	for ns, funcs := range imports.HostModules(bindings, i.env) {
		m, err := eng.InstantiateHost(ctx, ns, funcs)
		if err != nil {
			i.closeHosts(ctx)
			return nil, err
		}
		i.mu.Lock()
		i.hosts = append(i.hosts, m)
		i.mu.Unlock()
		out[ns] = m
	}
	return out, nil
}

// ID returns the instance id used in log fields.
func (i *Instance) ID() string { return i.id.String() }

// Global returns the object the global handle resolves to.
func (i *Instance) Global() *value.Object { return i.global }

// InvokeMain calls the entrypoint export with one list holding args, then
// runs the event loop until it is idle. The list handle is released when
// the call returns; the module keeps it with dup.
//
// InvokeMain does not return before the loop is idle. An interval the
// module never clears keeps it busy, so such a module only returns once
// ctx is done, with ctx's error.
func (i *Instance) InvokeMain(ctx context.Context, args ...value.Value) (value.Value, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	entry := i.artifact.runtime.cfg.Entrypoint
	if !i.env.HasExport(entry) {
		return nil, errors.NotFound(errors.PhaseRuntime, "entrypoint export", entry)
	}

	h := i.env.heap.Ref(value.ArrayOf(args...))
	res, err := i.env.Call(ctx, entry, uint64(h))
	_ = i.env.heap.Release(h)
	if err != nil {
		return nil, err
	}

	var out value.Value = value.Undefined
	if results := i.env.module.ExportedFunction(entry).Definition().ResultTypes(); len(results) == 1 {
		kinds := imports.KindsOf(results)
		if out, err = imports.Decode(i.env.heap, kinds[0], res[0]); err != nil {
			return nil, err
		}
	}
	if err := i.env.loop.Run(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// Export wraps an exported function of the main module. Arguments and
// results are converted per its declared types, and the call does not run
// the event loop.
func (i *Instance) Export(name string) (*value.Function, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	fn := i.env.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	return i.exportFunction(fn, name, fn.Definition()), nil
}

// Run drives the event loop until it is idle.
func (i *Instance) Run(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.env.loop.Run(ctx)
}

// Close releases the module, its fragments and host modules, the loop
// and every live handle.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	fragments := i.fragments
	i.fragments = nil
	i.mu.Unlock()

	var first error
	for _, f := range fragments {
		if err := f.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	if err := i.env.module.Close(ctx); err != nil && first == nil {
		first = err
	}
	i.closeHosts(ctx)
	i.env.loop.Close()
	i.env.heap.Close()
	i.env.logger.Debug("instance closed")
	return first
}

func (i *Instance) closeHosts(ctx context.Context) {
	i.mu.Lock()
	hosts := i.hosts
	i.hosts = nil
	i.mu.Unlock()
	for _, h := range hosts {
		_ = h.Close(ctx)
	}
}

func (i *Instance) check() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return errors.Closed(errors.PhaseRuntime, "instance")
	}
	return nil
}
