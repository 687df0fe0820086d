package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

const (
	// MainNamespace is where fragments find the main module's exports.
	MainNamespace = "module0"
	// DynamicNamespace is where dynamic modules find the functions of
	// their auxiliary object.
	DynamicNamespace = "dynamic"
)

// fragmentSlots returns loadDeferred and loadDynamicModule. Both load off
// the loop and return a future that settles with an object of the
// fragment's exported functions.
func (i *Instance) fragmentSlots() imports.Namespace {
	return imports.Namespace{
		"loadDeferred": imports.Returns(imports.Ref, func(ctx context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			name := value.ToString(args[0])
			load := i.opts.LoadDeferredWasm
			if load == nil {
				return i.rejected("loadDeferred", name), nil
			}
			return i.loadAsync(ctx, name, func(ctx context.Context) ([]byte, value.Value, error) {
				bin, err := load(ctx, name)
				return bin, nil, err
			}), nil
		}, imports.Ref),
		"loadDynamicModule": imports.Returns(imports.Ref, func(ctx context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			wasmName, auxName := value.ToString(args[0]), value.ToString(args[1])
			load := i.opts.LoadDynamicModule
			if load == nil {
				return i.rejected("loadDynamicModule", wasmName), nil
			}
			return i.loadAsync(ctx, wasmName, func(ctx context.Context) ([]byte, value.Value, error) {
				return load(ctx, wasmName, auxName)
			}), nil
		}, imports.Ref, imports.Ref),
	}
}

func (i *Instance) rejected(slot, name string) *value.Future {
	err := errors.HostCapability(imports.RootNamespace+"."+slot,
		errors.Unsupported(errors.PhaseHost, "no loader configured for "+name))
	return value.RejectedFuture(i.env.loop, err)
}

// loadAsync runs load off the loop and binds the result on it.
func (i *Instance) loadAsync(ctx context.Context, name string, load func(context.Context) ([]byte, value.Value, error)) *value.Future {
	loop := i.env.loop
	f := value.NewFuture(loop)
	ctx = context.WithoutCancel(ctx)
	release := loop.Hold()
	log := i.env.logger.With(zap.String("module", name))

	go func() {
		defer release()
		bin, aux, err := load(ctx)
		loop.Post(func() {
			if err != nil {
				log.Warn("fragment load failed", zap.Error(err))
				f.Reject(errors.Load("load "+name, err))
				return
			}
			exports, err := i.bindFragment(ctx, bin, aux)
			if err != nil {
				log.Warn("fragment bind failed", zap.Error(err))
				f.Reject(err)
				return
			}
			log.Debug("fragment bound", zap.Int("exports", exports.Len()))
			f.Resolve(exports)
		})
	}()
	return f
}

// bindFragment compiles and instantiates a fragment against the instance's
// import object, with the main module under MainNamespace and the functions
// of aux, when set, under DynamicNamespace.
func (i *Instance) bindFragment(ctx context.Context, bin []byte, aux value.Value) (*value.Object, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	a := i.artifact
	compiled, err := a.runtime.engine.Compile(ctx, bin)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)

	var extra imports.Table
	if !value.IsNullish(aux) {
		if extra, err = auxTable(aux); err != nil {
			return nil, errors.Instantiation(err)
		}
	}
	table := a.importTable(i, extra)

	var wanted []imports.Import
	for _, imp := range imports.ImportsOf(compiled) {
		if imp.Module != MainNamespace {
			wanted = append(wanted, imp)
		}
	}
	bindings, err := imports.Resolve(table, wanted)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	hosts, err := i.hostModules(ctx, bindings)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	hosts[MainNamespace] = i.env.module

	mod, err := a.runtime.engine.Instantiate(ctx, compiled, hosts)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	i.mu.Lock()
	i.fragments = append(i.fragments, mod)
	i.mu.Unlock()

	out := value.NewObject()
	for name, def := range compiled.ExportedFunctions() {
		out.Set(name, i.exportFunction(mod.ExportedFunction(name), name, def))
	}
	return out, nil
}

// auxTable exposes the callable properties of aux as dynamic slots.
func auxTable(aux value.Value) (imports.Table, error) {
	o, ok := aux.(*value.Object)
	if !ok {
		return nil, &value.TypeError{Msg: "auxiliary module must be an object, got " + value.TypeOf(aux)}
	}
	ns := make(imports.Namespace)
	for _, k := range o.Keys() {
		fn, ok := o.Get(k).(value.Callable)
		if !ok {
			continue
		}
		ns[k] = imports.Dynamic(func(ctx context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return fn.Call(ctx, value.Undefined, args...)
		})
	}
	return imports.Table{DynamicNamespace: ns}, nil
}

// exportFunction wraps a wasm export as a host function. Arguments are
// converted per the declared parameter types.
func (i *Instance) exportFunction(fn api.Function, name string, def api.FunctionDefinition) *value.Function {
	params := imports.KindsOf(def.ParamTypes())
	results := imports.KindsOf(def.ResultTypes())
	h := i.env.heap
	return value.NewFunction(name, func(ctx context.Context, _ value.Value, args []value.Value) (value.Value, error) {
		raw := make([]uint64, len(params))
		for n, k := range params {
			var v value.Value = value.Undefined
			if n < len(args) {
				v = args[n]
			}
			raw[n] = imports.Encode(h, k, v)
		}
		res, err := fn.Call(ctx, raw...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(results) == 0 {
			return value.Undefined, nil
		}
		return imports.Decode(h, results[0], res[0])
	})
}
