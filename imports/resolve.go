package imports

import (
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// Import is a function import declared by a module.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Signature renders the declared signature as "(a b) -> (c)".
func (i Import) Signature() string {
	return signature(i.Params, i.Results)
}

// ImportsOf lists the function imports of a compiled module in declaration order.
func ImportsOf(compiled wazero.CompiledModule) []Import {
	defs := compiled.ImportedFunctions()
	out := make([]Import, 0, len(defs))
	for _, def := range defs {
		module, name, _ := def.Import()
		out = append(out, Import{
			Module:  module,
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	return out
}

// Binding is the outcome of resolving one import.
type Binding struct {
	Import Import
	Slot   Slot
}

// Resolve matches every wanted import against t. Resolution is
// all-or-nothing: absent slots and signature mismatches are collected into
// a single MissingImportsError.
func Resolve(t Table, wanted []Import) ([]Binding, error) {
	var (
		bindings = make([]Binding, 0, len(wanted))
		missing  []errors.MissingImport
	)
	for _, imp := range wanted {
		slot, ok := t.Lookup(imp.Module, imp.Name)
		if !ok {
			missing = append(missing, errors.MissingImport{Namespace: imp.Module, Function: imp.Name})
			continue
		}
		if reason := check(slot, imp); reason != "" {
			missing = append(missing, errors.MissingImport{Namespace: imp.Module, Function: imp.Name, Reason: reason})
			continue
		}
		bindings = append(bindings, Binding{Import: imp, Slot: slot})
	}
	if len(missing) > 0 {
		return nil, &errors.MissingImportsError{Imports: missing}
	}
	return bindings, nil
}

func check(s Slot, imp Import) string {
	if s.Fn == nil {
		return "slot has no implementation"
	}
	if s.Dynamic {
		for _, vt := range append(append([]api.ValueType{}, imp.Params...), imp.Results...) {
			if _, ok := kindOf(vt); !ok {
				return "unsupported value type " + api.ValueTypeName(vt)
			}
		}
		if len(imp.Results) > 1 {
			return "multiple results are not supported"
		}
		return ""
	}
	if !sameTypes(valueTypes(s.Params), imp.Params) || !sameTypes(valueTypes(s.Results), imp.Results) {
		return "signature mismatch: declared " + imp.Signature() + ", slot " + s.Signature()
	}
	return ""
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HostModules groups bindings by import module and adapts each slot to a
// wazero host function running against env.
func HostModules(bindings []Binding, env Env) map[string][]engine.HostFunc {
	out := make(map[string][]engine.HostFunc)
	for _, b := range bindings {
		params, results := b.Slot.Params, b.Slot.Results
		if b.Slot.Dynamic {
			params = KindsOf(b.Import.Params)
			results = KindsOf(b.Import.Results)
		}
		out[b.Import.Module] = append(out[b.Import.Module], engine.HostFunc{
			Name:    b.Import.Name,
			Params:  valueTypes(params),
			Results: valueTypes(results),
			Fn:      adapt(b.Import.Module, b.Import.Name, b.Slot.Fn, params, results, env),
		})
	}
	return out
}

// KindsOf maps declared value types to slot kinds. Unsupported types map to
// the zero Kind.
func KindsOf(vts []api.ValueType) []Kind {
	out := make([]Kind, len(vts))
	for i, vt := range vts {
		out[i], _ = kindOf(vt)
	}
	return out
}
