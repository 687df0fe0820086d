package wasm

// Module represents a WebAssembly core module.
// Bodies and initializers are kept as raw bytes; the bridge inspects
// signatures and names, never instructions.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Code     []FuncBody
	Data     []DataSegment

	CustomSections []CustomSection

	// Skipped lists sections the decoder stepped over without modelling.
	Skipped []byte
}

// FuncType represents a WebAssembly function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders the signature as "(i32 externref) -> (i32)".
func (f FuncType) String() string {
	return "(" + joinTypes(f.Params) + ") -> (" + joinTypes(f.Results) + ")"
}

func joinTypes(ts []ValType) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += " "
		}
		s += t.String()
	}
	return s
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// Import represents an imported function, memory, global or table.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
type ImportDesc struct {
	Memory  *MemoryType
	Global  *GlobalType
	Table   *TableType
	TypeIdx uint32
	Kind    byte
}

// Export represents an exported item.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Limits bounds a memory or table.
type Limits struct {
	Max *uint32
	Min uint32
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
	Shared bool
}

// TableType describes a table.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// GlobalType describes a global's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a module-defined global with its raw constant initializer (including the end opcode).
type Global struct {
	Init []byte
	Type GlobalType
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is a function body: local declarations plus raw instruction bytes ending in OpEnd.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is an active data segment for memory 0 at a constant offset.
type DataSegment struct {
	Init   []byte
	Offset uint32
}

// CustomSection is a named custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of function imports.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			n++
		}
	}
	return n
}

// ImportedFuncType returns the signature of a function import.
func (m *Module) ImportedFuncType(imp Import) (FuncType, bool) {
	if imp.Desc.Kind != KindFunc || int(imp.Desc.TypeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[imp.Desc.TypeIdx], true
}

// FuncTypeOf returns the signature of a function by its index in the function index space.
func (m *Module) FuncTypeOf(funcIdx uint32) (FuncType, bool) {
	imported := uint32(m.NumImportedFuncs())
	if funcIdx < imported {
		var i uint32
		for _, imp := range m.Imports {
			if imp.Desc.Kind != KindFunc {
				continue
			}
			if i == funcIdx {
				return m.ImportedFuncType(imp)
			}
			i++
		}
	}
	local := funcIdx - imported
	if int(local) >= len(m.Funcs) {
		return FuncType{}, false
	}
	typeIdx := m.Funcs[local]
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// ExportedFunc finds a function export by name.
func (m *Module) ExportedFunc(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// CustomSection returns the first custom section with the given name.
func (m *Module) CustomSection(name string) ([]byte, bool) {
	for _, cs := range m.CustomSections {
		if cs.Name == name {
			return cs.Data, true
		}
	}
	return nil, false
}
