package wasm

// Builder assembles a Module incrementally, tracking the function index space.
// All function imports must be declared before the first local function.
type Builder struct {
	types map[string]uint32
	m     Module
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{types: make(map[string]uint32)}
}

// Type returns the index of the signature, adding it on first use.
func (b *Builder) Type(params, results []ValType) uint32 {
	ft := FuncType{Params: params, Results: results}
	key := ft.String()
	if idx, ok := b.types[key]; ok {
		return idx
	}
	idx := uint32(len(b.m.Types))
	b.m.Types = append(b.m.Types, ft)
	b.types[key] = idx
	return idx
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(b.m.Funcs) > 0 {
		panic("wasm: function imports must precede local functions")
	}
	idx := uint32(b.m.NumImportedFuncs())
	b.m.Imports = append(b.m.Imports, Import{
		Module: module,
		Name:   name,
		Desc:   ImportDesc{Kind: KindFunc, TypeIdx: b.Type(params, results)},
	})
	return idx
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, minPages uint32) {
	b.m.Imports = append(b.m.Imports, Import{
		Module: module,
		Name:   name,
		Desc:   ImportDesc{Kind: KindMemory, Memory: &MemoryType{Limits: Limits{Min: minPages}}},
	})
}

// Func adds a local function and returns its function index.
func (b *Builder) Func(params, results []ValType, body FuncBody) uint32 {
	idx := uint32(b.m.NumImportedFuncs() + len(b.m.Funcs))
	b.m.Funcs = append(b.m.Funcs, b.Type(params, results))
	b.m.Code = append(b.m.Code, body)
	return idx
}

// ExportFunc exports a function under name.
func (b *Builder) ExportFunc(name string, funcIdx uint32) {
	b.m.Exports = append(b.m.Exports, Export{Name: name, Kind: KindFunc, Index: funcIdx})
}

// Memory adds a linear memory, exported under name when name is not empty.
func (b *Builder) Memory(minPages uint32, name string) {
	idx := uint32(len(b.m.Memories))
	b.m.Memories = append(b.m.Memories, MemoryType{Limits: Limits{Min: minPages}})
	if name != "" {
		b.m.Exports = append(b.m.Exports, Export{Name: name, Kind: KindMemory, Index: idx})
	}
}

// GlobalI32 adds an i32 global and returns its index among module-defined globals.
func (b *Builder) GlobalI32(mutable bool, init int32) uint32 {
	c := NewCode().I32Const(init).End()
	idx := uint32(len(b.m.Globals))
	b.m.Globals = append(b.m.Globals, Global{
		Type: GlobalType{ValType: ValI32, Mutable: mutable},
		Init: c.Body().Code,
	})
	return idx
}

// ExportGlobal exports a global under name.
func (b *Builder) ExportGlobal(name string, idx uint32) {
	b.m.Exports = append(b.m.Exports, Export{Name: name, Kind: KindGlobal, Index: idx})
}

// Data adds an active data segment for memory 0.
func (b *Builder) Data(offset uint32, init []byte) {
	b.m.Data = append(b.m.Data, DataSegment{Offset: offset, Init: init})
}

// Custom adds a custom section.
func (b *Builder) Custom(name string, data []byte) {
	b.m.CustomSections = append(b.m.CustomSections, CustomSection{Name: name, Data: data})
}

// Start sets the start function.
func (b *Builder) Start(funcIdx uint32) {
	b.m.Start = &funcIdx
}

// Module returns the assembled module.
func (b *Builder) Module() *Module {
	return &b.m
}

// Bytes encodes the assembled module.
func (b *Builder) Bytes() []byte {
	return b.m.Encode()
}
