// Package wasm reads and writes the WebAssembly core binary format.
//
// The bridge needs three things from the format and nothing more:
//
//   - a streaming reader that validates the header and each section envelope
//     while bytes are still arriving (StreamReader, ReadStream)
//   - a decoder for the parts that matter at bind time: signatures, imports,
//     exports, custom sections (ParseModule)
//   - an encoder with a small instruction builder, used to produce glue
//     modules and test fixtures (Builder, Code)
//
// Function bodies are carried as raw bytes and never interpreted. Sections
// the bridge has no use for (tables, elements, tags) are stepped over.
//
// # Building a module
//
//	b := wasm.NewBuilder()
//	log := b.ImportFunc("env", "log", []wasm.ValType{wasm.ValI32}, nil)
//	main := b.Func(nil, nil, wasm.NewCode().I32Const(7).Call(log).End().Body())
//	b.ExportFunc("main", main)
//	bin := b.Bytes()
package wasm
