package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-bridge/wasm/internal/binary"
)

// Parsing errors returned by ParseModule and the streaming reader.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule parses a WebAssembly binary module.
// Table, element, data-count and tag sections are stepped over and recorded in Skipped.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(bytes.NewReader(data))

	if err := readHeader(r); err != nil {
		return nil, err
	}

	m := &Module{}
	var lastSectionOrder int

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order <= lastSectionOrder {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}

		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		if err := parseSection(m, sectionID, sectionData); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func readHeader(r *binary.Reader) error {
	magic, err := r.ReadU32LE()
	if err != nil {
		return r.WrapError("header", err)
	}
	if magic != Magic {
		return ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return r.WrapError("header", err)
	}
	if version != Version {
		return ErrInvalidVersion
	}
	return nil
}

func parseSection(m *Module, id byte, data []byte) error {
	sr := binary.NewReader(bytes.NewReader(data))

	var err error
	switch id {
	case SectionCustom:
		err = parseCustomSection(sr, m, len(data))
	case SectionType:
		err = parseTypeSection(sr, m)
	case SectionImport:
		err = parseImportSection(sr, m)
	case SectionFunction:
		err = parseFunctionSection(sr, m)
	case SectionMemory:
		err = parseMemorySection(sr, m)
	case SectionGlobal:
		err = parseGlobalSection(sr, m)
	case SectionExport:
		err = parseExportSection(sr, m)
	case SectionStart:
		var idx uint32
		idx, err = sr.ReadU32()
		m.Start = &idx
	case SectionCode:
		err = parseCodeSection(sr, m)
	case SectionData:
		err = parseDataSection(sr, m)
	case SectionTable, SectionElement, SectionDataCount, SectionTag:
		m.Skipped = append(m.Skipped, id)
	default:
		return fmt.Errorf("unknown section ID: 0x%02x", id)
	}
	if err != nil {
		return fmt.Errorf("%s section: %w", sectionName(id), err)
	}
	return nil
}

// sectionOrder returns the canonical ordering for a section ID.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 100
	}
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "data count"
	case SectionTag:
		return "tag"
	default:
		return fmt.Sprintf("0x%02x", id)
	}
}

func parseCustomSection(r *binary.Reader, m *Module, size int) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	data, err := r.ReadBytes(size - r.Position())
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: data})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: unsupported type form 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types := make([]ValType, n)
	for i := range types {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if !validValType(ValType(b)) {
			return nil, fmt.Errorf("invalid value type 0x%02x", b)
		}
		types[i] = ValType(b)
	}
	return types, nil
}

func validValType(t ValType) bool {
	switch t {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return true
	}
	return false
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		mod, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindTable:
			var t TableType
			t, err = readTableType(r)
			imp.Desc.Table = &t
		case KindMemory:
			var mt MemoryType
			mt, err = readMemoryType(r)
			imp.Desc.Memory = &mt
		case KindGlobal:
			var gt GlobalType
			gt, err = readGlobalType(r)
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("import %s.%s: unsupported kind 0x%02x", mod, name, kind)
		}
		if err != nil {
			return fmt.Errorf("import %s.%s: %w", mod, name, err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mt, err := readMemoryType(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, mt)
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("duplicate export %q", name)
		}
		seen[name] = true
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) != len(m.Funcs) {
		return fmt.Errorf("code count %d does not match function count %d", count, len(m.Funcs))
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		raw, err := r.ReadBytes(int(size))
		if err != nil {
			return err
		}
		br := binary.NewReader(bytes.NewReader(raw))
		n, err := br.ReadU32()
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		body := FuncBody{Locals: make([]LocalEntry, n)}
		for j := range body.Locals {
			c, err := br.ReadU32()
			if err != nil {
				return fmt.Errorf("body %d: %w", i, err)
			}
			t, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("body %d: %w", i, err)
			}
			body.Locals[j] = LocalEntry{Count: c, ValType: ValType(t)}
		}
		body.Code = raw[br.Position():]
		if len(body.Code) == 0 || body.Code[len(body.Code)-1] != OpEnd {
			return fmt.Errorf("body %d: missing end opcode", i)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags != 0 {
			return fmt.Errorf("segment %d: unsupported segment form %d", i, flags)
		}
		op, err := r.ReadByte()
		if err != nil {
			return err
		}
		if op != OpI32Const {
			return fmt.Errorf("segment %d: offset is not an i32.const", i)
		}
		off, err := r.ReadS64()
		if err != nil {
			return err
		}
		if end, err := r.ReadByte(); err != nil || end != OpEnd {
			return fmt.Errorf("segment %d: unterminated offset", i)
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		init, err := r.ReadBytes(int(n))
		if err != nil {
			return err
		}
		m.Data = append(m.Data, DataSegment{Offset: uint32(off), Init: init})
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, bool, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, false, err
	}
	if flags > 0x03 {
		return Limits{}, false, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	var l Limits
	if l.Min, err = r.ReadU32(); err != nil {
		return Limits{}, false, err
	}
	if flags&0x01 != 0 {
		maxPages, err := r.ReadU32()
		if err != nil {
			return Limits{}, false, err
		}
		l.Max = &maxPages
	}
	return l, flags&0x02 != 0, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	l, shared, err := readLimits(r)
	return MemoryType{Limits: l, Shared: shared}, err
}

func readTableType(r *binary.Reader) (TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	l, _, err := readLimits(r)
	return TableType{ElemType: ValType(elem), Limits: l}, err
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid mutability %d", mut)
	}
	return GlobalType{ValType: ValType(t), Mutable: mut == 1}, nil
}

// readConstExpr copies a single-instruction constant expression including its end opcode.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	w := &bytes.Buffer{}
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	w.WriteByte(op)
	var n int
	switch op {
	case OpI32Const, OpI64Const, OpGlobalGet, OpRefNull, 0xD2: // 0xD2 is ref.func
		for {
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			w.WriteByte(b)
			if op == OpRefNull || b&0x80 == 0 {
				break
			}
		}
	case 0x43: // f32.const
		n = 4
	case OpF64Const:
		n = 8
	default:
		return nil, fmt.Errorf("unsupported constant opcode 0x%02x", op)
	}
	if n > 0 {
		imm, err := r.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		w.Write(imm)
	}
	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != OpEnd {
		return nil, fmt.Errorf("constant expression not terminated")
	}
	w.WriteByte(end)
	return w.Bytes(), nil
}
