package wasm

import (
	"errors"
	"fmt"

	"github.com/0x7CFE/wasmer/types"
)

// Header errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// sectionOrder gives the canonical position of each non-custom section.
// DataCount sits between Element and Code.
func sectionOrder(id byte) int {
	switch id {
	case SectionDataCount:
		return int(SectionCode)*2 - 1
	default:
		return int(id) * 2
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
	}
	return fmt.Sprintf("unknown(%d)", id)
}

// ParseModule parses the structure of a core WebAssembly binary. It returns
// a *ParseError for anything malformed, with the section and offset where
// parsing stopped.
func ParseModule(data []byte) (*Module, error) {
	r := &reader{data: data}

	magic, err := r.u32le()
	if err != nil {
		return nil, &ParseError{Section: "header", Offset: r.off, Err: err}
	}
	if magic != Magic {
		return nil, &ParseError{Section: "header", Offset: 0, Err: ErrInvalidMagic}
	}
	version, err := r.u32le()
	if err != nil {
		return nil, &ParseError{Section: "header", Offset: r.off, Err: err}
	}
	if version != Version {
		return nil, &ParseError{Section: "header", Offset: 4, Err: ErrInvalidVersion}
	}

	m := &Module{}
	lastOrder := 0

	for r.len() > 0 {
		id, err := r.byte()
		if err != nil {
			return nil, &ParseError{Section: "section header", Offset: r.off, Err: err}
		}
		size, err := r.u32()
		if err != nil {
			return nil, &ParseError{Section: sectionName(id), Offset: r.off, Err: err}
		}
		base := r.off
		payload, err := r.bytes(size)
		if err != nil {
			return nil, &ParseError{Section: sectionName(id), Offset: base, Err: err}
		}

		if id != SectionCustom {
			order := sectionOrder(id)
			if order <= lastOrder {
				return nil, &ParseError{
					Section: sectionName(id),
					Offset:  base,
					Err:     fmt.Errorf("section appears out of order"),
				}
			}
			lastOrder = order
		}

		sr := &reader{data: payload}
		switch id {
		case SectionCustom:
			// Name followed by uninterpreted bytes.
			if _, err := sr.name(); err != nil {
				return nil, secErr(id, base, sr, err)
			}
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement, SectionData:
			// Framed by the section size; contents are the engine's problem.
			sr.off = len(sr.data)
		case SectionDataCount:
			_, err = sr.u32()
		case SectionCode:
			err = parseCodeSection(sr, m)
		default:
			err = fmt.Errorf("unknown section id %d", id)
		}
		if err != nil {
			return nil, secErr(id, base, sr, err)
		}
		if id != SectionCustom && sr.len() > 0 {
			return nil, secErr(id, base, sr, fmt.Errorf("%d trailing bytes after section content", sr.len()))
		}
	}

	if len(m.Memories)+len(m.importedOfKind(types.ExternMemory)) > 1 {
		return nil, &ParseError{
			Section: "memory",
			Offset:  len(data),
			Err:     fmt.Errorf("at most one memory is allowed"),
		}
	}

	return m, nil
}

func secErr(id byte, base int, sr *reader, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return &ParseError{Section: sectionName(id), Offset: base + sr.off, Err: err}
}

func parseValType(b byte) (types.ValueKind, error) {
	switch b {
	case valI32:
		return types.KindI32, nil
	case valI64:
		return types.KindI64, nil
	case valF32:
		return types.KindF32, nil
	case valF64:
		return types.KindF64, nil
	case valFuncRef:
		return types.KindFuncRef, nil
	case valExternRef:
		return types.KindExternRef, nil
	case valV128:
		return 0, fmt.Errorf("v128 values are not supported")
	}
	return 0, fmt.Errorf("invalid value type 0x%02X", b)
}

func parseResultTypes(r *reader) ([]types.ValueKind, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	kinds := make([]types.ValueKind, 0, n)
	for i := uint32(0); i < n; i++ {
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		k, err := parseValType(b)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseTypeSection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tag, err := r.byte()
		if err != nil {
			return err
		}
		if tag != funcTypeTag {
			return fmt.Errorf("type %d: expected func type tag 0x60, got 0x%02X", i, tag)
		}
		params, err := parseResultTypes(r)
		if err != nil {
			return fmt.Errorf("type %d params: %w", i, err)
		}
		results, err := parseResultTypes(r)
		if err != nil {
			return fmt.Errorf("type %d results: %w", i, err)
		}
		m.Types = append(m.Types, types.NewFuncType(params, results))
	}
	return nil
}

func parseLimits(r *reader) (types.Limits, bool, error) {
	flags, err := r.byte()
	if err != nil {
		return types.Limits{}, false, err
	}
	if flags > 3 {
		return types.Limits{}, false, fmt.Errorf("unsupported limits flags 0x%02X", flags)
	}
	shared := flags&2 != 0
	hasMax := flags&1 != 0
	if shared && !hasMax {
		return types.Limits{}, false, fmt.Errorf("shared limits require a maximum")
	}
	min, err := r.u32()
	if err != nil {
		return types.Limits{}, false, err
	}
	l := types.Limits{Min: min}
	if hasMax {
		max, err := r.u32()
		if err != nil {
			return types.Limits{}, false, err
		}
		if max < min {
			return types.Limits{}, false, fmt.Errorf("limits maximum %d below minimum %d", max, min)
		}
		l.Max = max
		l.HasMax = true
	}
	return l, shared, nil
}

func parseTableType(r *reader) (types.TableType, error) {
	b, err := r.byte()
	if err != nil {
		return types.TableType{}, err
	}
	elem, err := parseValType(b)
	if err != nil {
		return types.TableType{}, err
	}
	if !elem.IsRef() {
		return types.TableType{}, fmt.Errorf("table element type must be a reference, got %s", elem)
	}
	limits, shared, err := parseLimits(r)
	if err != nil {
		return types.TableType{}, err
	}
	if shared {
		return types.TableType{}, fmt.Errorf("shared tables are not supported")
	}
	return types.TableType{Elem: elem, Limits: limits}, nil
}

func parseGlobalType(r *reader) (types.GlobalType, error) {
	b, err := r.byte()
	if err != nil {
		return types.GlobalType{}, err
	}
	kind, err := parseValType(b)
	if err != nil {
		return types.GlobalType{}, err
	}
	mut, err := r.byte()
	if err != nil {
		return types.GlobalType{}, err
	}
	if mut > 1 {
		return types.GlobalType{}, fmt.Errorf("invalid mutability flag 0x%02X", mut)
	}
	g := types.GlobalType{ValKind: kind}
	if mut == 1 {
		g.Mutability = types.Var
	}
	return g, nil
}

func parseImportSection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.name()
		if err != nil {
			return fmt.Errorf("import %d module: %w", i, err)
		}
		name, err := r.name()
		if err != nil {
			return fmt.Errorf("import %d name: %w", i, err)
		}
		desc, err := r.byte()
		if err != nil {
			return err
		}
		var ext types.ExternType
		switch desc {
		case descFunc:
			typeIdx, err := r.u32()
			if err != nil {
				return err
			}
			if int(typeIdx) >= len(m.Types) {
				return fmt.Errorf("import %d: type index %d out of range", i, typeIdx)
			}
			ext = types.NewFuncExtern(m.Types[typeIdx])
		case descTable:
			tt, err := parseTableType(r)
			if err != nil {
				return fmt.Errorf("import %d: %w", i, err)
			}
			ext = types.NewTableExtern(&tt)
		case descMemory:
			limits, shared, err := parseLimits(r)
			if err != nil {
				return fmt.Errorf("import %d: %w", i, err)
			}
			ext = types.NewMemoryExtern(&types.MemoryType{Limits: limits, Shared: shared})
		case descGlobal:
			gt, err := parseGlobalType(r)
			if err != nil {
				return fmt.Errorf("import %d: %w", i, err)
			}
			ext = types.NewGlobalExtern(&gt)
		default:
			return fmt.Errorf("import %d: invalid descriptor kind 0x%02X", i, desc)
		}
		m.Imports = append(m.Imports, types.ImportType{Module: module, Name: name, Type: ext})
	}
	return nil
}

func parseFunctionSection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		typeIdx, err := r.u32()
		if err != nil {
			return err
		}
		if int(typeIdx) >= len(m.Types) {
			return fmt.Errorf("function %d: type index %d out of range", i, typeIdx)
		}
		m.Funcs = append(m.Funcs, typeIdx)
	}
	return nil
}

func parseTableSection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tt, err := parseTableType(r)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func parseMemorySection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		limits, shared, err := parseLimits(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		m.Memories = append(m.Memories, types.MemoryType{Limits: limits, Shared: shared})
	}
	return nil
}

// skipConstExpr consumes a constant expression terminated by end.
func skipConstExpr(r *reader) error {
	for {
		op, err := r.byte()
		if err != nil {
			return err
		}
		switch op {
		case opEnd:
			return nil
		case opI32Const, opI64Const:
			if _, err := r.s64(); err != nil {
				return err
			}
		case opF32Const:
			if _, err := r.bytes(4); err != nil {
				return err
			}
		case opF64Const:
			if _, err := r.bytes(8); err != nil {
				return err
			}
		case opGlobalGet, opRefFunc:
			if _, err := r.u32(); err != nil {
				return err
			}
		case opRefNull:
			if _, err := r.byte(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("opcode 0x%02X not allowed in constant expression", op)
		}
	}
}

func parseGlobalSection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := parseGlobalType(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		if err := skipConstExpr(r); err != nil {
			return fmt.Errorf("global %d initializer: %w", i, err)
		}
		m.Globals = append(m.Globals, gt)
	}
	return nil
}

func parseExportSection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.name()
		if err != nil {
			return fmt.Errorf("export %d name: %w", i, err)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate export name %q", name)
		}
		seen[name] = struct{}{}

		desc, err := r.byte()
		if err != nil {
			return err
		}
		idx, err := r.u32()
		if err != nil {
			return err
		}

		var ext types.ExternType
		switch desc {
		case descFunc:
			ft, ok := m.FuncTypeAt(idx)
			if !ok {
				return fmt.Errorf("export %q: function index %d out of range", name, idx)
			}
			ext = types.NewFuncExtern(ft)
		case descTable:
			tt, ok := m.TableTypeAt(idx)
			if !ok {
				return fmt.Errorf("export %q: table index %d out of range", name, idx)
			}
			ext = types.NewTableExtern(tt)
		case descMemory:
			mt, ok := m.MemoryTypeAt(idx)
			if !ok {
				return fmt.Errorf("export %q: memory index %d out of range", name, idx)
			}
			ext = types.NewMemoryExtern(mt)
		case descGlobal:
			gt, ok := m.GlobalTypeAt(idx)
			if !ok {
				return fmt.Errorf("export %q: global index %d out of range", name, idx)
			}
			ext = types.NewGlobalExtern(gt)
		default:
			return fmt.Errorf("export %q: invalid descriptor kind 0x%02X", name, desc)
		}
		m.Exports = append(m.Exports, types.ExportType{Name: name, Type: ext})
	}
	return nil
}

func parseStartSection(r *reader, m *Module) error {
	idx, err := r.u32()
	if err != nil {
		return err
	}
	ft, ok := m.FuncTypeAt(idx)
	if !ok {
		return fmt.Errorf("start function index %d out of range", idx)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function must have type () -> (), got %s", ft)
	}
	m.Start = &idx
	return nil
}

func parseCodeSection(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	if int(count) != len(m.Funcs) {
		return fmt.Errorf("code count %d does not match %d declared functions", count, len(m.Funcs))
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.u32()
		if err != nil {
			return err
		}
		if err := r.skip(size); err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
	}
	return nil
}
