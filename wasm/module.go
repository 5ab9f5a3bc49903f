package wasm

import (
	"encoding/binary"

	"github.com/0x7CFE/wasmer/types"
)

// Module is the parsed structure of a core binary: every descriptor the
// runtime needs, in declaration order.
type Module struct {
	Types    []*types.FuncType
	Imports  []types.ImportType
	Funcs    []uint32 // type indices of declared (non-imported) functions
	Tables   []types.TableType
	Memories []types.MemoryType
	Globals  []types.GlobalType
	Exports  []types.ExportType
	Start    *uint32
}

// IsModule reports whether data begins with the core binary magic.
func IsModule(data []byte) bool {
	return len(data) >= 8 && binary.LittleEndian.Uint32(data) == Magic
}

// NumImportedFuncs returns how many imports are functions. Declared
// functions are indexed after them.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Type.Kind() == types.ExternFunc {
			n++
		}
	}
	return n
}

func (m *Module) importedOfKind(kind types.ExternKind) []types.ExternType {
	var out []types.ExternType
	for _, imp := range m.Imports {
		if imp.Type.Kind() == kind {
			out = append(out, imp.Type)
		}
	}
	return out
}

// FuncTypeAt resolves a function index against the import-then-declared
// index space.
func (m *Module) FuncTypeAt(idx uint32) (*types.FuncType, bool) {
	imported := m.importedOfKind(types.ExternFunc)
	if int(idx) < len(imported) {
		return imported[idx].Func(), true
	}
	idx -= uint32(len(imported))
	if int(idx) >= len(m.Funcs) {
		return nil, false
	}
	typeIdx := m.Funcs[idx]
	if int(typeIdx) >= len(m.Types) {
		return nil, false
	}
	return m.Types[typeIdx], true
}

// TableTypeAt resolves a table index against the import-then-declared space.
func (m *Module) TableTypeAt(idx uint32) (*types.TableType, bool) {
	imported := m.importedOfKind(types.ExternTable)
	if int(idx) < len(imported) {
		return imported[idx].Table(), true
	}
	idx -= uint32(len(imported))
	if int(idx) >= len(m.Tables) {
		return nil, false
	}
	return &m.Tables[idx], true
}

// MemoryTypeAt resolves a memory index against the import-then-declared space.
func (m *Module) MemoryTypeAt(idx uint32) (*types.MemoryType, bool) {
	imported := m.importedOfKind(types.ExternMemory)
	if int(idx) < len(imported) {
		return imported[idx].Memory(), true
	}
	idx -= uint32(len(imported))
	if int(idx) >= len(m.Memories) {
		return nil, false
	}
	return &m.Memories[idx], true
}

// GlobalTypeAt resolves a global index against the import-then-declared space.
func (m *Module) GlobalTypeAt(idx uint32) (*types.GlobalType, bool) {
	imported := m.importedOfKind(types.ExternGlobal)
	if int(idx) < len(imported) {
		return imported[idx].Global(), true
	}
	idx -= uint32(len(imported))
	if int(idx) >= len(m.Globals) {
		return nil, false
	}
	return &m.Globals[idx], true
}
