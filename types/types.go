package types

import (
	"fmt"
	"strings"
)

// ValueKind identifies a WebAssembly value type.
type ValueKind byte

const (
	KindI32 ValueKind = iota
	KindI64
	KindF32
	KindF64
	KindFuncRef
	KindExternRef
)

func (k ValueKind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindFuncRef:
		return "funcref"
	case KindExternRef:
		return "externref"
	}
	return fmt.Sprintf("valuekind(%d)", byte(k))
}

// IsNumeric reports whether the kind is one of the four numeric types.
func (k ValueKind) IsNumeric() bool {
	return k <= KindF64
}

// IsRef reports whether the kind is a reference type.
func (k ValueKind) IsRef() bool {
	return k == KindFuncRef || k == KindExternRef
}

// FuncType represents a function signature with parameter and result types.
type FuncType struct {
	Params  []ValueKind
	Results []ValueKind
}

// NewFuncType builds a signature from parameter and result kinds.
func NewFuncType(params, results []ValueKind) *FuncType {
	return &FuncType{Params: params, Results: results}
}

func (t *FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range t.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range t.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Equal reports structural equality of two signatures.
func (t *FuncType) Equal(other *FuncType) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.Params) != len(other.Params) || len(t.Results) != len(other.Results) {
		return false
	}
	for i, p := range t.Params {
		if other.Params[i] != p {
			return false
		}
	}
	for i, r := range t.Results {
		if other.Results[i] != r {
			return false
		}
	}
	return true
}

// Mutability of a global.
type Mutability byte

const (
	Const Mutability = iota
	Var
)

func (m Mutability) String() string {
	if m == Var {
		return "var"
	}
	return "const"
}

// GlobalType describes a global's value kind and mutability.
type GlobalType struct {
	ValKind    ValueKind
	Mutability Mutability
}

func (t *GlobalType) String() string {
	return fmt.Sprintf("%s %s", t.Mutability, t.ValKind)
}

func (t *GlobalType) Equal(other *GlobalType) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.ValKind == other.ValKind && t.Mutability == other.Mutability
}

// Limits bound the size of a table or memory. Max is meaningful only when
// HasMax is set.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

func (l Limits) String() string {
	if l.HasMax {
		return fmt.Sprintf("[%d..%d]", l.Min, l.Max)
	}
	return fmt.Sprintf("[%d..]", l.Min)
}

func (l Limits) Equal(other Limits) bool {
	if l.Min != other.Min || l.HasMax != other.HasMax {
		return false
	}
	return !l.HasMax || l.Max == other.Max
}

// TableType describes a table's element kind and size bounds.
type TableType struct {
	Elem   ValueKind
	Limits Limits
}

func (t *TableType) String() string {
	return fmt.Sprintf("table %s %s", t.Elem, t.Limits)
}

func (t *TableType) Equal(other *TableType) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Elem == other.Elem && t.Limits.Equal(other.Limits)
}

// PageSize is the WebAssembly linear memory page size in bytes.
const PageSize = 65536

// MemoryType describes a linear memory's size bounds in pages.
type MemoryType struct {
	Limits Limits
	Shared bool
}

func (t *MemoryType) String() string {
	if t.Shared {
		return fmt.Sprintf("memory shared %s", t.Limits)
	}
	return fmt.Sprintf("memory %s", t.Limits)
}

func (t *MemoryType) Equal(other *MemoryType) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Shared == other.Shared && t.Limits.Equal(other.Limits)
}

// ExternKind identifies the kind of an import, export or extern value.
type ExternKind byte

const (
	ExternFunc ExternKind = iota
	ExternGlobal
	ExternTable
	ExternMemory
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternGlobal:
		return "global"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	}
	return fmt.Sprintf("externkind(%d)", byte(k))
}

// ExternType is the tagged union of the four external types. Exactly one of
// the accessors returns non-nil, matching Kind.
type ExternType struct {
	kind   ExternKind
	fn     *FuncType
	global *GlobalType
	table  *TableType
	memory *MemoryType
}

// NewFuncExtern wraps a function signature as an extern type.
func NewFuncExtern(t *FuncType) ExternType {
	return ExternType{kind: ExternFunc, fn: t}
}

// NewGlobalExtern wraps a global type as an extern type.
func NewGlobalExtern(t *GlobalType) ExternType {
	return ExternType{kind: ExternGlobal, global: t}
}

// NewTableExtern wraps a table type as an extern type.
func NewTableExtern(t *TableType) ExternType {
	return ExternType{kind: ExternTable, table: t}
}

// NewMemoryExtern wraps a memory type as an extern type.
func NewMemoryExtern(t *MemoryType) ExternType {
	return ExternType{kind: ExternMemory, memory: t}
}

func (e ExternType) Kind() ExternKind { return e.kind }

// Func returns the signature, or nil if the extern is not a function.
func (e ExternType) Func() *FuncType { return e.fn }

// Global returns the global type, or nil if the extern is not a global.
func (e ExternType) Global() *GlobalType { return e.global }

// Table returns the table type, or nil if the extern is not a table.
func (e ExternType) Table() *TableType { return e.table }

// Memory returns the memory type, or nil if the extern is not a memory.
func (e ExternType) Memory() *MemoryType { return e.memory }

func (e ExternType) String() string {
	switch e.kind {
	case ExternFunc:
		if e.fn != nil {
			return "func " + e.fn.String()
		}
		return "func"
	case ExternGlobal:
		if e.global != nil {
			return "global " + e.global.String()
		}
		return "global"
	case ExternTable:
		if e.table != nil {
			return e.table.String()
		}
		return "table"
	case ExternMemory:
		if e.memory != nil {
			return e.memory.String()
		}
		return "memory"
	}
	return "extern"
}

// Equal reports structural equality: same kind and matching inner type.
func (e ExternType) Equal(other ExternType) bool {
	if e.kind != other.kind {
		return false
	}
	switch e.kind {
	case ExternFunc:
		return e.fn.Equal(other.fn)
	case ExternGlobal:
		return e.global.Equal(other.global)
	case ExternTable:
		return e.table.Equal(other.table)
	case ExternMemory:
		return e.memory.Equal(other.memory)
	}
	return false
}

// ImportType describes one import a module declares: the two-level name and
// the required extern type. Modules expose these in declaration order.
type ImportType struct {
	Module string
	Name   string
	Type   ExternType
}

func (t ImportType) String() string {
	return fmt.Sprintf("%q.%q: %s", t.Module, t.Name, t.Type)
}

// ExportType describes one export a module declares.
type ExportType struct {
	Name string
	Type ExternType
}

func (t ExportType) String() string {
	return fmt.Sprintf("%q: %s", t.Name, t.Type)
}
