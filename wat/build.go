package wat

import (
	"fmt"
	"strconv"
	"strings"
)

// Import/export descriptor kinds, shared with the binary encoding.
const (
	kindFunc   byte = 0
	kindTable  byte = 1
	kindMemory byte = 2
	kindGlobal byte = 3
)

// Value type bytes.
const (
	vtI32       byte = 0x7F
	vtI64       byte = 0x7E
	vtF32       byte = 0x7D
	vtF64       byte = 0x7C
	vtFuncRef   byte = 0x70
	vtExternRef byte = 0x6F
)

type sig struct {
	params  []byte
	results []byte
}

func (s *sig) key() string {
	return string(s.params) + "|" + string(s.results)
}

type limits struct {
	min    uint32
	max    uint32
	hasMax bool
}

type importEntry struct {
	module  string
	name    string
	kind    byte
	typeidx int    // kindFunc
	table   tableEntry
	mem     limits
	global  globalDecl
}

type tableEntry struct {
	elem byte
	lim  limits
}

type globalDecl struct {
	valtype byte
	mut     bool
}

type globalEntry struct {
	decl globalDecl
	init []byte // encoded constant expression, without the end opcode
}

type exportEntry struct {
	name string
	kind byte
	idx  int
}

type dataEntry struct {
	offset []byte // encoded constant expression, without the end opcode
	bytes  []byte
}

type function struct {
	typeidx    int
	node       *node // func node, body encoded in the second pass
	bodyStart  int   // index of first instruction item in node.list
	localNames map[string]int
	localTypes []byte // declared locals, after params
	body       []byte
}

type module struct {
	types   []*sig
	typeKey map[string]int

	imports []importEntry
	funcs   []*function
	tables  []tableEntry
	mems    []limits
	globals []globalEntry
	exports []exportEntry
	start   int
	datas   []dataEntry

	funcNames   map[string]int
	tableNames  map[string]int
	memNames    map[string]int
	globalNames map[string]int
	typeNames   map[string]int

	importFuncs   int
	importTables  int
	importMems    int
	importGlobals int

	declared [4]bool // a declaration of this kind was seen; imports must precede
}

func newModule() *module {
	return &module{
		typeKey:     make(map[string]int),
		funcNames:   make(map[string]int),
		tableNames:  make(map[string]int),
		memNames:    make(map[string]int),
		globalNames: make(map[string]int),
		typeNames:   make(map[string]int),
		start:       -1,
	}
}

func (m *module) internType(s *sig) int {
	if idx, ok := m.typeKey[s.key()]; ok {
		return idx
	}
	m.types = append(m.types, s)
	m.typeKey[s.key()] = len(m.types) - 1
	return len(m.types) - 1
}

func (m *module) funcCount() int   { return m.importFuncs + len(m.funcs) }
func (m *module) tableCount() int  { return m.importTables + len(m.tables) }
func (m *module) memCount() int    { return m.importMems + len(m.mems) }
func (m *module) globalCount() int { return m.importGlobals + len(m.globals) }

// buildModule turns the (module ...) tree into an encodable module.
func buildModule(root *node) (*module, error) {
	if !root.isList() || root.head() != "module" {
		return nil, fmt.Errorf("wat: line %d: expected (module ...)", root.line)
	}
	m := newModule()

	items := root.list[1:]
	if len(items) > 0 && !items[0].isList() && strings.HasPrefix(items[0].atom, "$") {
		items = items[1:] // optional module name
	}

	var startNode *node
	for _, item := range items {
		if !item.isList() {
			return nil, fmt.Errorf("wat: line %d: unexpected atom %q in module", item.line, item.atom)
		}
		var err error
		switch item.head() {
		case "type":
			err = m.addType(item)
		case "import":
			err = m.addImport(item)
		case "func":
			err = m.addFunc(item)
		case "table":
			err = m.addTable(item)
		case "memory":
			err = m.addMemory(item)
		case "global":
			err = m.addGlobal(item)
		case "export":
			err = m.addExport(item)
		case "start":
			startNode = item
		case "data":
			err = m.addData(item)
		case "elem":
			err = fmt.Errorf("wat: line %d: element segments are not supported", item.line)
		default:
			err = fmt.Errorf("wat: line %d: unsupported module field %q", item.line, item.head())
		}
		if err != nil {
			return nil, err
		}
	}

	if startNode != nil {
		if len(startNode.list) != 2 {
			return nil, fmt.Errorf("wat: line %d: start needs one function index", startNode.line)
		}
		idx, err := m.resolveIdx(startNode.list[1], m.funcNames, m.funcCount(), "function")
		if err != nil {
			return nil, err
		}
		m.start = idx
	}

	// Bodies last: every name is known by now.
	for _, fn := range m.funcs {
		if err := m.encodeBody(fn); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// takeName pops a leading $name from items.
func takeName(items []*node) (string, []*node) {
	if len(items) > 0 && !items[0].isList() && strings.HasPrefix(items[0].atom, "$") {
		return items[0].atom, items[1:]
	}
	return "", items
}

func (m *module) bindName(names map[string]int, name string, idx int, what string, line int) error {
	if name == "" {
		return nil
	}
	if _, dup := names[name]; dup {
		return fmt.Errorf("wat: line %d: duplicate %s name %s", line, what, name)
	}
	names[name] = idx
	return nil
}

func (m *module) requireImportsFirst(kind byte, line int) error {
	if m.declared[kind] {
		return fmt.Errorf("wat: line %d: imports must precede declarations", line)
	}
	return nil
}

func valType(atom string, line int) (byte, error) {
	switch atom {
	case "i32":
		return vtI32, nil
	case "i64":
		return vtI64, nil
	case "f32":
		return vtF32, nil
	case "f64":
		return vtF64, nil
	case "funcref":
		return vtFuncRef, nil
	case "externref":
		return vtExternRef, nil
	}
	return 0, fmt.Errorf("wat: line %d: unknown value type %q", line, atom)
}

// parseSig consumes (param ...) and (result ...) nodes from items, returning
// the signature, parameter names and remaining items.
func parseSig(items []*node) (*sig, map[string]int, []*node, error) {
	s := &sig{}
	names := make(map[string]int)
	i := 0
	for ; i < len(items); i++ {
		n := items[i]
		if !n.isList() || n.head() != "param" {
			break
		}
		fields := n.list[1:]
		if len(fields) > 0 && strings.HasPrefix(fields[0].atom, "$") && !fields[0].isList() {
			if len(fields) != 2 {
				return nil, nil, nil, fmt.Errorf("wat: line %d: named param takes one type", n.line)
			}
			vt, err := valType(fields[1].atom, n.line)
			if err != nil {
				return nil, nil, nil, err
			}
			if _, dup := names[fields[0].atom]; dup {
				return nil, nil, nil, fmt.Errorf("wat: line %d: duplicate param name %s", n.line, fields[0].atom)
			}
			names[fields[0].atom] = len(s.params)
			s.params = append(s.params, vt)
			continue
		}
		for _, f := range fields {
			vt, err := valType(f.atom, n.line)
			if err != nil {
				return nil, nil, nil, err
			}
			s.params = append(s.params, vt)
		}
	}
	for ; i < len(items); i++ {
		n := items[i]
		if !n.isList() || n.head() != "result" {
			break
		}
		for _, f := range n.list[1:] {
			vt, err := valType(f.atom, n.line)
			if err != nil {
				return nil, nil, nil, err
			}
			s.results = append(s.results, vt)
		}
	}
	return s, names, items[i:], nil
}

func parseLimitsFields(items []*node, line int) (limits, []*node, error) {
	if len(items) == 0 || items[0].isList() {
		return limits{}, nil, fmt.Errorf("wat: line %d: missing limits", line)
	}
	min64, err := strconv.ParseUint(items[0].atom, 10, 32)
	if err != nil {
		return limits{}, nil, fmt.Errorf("wat: line %d: bad limits minimum %q", line, items[0].atom)
	}
	l := limits{min: uint32(min64)}
	items = items[1:]
	if len(items) > 0 && !items[0].isList() {
		if max64, err := strconv.ParseUint(items[0].atom, 10, 32); err == nil {
			l.max = uint32(max64)
			l.hasMax = true
			items = items[1:]
		}
	}
	return l, items, nil
}

func (m *module) addType(n *node) error {
	items := n.list[1:]
	name, items := takeName(items)
	if len(items) != 1 || !items[0].isList() || items[0].head() != "func" {
		return fmt.Errorf("wat: line %d: type expects (func ...)", n.line)
	}
	s, _, rest, err := parseSig(items[0].list[1:])
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("wat: line %d: unexpected fields in type", n.line)
	}
	idx := m.internType(s)
	return m.bindName(m.typeNames, name, idx, "type", n.line)
}

// inlineExports collects leading (export "n") nodes.
func inlineExports(items []*node) ([]string, []*node) {
	var exports []string
	for len(items) > 0 && items[0].isList() && items[0].head() == "export" && len(items[0].list) == 2 {
		exports = append(exports, items[0].list[1].atom)
		items = items[1:]
	}
	return exports, items
}

// inlineImport matches a leading (import "m" "n") node.
func inlineImport(items []*node) (string, string, bool, []*node) {
	if len(items) > 0 && items[0].isList() && items[0].head() == "import" && len(items[0].list) == 3 {
		return items[0].list[1].atom, items[0].list[2].atom, true, items[1:]
	}
	return "", "", false, items
}

func (m *module) addImport(n *node) error {
	if len(n.list) != 4 || !n.list[3].isList() {
		return fmt.Errorf("wat: line %d: import expects module, name and a descriptor", n.line)
	}
	module, name := n.list[1].atom, n.list[2].atom
	desc := n.list[3]
	items := desc.list[1:]
	bindName, items := takeName(items)

	switch desc.head() {
	case "func":
		if err := m.requireImportsFirst(kindFunc, n.line); err != nil {
			return err
		}
		typeidx, err := m.parseTypeUse(items, n.line)
		if err != nil {
			return err
		}
		if err := m.bindName(m.funcNames, bindName, m.importFuncs, "function", n.line); err != nil {
			return err
		}
		m.imports = append(m.imports, importEntry{module: module, name: name, kind: kindFunc, typeidx: typeidx})
		m.importFuncs++
	case "table":
		if err := m.requireImportsFirst(kindTable, n.line); err != nil {
			return err
		}
		te, err := parseTableFields(items, n.line)
		if err != nil {
			return err
		}
		if err := m.bindName(m.tableNames, bindName, m.importTables, "table", n.line); err != nil {
			return err
		}
		m.imports = append(m.imports, importEntry{module: module, name: name, kind: kindTable, table: te})
		m.importTables++
	case "memory":
		if err := m.requireImportsFirst(kindMemory, n.line); err != nil {
			return err
		}
		lim, rest, err := parseLimitsFields(items, n.line)
		if err != nil {
			return err
		}
		if len(rest) != 0 {
			return fmt.Errorf("wat: line %d: unexpected fields in memory import", n.line)
		}
		if err := m.bindName(m.memNames, bindName, m.importMems, "memory", n.line); err != nil {
			return err
		}
		m.imports = append(m.imports, importEntry{module: module, name: name, kind: kindMemory, mem: lim})
		m.importMems++
	case "global":
		if err := m.requireImportsFirst(kindGlobal, n.line); err != nil {
			return err
		}
		decl, rest, err := parseGlobalDecl(items, n.line)
		if err != nil {
			return err
		}
		if len(rest) != 0 {
			return fmt.Errorf("wat: line %d: unexpected fields in global import", n.line)
		}
		if err := m.bindName(m.globalNames, bindName, m.importGlobals, "global", n.line); err != nil {
			return err
		}
		m.imports = append(m.imports, importEntry{module: module, name: name, kind: kindGlobal, global: decl})
		m.importGlobals++
	default:
		return fmt.Errorf("wat: line %d: unsupported import descriptor %q", n.line, desc.head())
	}
	return nil
}

// parseTypeUse handles (type $t) references and inline (param)/(result)
// signatures on funcs and func imports.
func (m *module) parseTypeUse(items []*node, line int) (int, error) {
	if len(items) > 0 && items[0].isList() && items[0].head() == "type" {
		use := items[0]
		if len(use.list) != 2 {
			return 0, fmt.Errorf("wat: line %d: type use expects one index", line)
		}
		idx, err := m.resolveIdx(use.list[1], m.typeNames, len(m.types), "type")
		if err != nil {
			return 0, err
		}
		return idx, nil
	}
	s, _, rest, err := parseSig(items)
	if err != nil {
		return 0, err
	}
	if len(rest) != 0 {
		return 0, fmt.Errorf("wat: line %d: unexpected fields after signature", line)
	}
	return m.internType(s), nil
}

func parseTableFields(items []*node, line int) (tableEntry, error) {
	lim, rest, err := parseLimitsFields(items, line)
	if err != nil {
		return tableEntry{}, err
	}
	if len(rest) != 1 || rest[0].isList() {
		return tableEntry{}, fmt.Errorf("wat: line %d: table expects an element type", line)
	}
	elem, err := valType(rest[0].atom, line)
	if err != nil {
		return tableEntry{}, err
	}
	if elem != vtFuncRef && elem != vtExternRef {
		return tableEntry{}, fmt.Errorf("wat: line %d: table element must be funcref or externref", line)
	}
	return tableEntry{elem: elem, lim: lim}, nil
}

func parseGlobalDecl(items []*node, line int) (globalDecl, []*node, error) {
	if len(items) == 0 {
		return globalDecl{}, nil, fmt.Errorf("wat: line %d: missing global type", line)
	}
	n := items[0]
	if n.isList() && n.head() == "mut" {
		if len(n.list) != 2 {
			return globalDecl{}, nil, fmt.Errorf("wat: line %d: (mut ...) takes one type", line)
		}
		vt, err := valType(n.list[1].atom, line)
		if err != nil {
			return globalDecl{}, nil, err
		}
		return globalDecl{valtype: vt, mut: true}, items[1:], nil
	}
	vt, err := valType(n.atom, line)
	if err != nil {
		return globalDecl{}, nil, err
	}
	return globalDecl{valtype: vt}, items[1:], nil
}

func (m *module) addFunc(n *node) error {
	items := n.list[1:]
	name, items := takeName(items)
	exports, items := inlineExports(items)
	impMod, impName, isImport, items := inlineImport(items)

	if isImport {
		if err := m.requireImportsFirst(kindFunc, n.line); err != nil {
			return err
		}
		typeidx, err := m.parseTypeUse(items, n.line)
		if err != nil {
			return err
		}
		idx := m.importFuncs
		if err := m.bindName(m.funcNames, name, idx, "function", n.line); err != nil {
			return err
		}
		m.imports = append(m.imports, importEntry{module: impMod, name: impName, kind: kindFunc, typeidx: typeidx})
		m.importFuncs++
		for _, e := range exports {
			m.exports = append(m.exports, exportEntry{name: e, kind: kindFunc, idx: idx})
		}
		return nil
	}

	m.declared[kindFunc] = true
	var typeidx int
	var paramNames map[string]int
	if len(items) > 0 && items[0].isList() && items[0].head() == "type" {
		var err error
		typeidx, err = m.parseTypeUse(items, n.line)
		if err != nil {
			return err
		}
		items = items[1:]
	} else {
		s, pn, rest, err := parseSig(items)
		if err != nil {
			return err
		}
		typeidx = m.internType(s)
		paramNames = pn
		items = rest
	}
	if paramNames == nil {
		paramNames = make(map[string]int)
	}

	// Locals follow the signature.
	localNames := paramNames
	var localTypes []byte
	numParams := len(m.types[typeidx].params)
	for len(items) > 0 && items[0].isList() && items[0].head() == "local" {
		fields := items[0].list[1:]
		if len(fields) > 0 && !fields[0].isList() && strings.HasPrefix(fields[0].atom, "$") {
			if len(fields) != 2 {
				return fmt.Errorf("wat: line %d: named local takes one type", items[0].line)
			}
			vt, err := valType(fields[1].atom, items[0].line)
			if err != nil {
				return err
			}
			if _, dup := localNames[fields[0].atom]; dup {
				return fmt.Errorf("wat: line %d: duplicate local name %s", items[0].line, fields[0].atom)
			}
			localNames[fields[0].atom] = numParams + len(localTypes)
			localTypes = append(localTypes, vt)
		} else {
			for _, f := range fields {
				vt, err := valType(f.atom, items[0].line)
				if err != nil {
					return err
				}
				localTypes = append(localTypes, vt)
			}
		}
		items = items[1:]
	}

	idx := m.importFuncs + len(m.funcs)
	if err := m.bindName(m.funcNames, name, idx, "function", n.line); err != nil {
		return err
	}
	for _, e := range exports {
		m.exports = append(m.exports, exportEntry{name: e, kind: kindFunc, idx: idx})
	}
	m.funcs = append(m.funcs, &function{
		typeidx:    typeidx,
		node:       n,
		bodyStart:  len(n.list) - len(items),
		localNames: localNames,
		localTypes: localTypes,
	})
	return nil
}

func (m *module) addTable(n *node) error {
	items := n.list[1:]
	name, items := takeName(items)
	exports, items := inlineExports(items)
	impMod, impName, isImport, items := inlineImport(items)

	te, err := parseTableFields(items, n.line)
	if err != nil {
		return err
	}
	var idx int
	if isImport {
		if err := m.requireImportsFirst(kindTable, n.line); err != nil {
			return err
		}
		idx = m.importTables
		m.imports = append(m.imports, importEntry{module: impMod, name: impName, kind: kindTable, table: te})
		m.importTables++
	} else {
		m.declared[kindTable] = true
		idx = m.importTables + len(m.tables)
		m.tables = append(m.tables, te)
	}
	if err := m.bindName(m.tableNames, name, idx, "table", n.line); err != nil {
		return err
	}
	for _, e := range exports {
		m.exports = append(m.exports, exportEntry{name: e, kind: kindTable, idx: idx})
	}
	return nil
}

func (m *module) addMemory(n *node) error {
	items := n.list[1:]
	name, items := takeName(items)
	exports, items := inlineExports(items)
	impMod, impName, isImport, items := inlineImport(items)

	lim, rest, err := parseLimitsFields(items, n.line)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("wat: line %d: unexpected fields in memory", n.line)
	}
	var idx int
	if isImport {
		if err := m.requireImportsFirst(kindMemory, n.line); err != nil {
			return err
		}
		idx = m.importMems
		m.imports = append(m.imports, importEntry{module: impMod, name: impName, kind: kindMemory, mem: lim})
		m.importMems++
	} else {
		m.declared[kindMemory] = true
		idx = m.importMems + len(m.mems)
		m.mems = append(m.mems, lim)
	}
	if err := m.bindName(m.memNames, name, idx, "memory", n.line); err != nil {
		return err
	}
	for _, e := range exports {
		m.exports = append(m.exports, exportEntry{name: e, kind: kindMemory, idx: idx})
	}
	return nil
}

func (m *module) addGlobal(n *node) error {
	items := n.list[1:]
	name, items := takeName(items)
	exports, items := inlineExports(items)
	impMod, impName, isImport, items := inlineImport(items)

	decl, items, err := parseGlobalDecl(items, n.line)
	if err != nil {
		return err
	}
	var idx int
	if isImport {
		if err := m.requireImportsFirst(kindGlobal, n.line); err != nil {
			return err
		}
		if len(items) != 0 {
			return fmt.Errorf("wat: line %d: imported global cannot have an initializer", n.line)
		}
		idx = m.importGlobals
		m.imports = append(m.imports, importEntry{module: impMod, name: impName, kind: kindGlobal, global: decl})
		m.importGlobals++
	} else {
		m.declared[kindGlobal] = true
		if len(items) != 1 || !items[0].isList() {
			return fmt.Errorf("wat: line %d: global needs one initializer expression", n.line)
		}
		init, err := m.encodeConstExpr(items[0])
		if err != nil {
			return err
		}
		idx = m.importGlobals + len(m.globals)
		m.globals = append(m.globals, globalEntry{decl: decl, init: init})
	}
	if err := m.bindName(m.globalNames, name, idx, "global", n.line); err != nil {
		return err
	}
	for _, e := range exports {
		m.exports = append(m.exports, exportEntry{name: e, kind: kindGlobal, idx: idx})
	}
	return nil
}

func (m *module) addExport(n *node) error {
	if len(n.list) != 3 || !n.list[2].isList() || len(n.list[2].list) != 2 {
		return fmt.Errorf("wat: line %d: export expects a name and (kind idx)", n.line)
	}
	name := n.list[1].atom
	desc := n.list[2]
	ref := desc.list[1]

	var kind byte
	var idx int
	var err error
	switch desc.head() {
	case "func":
		kind = kindFunc
		idx, err = m.resolveIdx(ref, m.funcNames, m.funcCount(), "function")
	case "table":
		kind = kindTable
		idx, err = m.resolveIdx(ref, m.tableNames, m.tableCount(), "table")
	case "memory":
		kind = kindMemory
		idx, err = m.resolveIdx(ref, m.memNames, m.memCount(), "memory")
	case "global":
		kind = kindGlobal
		idx, err = m.resolveIdx(ref, m.globalNames, m.globalCount(), "global")
	default:
		return fmt.Errorf("wat: line %d: unsupported export descriptor %q", n.line, desc.head())
	}
	if err != nil {
		return err
	}
	m.exports = append(m.exports, exportEntry{name: name, kind: kind, idx: idx})
	return nil
}

func (m *module) addData(n *node) error {
	items := n.list[1:]
	if len(items) == 0 || !items[0].isList() {
		return fmt.Errorf("wat: line %d: data expects an offset expression", n.line)
	}
	offsetNode := items[0]
	if offsetNode.head() == "offset" {
		if len(offsetNode.list) != 2 || !offsetNode.list[1].isList() {
			return fmt.Errorf("wat: line %d: (offset ...) takes one expression", n.line)
		}
		offsetNode = offsetNode.list[1]
	}
	offset, err := m.encodeConstExpr(offsetNode)
	if err != nil {
		return err
	}
	var bytes []byte
	for _, s := range items[1:] {
		if s.isList() || !s.str {
			return fmt.Errorf("wat: line %d: data contents must be string literals", n.line)
		}
		bytes = append(bytes, s.atom...)
	}
	m.datas = append(m.datas, dataEntry{offset: offset, bytes: bytes})
	return nil
}

// resolveIdx turns a $name or numeric atom into an index within a space.
func (m *module) resolveIdx(n *node, names map[string]int, count int, what string) (int, error) {
	if n.isList() {
		return 0, fmt.Errorf("wat: line %d: expected %s index", n.line, what)
	}
	if strings.HasPrefix(n.atom, "$") {
		idx, ok := names[n.atom]
		if !ok {
			return 0, fmt.Errorf("wat: line %d: unknown %s %s", n.line, what, n.atom)
		}
		return idx, nil
	}
	idx, err := strconv.Atoi(n.atom)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("wat: line %d: bad %s index %q", n.line, what, n.atom)
	}
	if idx >= count {
		return 0, fmt.Errorf("wat: line %d: %s index %d out of range", n.line, what, idx)
	}
	return idx, nil
}

// encodeConstExpr encodes a folded constant expression (iNN.const, fNN.const
// or global.get) without the trailing end opcode.
func (m *module) encodeConstExpr(n *node) ([]byte, error) {
	if !n.isList() || len(n.list) != 2 {
		return nil, fmt.Errorf("wat: line %d: expected a constant expression", n.line)
	}
	w := &buf{}
	op := n.head()
	arg := n.list[1]
	switch op {
	case "i32.const":
		v, err := parseI32(arg.atom)
		if err != nil {
			return nil, fmt.Errorf("wat: line %d: %v", n.line, err)
		}
		w.byte(0x41)
		w.s32(v)
	case "i64.const":
		v, err := parseI64(arg.atom)
		if err != nil {
			return nil, fmt.Errorf("wat: line %d: %v", n.line, err)
		}
		w.byte(0x42)
		w.s64(v)
	case "f32.const":
		v, err := strconv.ParseFloat(arg.atom, 32)
		if err != nil {
			return nil, fmt.Errorf("wat: line %d: bad f32 constant %q", n.line, arg.atom)
		}
		w.byte(0x43)
		w.f32(float32(v))
	case "f64.const":
		v, err := strconv.ParseFloat(arg.atom, 64)
		if err != nil {
			return nil, fmt.Errorf("wat: line %d: bad f64 constant %q", n.line, arg.atom)
		}
		w.byte(0x44)
		w.f64(v)
	case "global.get":
		idx, err := m.resolveIdx(arg, m.globalNames, m.globalCount(), "global")
		if err != nil {
			return nil, err
		}
		w.byte(0x23)
		w.u32(uint32(idx))
	default:
		return nil, fmt.Errorf("wat: line %d: %q is not a constant expression", n.line, op)
	}
	return w.bytes, nil
}

func parseI32(s string) (int32, error) {
	v, err := parseInt(s, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func parseI64(s string) (int64, error) {
	return parseInt(s, 64)
}

// parseInt accepts decimal and 0x hex with optional sign and _ separators.
// Unsigned values up to the full bit width are accepted and reinterpreted,
// so `i32.const 4294967295` means -1.
func parseInt(s string, bits int) (int64, error) {
	clean := strings.ReplaceAll(s, "_", "")
	if v, err := strconv.ParseInt(clean, 0, bits); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(clean, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad integer constant %q", s)
	}
	if bits == 32 {
		return int64(int32(uint32(u))), nil
	}
	return int64(u), nil
}
