package wat

import (
	"fmt"
	"strconv"
	"strings"
)

// Immediate shapes an opcode takes in the encoding.
type immKind uint8

const (
	immNone immKind = iota
	immBlock
	immElse
	immEnd
	immLabel
	immFunc
	immLocal
	immGlobal
	immMemarg
	immMemory // reserved zero byte
	immI32
	immI64
	immF32
	immF64
)

type opInfo struct {
	code  byte
	imm   immKind
	align byte // natural alignment exponent for memarg ops
}

var ops = map[string]opInfo{
	"unreachable": {code: 0x00},
	"nop":         {code: 0x01},
	"block":       {code: 0x02, imm: immBlock},
	"loop":        {code: 0x03, imm: immBlock},
	"if":          {code: 0x04, imm: immBlock},
	"else":        {code: 0x05, imm: immElse},
	"end":         {code: 0x0B, imm: immEnd},
	"br":          {code: 0x0C, imm: immLabel},
	"br_if":       {code: 0x0D, imm: immLabel},
	"return":      {code: 0x0F},
	"call":        {code: 0x10, imm: immFunc},

	"drop":   {code: 0x1A},
	"select": {code: 0x1B},

	"local.get":  {code: 0x20, imm: immLocal},
	"local.set":  {code: 0x21, imm: immLocal},
	"local.tee":  {code: 0x22, imm: immLocal},
	"global.get": {code: 0x23, imm: immGlobal},
	"global.set": {code: 0x24, imm: immGlobal},

	"i32.load":     {code: 0x28, imm: immMemarg, align: 2},
	"i64.load":     {code: 0x29, imm: immMemarg, align: 3},
	"f32.load":     {code: 0x2A, imm: immMemarg, align: 2},
	"f64.load":     {code: 0x2B, imm: immMemarg, align: 3},
	"i32.load8_s":  {code: 0x2C, imm: immMemarg, align: 0},
	"i32.load8_u":  {code: 0x2D, imm: immMemarg, align: 0},
	"i32.load16_s": {code: 0x2E, imm: immMemarg, align: 1},
	"i32.load16_u": {code: 0x2F, imm: immMemarg, align: 1},
	"i64.load8_s":  {code: 0x30, imm: immMemarg, align: 0},
	"i64.load8_u":  {code: 0x31, imm: immMemarg, align: 0},
	"i64.load16_s": {code: 0x32, imm: immMemarg, align: 1},
	"i64.load16_u": {code: 0x33, imm: immMemarg, align: 1},
	"i64.load32_s": {code: 0x34, imm: immMemarg, align: 2},
	"i64.load32_u": {code: 0x35, imm: immMemarg, align: 2},
	"i32.store":    {code: 0x36, imm: immMemarg, align: 2},
	"i64.store":    {code: 0x37, imm: immMemarg, align: 3},
	"f32.store":    {code: 0x38, imm: immMemarg, align: 2},
	"f64.store":    {code: 0x39, imm: immMemarg, align: 3},
	"i32.store8":   {code: 0x3A, imm: immMemarg, align: 0},
	"i32.store16":  {code: 0x3B, imm: immMemarg, align: 1},
	"i64.store8":   {code: 0x3C, imm: immMemarg, align: 0},
	"i64.store16":  {code: 0x3D, imm: immMemarg, align: 1},
	"i64.store32":  {code: 0x3E, imm: immMemarg, align: 2},
	"memory.size":  {code: 0x3F, imm: immMemory},
	"memory.grow":  {code: 0x40, imm: immMemory},

	"i32.const": {code: 0x41, imm: immI32},
	"i64.const": {code: 0x42, imm: immI64},
	"f32.const": {code: 0x43, imm: immF32},
	"f64.const": {code: 0x44, imm: immF64},

	"i32.eqz":  {code: 0x45},
	"i32.eq":   {code: 0x46},
	"i32.ne":   {code: 0x47},
	"i32.lt_s": {code: 0x48},
	"i32.lt_u": {code: 0x49},
	"i32.gt_s": {code: 0x4A},
	"i32.gt_u": {code: 0x4B},
	"i32.le_s": {code: 0x4C},
	"i32.le_u": {code: 0x4D},
	"i32.ge_s": {code: 0x4E},
	"i32.ge_u": {code: 0x4F},
	"i64.eqz":  {code: 0x50},
	"i64.eq":   {code: 0x51},
	"i64.ne":   {code: 0x52},
	"i64.lt_s": {code: 0x53},
	"i64.lt_u": {code: 0x54},
	"i64.gt_s": {code: 0x55},
	"i64.gt_u": {code: 0x56},
	"i64.le_s": {code: 0x57},
	"i64.le_u": {code: 0x58},
	"i64.ge_s": {code: 0x59},
	"i64.ge_u": {code: 0x5A},
	"f32.eq":   {code: 0x5B},
	"f32.ne":   {code: 0x5C},
	"f32.lt":   {code: 0x5D},
	"f32.gt":   {code: 0x5E},
	"f32.le":   {code: 0x5F},
	"f32.ge":   {code: 0x60},
	"f64.eq":   {code: 0x61},
	"f64.ne":   {code: 0x62},
	"f64.lt":   {code: 0x63},
	"f64.gt":   {code: 0x64},
	"f64.le":   {code: 0x65},
	"f64.ge":   {code: 0x66},

	"i32.clz":    {code: 0x67},
	"i32.ctz":    {code: 0x68},
	"i32.popcnt": {code: 0x69},
	"i32.add":    {code: 0x6A},
	"i32.sub":    {code: 0x6B},
	"i32.mul":    {code: 0x6C},
	"i32.div_s":  {code: 0x6D},
	"i32.div_u":  {code: 0x6E},
	"i32.rem_s":  {code: 0x6F},
	"i32.rem_u":  {code: 0x70},
	"i32.and":    {code: 0x71},
	"i32.or":     {code: 0x72},
	"i32.xor":    {code: 0x73},
	"i32.shl":    {code: 0x74},
	"i32.shr_s":  {code: 0x75},
	"i32.shr_u":  {code: 0x76},
	"i32.rotl":   {code: 0x77},
	"i32.rotr":   {code: 0x78},
	"i64.clz":    {code: 0x79},
	"i64.ctz":    {code: 0x7A},
	"i64.popcnt": {code: 0x7B},
	"i64.add":    {code: 0x7C},
	"i64.sub":    {code: 0x7D},
	"i64.mul":    {code: 0x7E},
	"i64.div_s":  {code: 0x7F},
	"i64.div_u":  {code: 0x80},
	"i64.rem_s":  {code: 0x81},
	"i64.rem_u":  {code: 0x82},
	"i64.and":    {code: 0x83},
	"i64.or":     {code: 0x84},
	"i64.xor":    {code: 0x85},
	"i64.shl":    {code: 0x86},
	"i64.shr_s":  {code: 0x87},
	"i64.shr_u":  {code: 0x88},
	"i64.rotl":   {code: 0x89},
	"i64.rotr":   {code: 0x8A},

	"f32.abs":      {code: 0x8B},
	"f32.neg":      {code: 0x8C},
	"f32.ceil":     {code: 0x8D},
	"f32.floor":    {code: 0x8E},
	"f32.trunc":    {code: 0x8F},
	"f32.nearest":  {code: 0x90},
	"f32.sqrt":     {code: 0x91},
	"f32.add":      {code: 0x92},
	"f32.sub":      {code: 0x93},
	"f32.mul":      {code: 0x94},
	"f32.div":      {code: 0x95},
	"f32.min":      {code: 0x96},
	"f32.max":      {code: 0x97},
	"f32.copysign": {code: 0x98},
	"f64.abs":      {code: 0x99},
	"f64.neg":      {code: 0x9A},
	"f64.ceil":     {code: 0x9B},
	"f64.floor":    {code: 0x9C},
	"f64.trunc":    {code: 0x9D},
	"f64.nearest":  {code: 0x9E},
	"f64.sqrt":     {code: 0x9F},
	"f64.add":      {code: 0xA0},
	"f64.sub":      {code: 0xA1},
	"f64.mul":      {code: 0xA2},
	"f64.div":      {code: 0xA3},
	"f64.min":      {code: 0xA4},
	"f64.max":      {code: 0xA5},
	"f64.copysign": {code: 0xA6},

	"i32.wrap_i64":        {code: 0xA7},
	"i32.trunc_f32_s":     {code: 0xA8},
	"i32.trunc_f32_u":     {code: 0xA9},
	"i32.trunc_f64_s":     {code: 0xAA},
	"i32.trunc_f64_u":     {code: 0xAB},
	"i64.extend_i32_s":    {code: 0xAC},
	"i64.extend_i32_u":    {code: 0xAD},
	"i64.trunc_f32_s":     {code: 0xAE},
	"i64.trunc_f32_u":     {code: 0xAF},
	"i64.trunc_f64_s":     {code: 0xB0},
	"i64.trunc_f64_u":     {code: 0xB1},
	"f32.convert_i32_s":   {code: 0xB2},
	"f32.convert_i32_u":   {code: 0xB3},
	"f32.convert_i64_s":   {code: 0xB4},
	"f32.convert_i64_u":   {code: 0xB5},
	"f32.demote_f64":      {code: 0xB6},
	"f64.convert_i32_s":   {code: 0xB7},
	"f64.convert_i32_u":   {code: 0xB8},
	"f64.convert_i64_s":   {code: 0xB9},
	"f64.convert_i64_u":   {code: 0xBA},
	"f64.promote_f32":     {code: 0xBB},
	"i32.reinterpret_f32": {code: 0xBC},
	"i64.reinterpret_f64": {code: 0xBD},
	"f32.reinterpret_i32": {code: 0xBE},
	"f64.reinterpret_i64": {code: 0xBF},

	"i32.extend8_s":  {code: 0xC0},
	"i32.extend16_s": {code: 0xC1},
	"i64.extend8_s":  {code: 0xC2},
	"i64.extend16_s": {code: 0xC3},
	"i64.extend32_s": {code: 0xC4},
}

// funcCtx carries the per-body state of the instruction encoder.
type funcCtx struct {
	m      *module
	locals map[string]int
	labels []string // block label stack, innermost last
	w      *buf
}

func (m *module) encodeBody(fn *function) error {
	c := &funcCtx{m: m, locals: fn.localNames, w: &buf{}}
	if err := c.encodeSeq(fn.node.list[fn.bodyStart:]); err != nil {
		return err
	}
	if len(c.labels) != 0 {
		return fmt.Errorf("wat: line %d: unclosed block in function body", fn.node.line)
	}
	c.w.byte(0x0B)
	fn.body = c.w.bytes
	return nil
}

func (c *funcCtx) encodeSeq(items []*node) error {
	for i := 0; i < len(items); {
		var err error
		i, err = c.encodeOne(items, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// encodeOne encodes a single instruction starting at items[i], consuming
// trailing immediate atoms in flat form, and returns the next index.
func (c *funcCtx) encodeOne(items []*node, i int) (int, error) {
	n := items[i]
	if n.isList() {
		if err := c.encodeFolded(n); err != nil {
			return 0, err
		}
		return i + 1, nil
	}

	info, ok := ops[n.atom]
	if !ok {
		return 0, fmt.Errorf("wat: line %d: unknown instruction %q", n.line, n.atom)
	}
	switch info.imm {
	case immBlock:
		rest, err := c.flatBlockHeader(n, items[i+1:])
		if err != nil {
			return 0, err
		}
		return len(items) - len(rest), nil
	case immElse:
		if len(c.labels) == 0 {
			return 0, fmt.Errorf("wat: line %d: else outside a block", n.line)
		}
		c.w.byte(0x05)
		return i + 1, nil
	case immEnd:
		if len(c.labels) == 0 {
			return 0, fmt.Errorf("wat: line %d: end without a matching block", n.line)
		}
		c.labels = c.labels[:len(c.labels)-1]
		c.w.byte(0x0B)
		return i + 1, nil
	}

	consumed, err := c.emitWithImmediates(n, info, items[i+1:])
	if err != nil {
		return 0, err
	}
	return i + 1 + consumed, nil
}

// flatBlockHeader handles `block $l (result t)` in the flat form; the body
// instructions that follow are part of the enclosing sequence until `end`.
func (c *funcCtx) flatBlockHeader(n *node, rest []*node) ([]*node, error) {
	label := ""
	if len(rest) > 0 && !rest[0].isList() && strings.HasPrefix(rest[0].atom, "$") {
		label = rest[0].atom
		rest = rest[1:]
	}
	bt, rest, err := c.blockType(rest, n.line)
	if err != nil {
		return nil, err
	}
	c.w.byte(ops[n.atom].code)
	c.w.byte(bt)
	c.labels = append(c.labels, label)
	return rest, nil
}

// blockType consumes an optional (result t) and returns its encoding.
func (c *funcCtx) blockType(items []*node, line int) (byte, []*node, error) {
	if len(items) > 0 && items[0].isList() && items[0].head() == "result" {
		r := items[0]
		if len(r.list) != 2 {
			return 0, nil, fmt.Errorf("wat: line %d: block result takes one type", line)
		}
		vt, err := valType(r.list[1].atom, line)
		if err != nil {
			return 0, nil, err
		}
		return vt, items[1:], nil
	}
	return 0x40, items, nil // empty block type
}

// encodeFolded handles the parenthesized instruction form: operands are
// encoded first, then the operator with its immediates.
func (c *funcCtx) encodeFolded(n *node) error {
	if len(n.list) == 0 || n.list[0].isList() {
		return fmt.Errorf("wat: line %d: expected an instruction", n.line)
	}
	op := n.list[0]
	info, ok := ops[op.atom]
	if !ok {
		return fmt.Errorf("wat: line %d: unknown instruction %q", op.line, op.atom)
	}

	switch info.imm {
	case immBlock:
		if op.atom == "if" {
			return c.encodeFoldedIf(n)
		}
		return c.encodeFoldedBlock(n, info.code)
	case immElse, immEnd:
		return fmt.Errorf("wat: line %d: %q cannot be folded", op.line, op.atom)
	}

	consumed, err := c.countImmediates(op, info, n.list[1:])
	if err != nil {
		return err
	}
	for _, operand := range n.list[1+consumed:] {
		if !operand.isList() {
			return fmt.Errorf("wat: line %d: unexpected atom %q after %s", operand.line, operand.atom, op.atom)
		}
		if err := c.encodeFolded(operand); err != nil {
			return err
		}
	}
	_, err = c.emitWithImmediates(op, info, n.list[1:])
	return err
}

func (c *funcCtx) encodeFoldedBlock(n *node, code byte) error {
	items := n.list[1:]
	label := ""
	if len(items) > 0 && !items[0].isList() && strings.HasPrefix(items[0].atom, "$") {
		label = items[0].atom
		items = items[1:]
	}
	bt, items, err := c.blockType(items, n.line)
	if err != nil {
		return err
	}
	c.w.byte(code)
	c.w.byte(bt)
	c.labels = append(c.labels, label)
	if err := c.encodeSeq(items); err != nil {
		return err
	}
	c.labels = c.labels[:len(c.labels)-1]
	c.w.byte(0x0B)
	return nil
}

// encodeFoldedIf handles (if $l? (result t)? cond* (then ...) (else ...)?).
func (c *funcCtx) encodeFoldedIf(n *node) error {
	items := n.list[1:]
	label := ""
	if len(items) > 0 && !items[0].isList() && strings.HasPrefix(items[0].atom, "$") {
		label = items[0].atom
		items = items[1:]
	}
	bt, items, err := c.blockType(items, n.line)
	if err != nil {
		return err
	}

	thenAt := -1
	for i, item := range items {
		if item.isList() && item.head() == "then" {
			thenAt = i
			break
		}
	}
	if thenAt < 0 {
		return fmt.Errorf("wat: line %d: folded if requires a (then ...) arm", n.line)
	}
	for _, cond := range items[:thenAt] {
		if !cond.isList() {
			return fmt.Errorf("wat: line %d: if condition must be folded", cond.line)
		}
		if err := c.encodeFolded(cond); err != nil {
			return err
		}
	}

	c.w.byte(0x04)
	c.w.byte(bt)
	c.labels = append(c.labels, label)
	if err := c.encodeSeq(items[thenAt].list[1:]); err != nil {
		return err
	}
	rest := items[thenAt+1:]
	if len(rest) > 0 {
		if len(rest) != 1 || !rest[0].isList() || rest[0].head() != "else" {
			return fmt.Errorf("wat: line %d: expected (else ...) after (then ...)", n.line)
		}
		c.w.byte(0x05)
		if err := c.encodeSeq(rest[0].list[1:]); err != nil {
			return err
		}
	}
	c.labels = c.labels[:len(c.labels)-1]
	c.w.byte(0x0B)
	return nil
}

// countImmediates reports how many leading atoms of items the op consumes,
// without emitting anything.
func (c *funcCtx) countImmediates(op *node, info opInfo, items []*node) (int, error) {
	switch info.imm {
	case immNone, immMemory:
		return 0, nil
	case immLabel, immFunc, immLocal, immGlobal, immI32, immI64, immF32, immF64:
		if len(items) == 0 || items[0].isList() {
			return 0, fmt.Errorf("wat: line %d: %s requires an immediate", op.line, op.atom)
		}
		return 1, nil
	case immMemarg:
		n := 0
		for n < len(items) && !items[n].isList() &&
			(strings.HasPrefix(items[n].atom, "offset=") || strings.HasPrefix(items[n].atom, "align=")) {
			n++
		}
		return n, nil
	}
	return 0, fmt.Errorf("wat: line %d: %s has an unsupported immediate", op.line, op.atom)
}

// emitWithImmediates writes the opcode and its immediates, reading them from
// the leading atoms of items. It returns how many items were consumed.
func (c *funcCtx) emitWithImmediates(op *node, info opInfo, items []*node) (int, error) {
	consumed, err := c.countImmediates(op, info, items)
	if err != nil {
		return 0, err
	}
	imms := items[:consumed]

	c.w.byte(info.code)
	switch info.imm {
	case immNone:
	case immMemory:
		c.w.byte(0x00)
	case immLabel:
		depth, err := c.labelDepth(imms[0])
		if err != nil {
			return 0, err
		}
		c.w.u32(depth)
	case immFunc:
		idx, err := c.m.resolveIdx(imms[0], c.m.funcNames, c.m.funcCount(), "function")
		if err != nil {
			return 0, err
		}
		c.w.u32(uint32(idx))
	case immLocal:
		idx, err := c.localIdx(imms[0])
		if err != nil {
			return 0, err
		}
		c.w.u32(uint32(idx))
	case immGlobal:
		idx, err := c.m.resolveIdx(imms[0], c.m.globalNames, c.m.globalCount(), "global")
		if err != nil {
			return 0, err
		}
		c.w.u32(uint32(idx))
	case immMemarg:
		if err := c.writeMemarg(imms, info.align, op.line); err != nil {
			return 0, err
		}
	case immI32:
		v, err := parseI32(imms[0].atom)
		if err != nil {
			return 0, fmt.Errorf("wat: line %d: %v", op.line, err)
		}
		c.w.s32(v)
	case immI64:
		v, err := parseI64(imms[0].atom)
		if err != nil {
			return 0, fmt.Errorf("wat: line %d: %v", op.line, err)
		}
		c.w.s64(v)
	case immF32:
		v, err := parseFloat(imms[0].atom, 32)
		if err != nil {
			return 0, fmt.Errorf("wat: line %d: %v", op.line, err)
		}
		c.w.f32(float32(v))
	case immF64:
		v, err := parseFloat(imms[0].atom, 64)
		if err != nil {
			return 0, fmt.Errorf("wat: line %d: %v", op.line, err)
		}
		c.w.f64(v)
	}
	return consumed, nil
}

func (c *funcCtx) labelDepth(n *node) (uint32, error) {
	if strings.HasPrefix(n.atom, "$") {
		for depth := 0; depth < len(c.labels); depth++ {
			if c.labels[len(c.labels)-1-depth] == n.atom {
				return uint32(depth), nil
			}
		}
		return 0, fmt.Errorf("wat: line %d: unknown label %s", n.line, n.atom)
	}
	depth, err := strconv.ParseUint(n.atom, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("wat: line %d: bad label index %q", n.line, n.atom)
	}
	return uint32(depth), nil
}

func (c *funcCtx) localIdx(n *node) (int, error) {
	if strings.HasPrefix(n.atom, "$") {
		idx, ok := c.locals[n.atom]
		if !ok {
			return 0, fmt.Errorf("wat: line %d: unknown local %s", n.line, n.atom)
		}
		return idx, nil
	}
	idx, err := strconv.Atoi(n.atom)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("wat: line %d: bad local index %q", n.line, n.atom)
	}
	return idx, nil
}

func (c *funcCtx) writeMemarg(imms []*node, natural byte, line int) error {
	var offset uint64
	align := uint32(natural)
	for _, imm := range imms {
		switch {
		case strings.HasPrefix(imm.atom, "offset="):
			v, err := strconv.ParseUint(strings.TrimPrefix(imm.atom, "offset="), 0, 32)
			if err != nil {
				return fmt.Errorf("wat: line %d: bad offset %q", line, imm.atom)
			}
			offset = v
		case strings.HasPrefix(imm.atom, "align="):
			v, err := strconv.ParseUint(strings.TrimPrefix(imm.atom, "align="), 0, 32)
			if err != nil || (v&(v-1)) != 0 || v == 0 {
				return fmt.Errorf("wat: line %d: alignment must be a power of two", line)
			}
			align = log2(uint32(v))
		}
	}
	c.w.u32(align)
	c.w.u32(uint32(offset))
	return nil
}

func log2(v uint32) uint32 {
	var n uint32
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func parseFloat(s string, bits int) (float64, error) {
	clean := strings.ReplaceAll(s, "_", "")
	switch clean {
	case "inf":
		clean = "+Inf"
	case "-inf":
		clean = "-Inf"
	case "nan", "+nan":
		clean = "NaN"
	case "-nan":
		clean = "-NaN"
	}
	v, err := strconv.ParseFloat(clean, bits)
	if err != nil {
		return 0, fmt.Errorf("bad float constant %q", s)
	}
	return v, nil
}
