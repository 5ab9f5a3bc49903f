package wat

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tokLParen tokenType = iota
	tokRParen
	tokAtom   // keywords, numbers, $identifiers
	tokString // quoted, escapes already decoded
)

type token struct {
	value string
	typ   tokenType
	line  int
}

// tokenize splits source into parenthesis, atom and string tokens, dropping
// line (;;) and block (; ;) comments.
func tokenize(input string) ([]token, error) {
	var tokens []token
	line := 1
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';' && i+1 < len(input) && input[i+1] == ';':
			for i < len(input) && input[i] != '\n' {
				i++
			}
		case c == '(' && i+1 < len(input) && input[i+1] == ';':
			depth := 1
			i += 2
			for i < len(input) && depth > 0 {
				if input[i] == '\n' {
					line++
				}
				if input[i] == '(' && i+1 < len(input) && input[i+1] == ';' {
					depth++
					i++
				} else if input[i] == ';' && i+1 < len(input) && input[i+1] == ')' {
					depth--
					i++
				}
				i++
			}
			if depth > 0 {
				return nil, fmt.Errorf("wat: line %d: unterminated block comment", line)
			}
		case c == '(':
			tokens = append(tokens, token{typ: tokLParen, value: "(", line: line})
			i++
		case c == ')':
			tokens = append(tokens, token{typ: tokRParen, value: ")", line: line})
			i++
		case c == '"':
			s, next, err := lexString(input, i, line)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{typ: tokString, value: s, line: line})
			i = next
		default:
			start := i
			for i < len(input) && !isDelim(input[i]) {
				i++
			}
			tokens = append(tokens, token{typ: tokAtom, value: input[start:i], line: line})
		}
	}
	return tokens, nil
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '(', ')', '"', ';':
		return true
	}
	return false
}

// lexString decodes a quoted literal starting at input[start] == '"'.
// Returns the decoded value and the index just past the closing quote.
func lexString(input string, start, line int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch {
		case c == '"':
			return b.String(), i + 1, nil
		case c == '\\':
			if i+1 >= len(input) {
				return "", 0, fmt.Errorf("wat: line %d: unterminated escape", line)
			}
			e := input[i+1]
			switch e {
			case 'n':
				b.WriteByte('\n')
				i += 2
			case 't':
				b.WriteByte('\t')
				i += 2
			case 'r':
				b.WriteByte('\r')
				i += 2
			case '\\', '"', '\'':
				b.WriteByte(e)
				i += 2
			default:
				hi, ok1 := hexVal(e)
				if i+2 >= len(input) {
					return "", 0, fmt.Errorf("wat: line %d: truncated hex escape", line)
				}
				lo, ok2 := hexVal(input[i+2])
				if !ok1 || !ok2 {
					return "", 0, fmt.Errorf("wat: line %d: invalid escape \\%c", line, e)
				}
				b.WriteByte(hi<<4 | lo)
				i += 3
			}
		case c == '\n':
			return "", 0, fmt.Errorf("wat: line %d: newline in string literal", line)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("wat: line %d: unterminated string literal", line)
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// node is one S-expression: either an atom/string leaf or a list.
type node struct {
	atom  string
	str   bool // atom came from a string literal
	list  []*node
	isarr bool // node is a list
	line  int
}

func (n *node) isList() bool { return n.isarr }

// head returns the first atom of a list, or "".
func (n *node) head() string {
	if n.isarr && len(n.list) > 0 && !n.list[0].isarr {
		return n.list[0].atom
	}
	return ""
}

// parseSexpr builds the tree for a single top-level expression.
func parseSexpr(tokens []token) (*node, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("wat: empty source")
	}
	root, rest, err := parseNode(tokens)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("wat: line %d: unexpected tokens after module", rest[0].line)
	}
	return root, nil
}

func parseNode(tokens []token) (*node, []token, error) {
	t := tokens[0]
	switch t.typ {
	case tokAtom:
		return &node{atom: t.value, line: t.line}, tokens[1:], nil
	case tokString:
		return &node{atom: t.value, str: true, line: t.line}, tokens[1:], nil
	case tokRParen:
		return nil, nil, fmt.Errorf("wat: line %d: unexpected ')'", t.line)
	case tokLParen:
		n := &node{isarr: true, line: t.line}
		rest := tokens[1:]
		for {
			if len(rest) == 0 {
				return nil, nil, fmt.Errorf("wat: line %d: missing ')'", t.line)
			}
			if rest[0].typ == tokRParen {
				return n, rest[1:], nil
			}
			child, r, err := parseNode(rest)
			if err != nil {
				return nil, nil, err
			}
			n.list = append(n.list, child)
			rest = r
		}
	}
	return nil, nil, fmt.Errorf("wat: line %d: bad token", t.line)
}
