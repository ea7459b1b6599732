package filter

import (
	"fmt"
	"strings"

	"resource-tracker/internal/apperr"
)

// parser is a small recursive-descent parser for the LDAP-style syntax.
// It reports the first error with the offset it occurred at.
type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s at offset %d in %q",
		apperr.ErrInvalidCriterion, detail, p.pos, p.input)
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", string(c))
	}
	p.pos++
	return nil
}

// parse consumes one parenthesized expression.
func (p *parser) parse() (node, error) {
	p.skipSpace()
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpace()

	var (
		n   node
		err error
	)
	switch p.peek() {
	case '&':
		p.pos++
		children, listErr := p.parseList()
		n, err = andNode{children: children}, listErr
	case '|':
		p.pos++
		children, listErr := p.parseList()
		n, err = orNode{children: children}, listErr
	case '!':
		p.pos++
		child, childErr := p.parse()
		n, err = notNode{child: child}, childErr
	case 0:
		return nil, p.errorf("unexpected end of expression")
	default:
		n, err = p.parseComparison()
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return n, nil
}

// parseList consumes the operands of a composite (& or |) operator.
func (p *parser) parseList() ([]node, error) {
	var children []node
	for {
		p.skipSpace()
		if p.peek() != '(' {
			break
		}
		child, err := p.parse()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 0 {
		return nil, p.errorf("composite operator needs at least one operand")
	}
	return children, nil
}

// parseComparison consumes key, operator and value of a simple term.
func (p *parser) parseComparison() (node, error) {
	key, err := p.parseKey()
	if err != nil {
		return nil, err
	}

	op := opEqual
	switch p.peek() {
	case '=':
		p.pos++
	case '>':
		p.pos++
		if err := p.expect('='); err != nil {
			return nil, err
		}
		op = opGreaterEqual
	case '<':
		p.pos++
		if err := p.expect('='); err != nil {
			return nil, err
		}
		op = opLessEqual
	default:
		return nil, p.errorf("expected comparison operator")
	}

	segments, sawStar, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if !sawStar {
		return compareNode{key: key, op: op, value: segments[0]}, nil
	}
	if op != opEqual {
		return nil, p.errorf("wildcard is only valid with =")
	}
	if len(segments) == 2 && segments[0] == "" && segments[1] == "" {
		return presentNode{key: key}, nil
	}
	return substringNode{key: key, parts: segments}, nil
}

func (p *parser) parseKey() (string, error) {
	start := p.pos
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case '=', '<', '>', '(', ')', '~', '*':
			key := strings.TrimSpace(p.input[start:p.pos])
			if key == "" {
				return "", p.errorf("empty attribute key")
			}
			return key, nil
		}
		p.pos++
	}
	return "", p.errorf("unexpected end of expression")
}

// parseValue reads up to the closing parenthesis, splitting literal
// segments on unescaped asterisks. Backslash escapes the next byte.
func (p *parser) parseValue() ([]string, bool, error) {
	var (
		segments []string
		current  strings.Builder
		sawStar  bool
	)
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case ')':
			segments = append(segments, current.String())
			return segments, sawStar, nil
		case '(':
			return nil, false, p.errorf("unescaped parenthesis in value")
		case '*':
			segments = append(segments, current.String())
			current.Reset()
			sawStar = true
			p.pos++
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return nil, false, p.errorf("dangling escape")
			}
			current.WriteByte(p.input[p.pos])
			p.pos++
		default:
			current.WriteByte(c)
			p.pos++
		}
	}
	return nil, false, p.errorf("unexpected end of expression")
}
