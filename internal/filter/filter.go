// Package filter implements the selection criterion used to decide which
// resources a tracker cares about.
//
// Criteria use an LDAP-style prefix syntax over reference attributes:
//
//	(name=cache)
//	(&(name=cache)(ranking>=5))
//	(|(zone=eu)(zone=us))
//	(!(deprecated=*))
//	(version=1.*)
//
// Malformed expressions fail at Parse time with apperr.ErrInvalidCriterion;
// a parsed Filter can never fail to evaluate.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"resource-tracker/internal/apperr"
	"resource-tracker/internal/resource"
)

// Filter is a parsed, immutable selection criterion.
type Filter struct {
	expr string
	root node
}

// Parse builds a Filter from an expression. Errors wrap
// apperr.ErrInvalidCriterion.
func Parse(expr string) (*Filter, error) {
	p := &parser{input: strings.TrimSpace(expr)}
	if p.input == "" {
		return nil, fmt.Errorf("%w: empty expression", apperr.ErrInvalidCriterion)
	}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("%w: trailing input at offset %d in %q",
			apperr.ErrInvalidCriterion, p.pos, p.input)
	}
	return &Filter{expr: p.input, root: root}, nil
}

// ForName builds the fixed-category criterion (name=<name>). The name is
// escaped, so any registrable category yields a valid filter.
func ForName(name string) (*Filter, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", apperr.ErrInvalidCriterion)
	}
	return Parse("(name=" + Escape(name) + ")")
}

// ForReference builds the fixed single-reference criterion (id=<id>).
func ForReference(ref *resource.Reference) (*Filter, error) {
	if ref == nil {
		return nil, fmt.Errorf("%w: nil reference", apperr.ErrInvalidArgument)
	}
	return Parse(fmt.Sprintf("(id=%d)", ref.ID))
}

// Escape backslash-escapes the characters that are significant in filter
// values: parentheses, asterisk and backslash.
func Escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '*', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Match reports whether ref satisfies the criterion.
func (f *Filter) Match(ref *resource.Reference) bool {
	if ref == nil {
		return false
	}
	return f.root.match(ref)
}

func (f *Filter) String() string { return f.expr }

type node interface {
	match(ref *resource.Reference) bool
}

type andNode struct{ children []node }

func (n andNode) match(ref *resource.Reference) bool {
	for _, c := range n.children {
		if !c.match(ref) {
			return false
		}
	}
	return true
}

type orNode struct{ children []node }

func (n orNode) match(ref *resource.Reference) bool {
	for _, c := range n.children {
		if c.match(ref) {
			return true
		}
	}
	return false
}

type notNode struct{ child node }

func (n notNode) match(ref *resource.Reference) bool {
	return !n.child.match(ref)
}

type presentNode struct{ key string }

func (n presentNode) match(ref *resource.Reference) bool {
	_, ok := ref.Attribute(n.key)
	return ok
}

const (
	opEqual = iota
	opGreaterEqual
	opLessEqual
)

type compareNode struct {
	key   string
	op    int
	value string
}

func (n compareNode) match(ref *resource.Reference) bool {
	got, ok := ref.Attribute(n.key)
	if !ok {
		return false
	}
	switch n.op {
	case opEqual:
		return got == n.value
	case opGreaterEqual:
		return compareValues(got, n.value) >= 0
	default:
		return compareValues(got, n.value) <= 0
	}
}

// compareValues compares numerically when both sides are integers,
// lexicographically otherwise.
func compareValues(a, b string) int {
	ia, errA := strconv.ParseInt(a, 10, 64)
	ib, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

type substringNode struct {
	key   string
	parts []string // literal segments; gaps between them match any text
}

func (n substringNode) match(ref *resource.Reference) bool {
	got, ok := ref.Attribute(n.key)
	if !ok {
		return false
	}
	parts := n.parts // always at least two segments, split on '*'
	s := got
	if first := parts[0]; first != "" {
		if !strings.HasPrefix(s, first) {
			return false
		}
		s = s[len(first):]
	}
	if last := parts[len(parts)-1]; last != "" {
		if !strings.HasSuffix(s, last) {
			return false
		}
		s = s[:len(s)-len(last)]
	}
	for _, p := range parts[1 : len(parts)-1] {
		if p == "" {
			continue
		}
		idx := strings.Index(s, p)
		if idx < 0 {
			return false
		}
		s = s[idx+len(p):]
	}
	return true
}
