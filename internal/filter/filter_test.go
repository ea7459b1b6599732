package filter

import (
	"errors"
	"testing"

	"resource-tracker/internal/apperr"
	"resource-tracker/internal/resource"
)

func ref(name string, id uint64, ranking int, props map[string]string) *resource.Reference {
	return resource.NewReference(id, name, ranking, props)
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"   ",
		"name=cache",    // missing parentheses
		"(name=cache",   // unclosed
		"(name=cache))", // trailing input
		"(=cache)",      // empty key
		"(name)",        // no operator
		"(&)",           // composite without operands
		"(!(name=a)(name=b))", // not takes one operand, second is trailing
		"(name>cache)",        // bare > is not an operator
		"(name=ca(che)",       // unescaped parenthesis in value
		"(name=cache\\",       // dangling escape
		"(ranking>=5*)",       // wildcard outside equality
	}
	for _, expr := range tests {
		if _, err := Parse(expr); !errors.Is(err, apperr.ErrInvalidCriterion) {
			t.Errorf("Parse(%q): expected ErrInvalidCriterion, got %v", expr, err)
		}
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	r := ref("cache", 7, 5, map[string]string{
		"zone":    "eu-west",
		"version": "1.4.2",
		"empty":   "",
	})

	tests := []struct {
		expr string
		want bool
	}{
		{"(name=cache)", true},
		{"(name=db)", false},
		{"(id=7)", true},
		{"(ranking>=5)", true},
		{"(ranking>=6)", false},
		{"(ranking<=5)", true},
		{"(ranking<=4)", false},
		{"(ranking>=05)", true}, // numeric, not lexicographic
		{"(zone=eu-west)", true},
		{"(zone=*)", true},       // presence
		{"(missing=*)", false},   // absent attribute
		{"(empty=)", true},       // empty value equality
		{"(zone=eu*)", true},     // prefix
		{"(zone=*west)", true},   // suffix
		{"(zone=eu*west)", true}, // both ends
		{"(zone=*u-w*)", true},   // infix
		{"(zone=eu*east)", false},
		{"(version=1.*)", true},
		{"(version=1.*.2)", true},
		{"(version=2.*)", false},
		{"(&(name=cache)(ranking>=5))", true},
		{"(&(name=cache)(ranking>=6))", false},
		{"(|(name=db)(name=cache))", true},
		{"(|(name=db)(name=queue))", false},
		{"(!(name=db))", true},
		{"(!(name=cache))", false},
		{"(&(|(zone=eu-west)(zone=us-east))(!(version=2.*)))", true},
		{" ( name = cache ) ", false}, // spaces inside the value are literal
	}
	for _, tt := range tests {
		f, err := Parse(tt.expr)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.expr, err)
			continue
		}
		if got := f.Match(r); got != tt.want {
			t.Errorf("%q.Match = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestMatch_SpacesAroundKey(t *testing.T) {
	t.Parallel()

	f, err := Parse("( name =cache)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Match(ref("cache", 1, 0, nil)) {
		t.Errorf("expected key to be trimmed")
	}
}

func TestMatch_NilReference(t *testing.T) {
	t.Parallel()

	f, err := Parse("(name=cache)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Match(nil) {
		t.Errorf("nil reference must never match")
	}
}

func TestForName(t *testing.T) {
	t.Parallel()

	f, err := ForName("we(ird)*name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Match(ref("we(ird)*name", 1, 0, nil)) {
		t.Errorf("escaped name must match itself")
	}
	if f.Match(ref("weird-name", 2, 0, nil)) {
		t.Errorf("escaped name must not match others")
	}

	if _, err := ForName(""); !errors.Is(err, apperr.ErrInvalidCriterion) {
		t.Errorf("empty name: expected ErrInvalidCriterion, got %v", err)
	}
}

func TestForReference(t *testing.T) {
	t.Parallel()

	target := ref("svc", 9, 0, nil)
	f, err := ForReference(target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Match(target) {
		t.Errorf("expected the fixed reference to match")
	}
	if f.Match(ref("svc", 10, 0, nil)) {
		t.Errorf("expected other registrations not to match")
	}

	if _, err := ForReference(nil); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("nil reference: expected ErrInvalidArgument, got %v", err)
	}
}
