package store

import (
	"fmt"
	"regexp"
	"strings"
)

// Op is a comparison operator in a predicate leaf.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpGt Op = ">"
	OpGe Op = ">="
	OpLt Op = "<"
	OpLe Op = "<="
)

type conjunction string

const (
	conjAnd conjunction = "AND"
	conjOr  conjunction = "OR"
)

// Predicate is a boolean expression tree over metadata fields. A predicate
// is either a leaf comparison (field, op, value) or a conjunction of
// children. Backends translate the tree into their own query language; the
// SQLite backend evaluates it in-process.
type Predicate struct {
	field string
	op    Op
	value any

	conj     conjunction
	children []*Predicate
}

// Cond returns a leaf predicate comparing a metadata field against a value.
func Cond(field string, op Op, value any) *Predicate {
	return &Predicate{field: field, op: op, value: value}
}

// And combines predicates so that all of them must hold.
func And(children ...*Predicate) *Predicate {
	return &Predicate{conj: conjAnd, children: children}
}

// Or combines predicates so that at least one of them must hold.
func Or(children ...*Predicate) *Predicate {
	return &Predicate{conj: conjOr, children: children}
}

var validField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the tree for unknown operators, empty branches, and field
// names that cannot be safely embedded in a query.
func (p *Predicate) Validate() error {
	if p.conj != "" {
		if len(p.children) == 0 {
			return fmt.Errorf("%s predicate has no children", p.conj)
		}
		for _, c := range p.children {
			if err := c.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if !validField.MatchString(p.field) {
		return fmt.Errorf("invalid predicate field %q", p.field)
	}
	switch p.op {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		return nil
	default:
		return fmt.Errorf("unknown predicate operator %q", p.op)
	}
}

// Matches evaluates the tree against a record's metadata. Missing fields
// never match. Numeric values compare numerically, everything else compares
// as strings.
func (p *Predicate) Matches(metadata map[string]any) bool {
	if p.conj == conjAnd {
		for _, c := range p.children {
			if !c.Matches(metadata) {
				return false
			}
		}
		return len(p.children) > 0
	}
	if p.conj == conjOr {
		for _, c := range p.children {
			if c.Matches(metadata) {
				return true
			}
		}
		return false
	}

	got, ok := metadata[p.field]
	if !ok {
		return false
	}
	return compare(got, p.value, p.op)
}

func compare(a, b any, op Op) bool {
	if fa, aok := asFloat(a); aok {
		if fb, bok := asFloat(b); bok {
			return compareOrdered(fa, fb, op)
		}
	}
	return compareOrdered(fmt.Sprint(a), fmt.Sprint(b), op)
}

func compareOrdered[T float64 | string](a, b T, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// String renders the tree for logs and error messages.
func (p *Predicate) String() string {
	if p.conj != "" {
		parts := make([]string, len(p.children))
		for i, c := range p.children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+string(p.conj)+" ") + ")"
	}
	return fmt.Sprintf("%s %s %v", p.field, p.op, p.value)
}
