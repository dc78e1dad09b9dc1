package core

import (
	"fmt"
	"math"
	"strings"
)

// Operator is a comparison operator usable in a Filter
type Operator string

const (
	OpEq   Operator = "="
	OpNe   Operator = "!="
	OpLt   Operator = "<"
	OpLe   Operator = "<="
	OpGt   Operator = ">"
	OpGe   Operator = ">="
	OpLike Operator = "LIKE"
	OpGlob Operator = "GLOB"
)

// IsValid checks if the operator is supported
func (op Operator) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpLike, OpGlob:
		return true
	}
	return false
}

type filterKind int

const (
	filterComparison filterKind = iota
	filterAnd
	filterOr
	filterRaw
)

// Filter is an immutable predicate tree over the properties of a resource
// type. Filters are built once and can be shared between queries and
// goroutines.
type Filter struct {
	kind     filterKind
	property string
	op       Operator
	literal  any
	left     *Filter
	right    *Filter
	sql      string
	args     []any
}

// Compare creates a comparison filter "<property> <op> literal". A nil
// literal with OpEq or OpNe compiles to IS NULL or IS NOT NULL.
func Compare(property string, op Operator, literal any) *Filter {
	return &Filter{kind: filterComparison, property: property, op: op, literal: literal}
}

// Eq creates a filter requiring property = literal
func Eq(property string, literal any) *Filter { return Compare(property, OpEq, literal) }

// Ne creates a filter requiring property != literal
func Ne(property string, literal any) *Filter { return Compare(property, OpNe, literal) }

// Lt creates a filter requiring property < literal
func Lt(property string, literal any) *Filter { return Compare(property, OpLt, literal) }

// Le creates a filter requiring property <= literal
func Le(property string, literal any) *Filter { return Compare(property, OpLe, literal) }

// Gt creates a filter requiring property > literal
func Gt(property string, literal any) *Filter { return Compare(property, OpGt, literal) }

// Ge creates a filter requiring property >= literal
func Ge(property string, literal any) *Filter { return Compare(property, OpGe, literal) }

// Like creates a filter matching property against a LIKE pattern
func Like(property string, pattern string) *Filter { return Compare(property, OpLike, pattern) }

// Glob creates a filter matching property against a GLOB pattern (SQLite only)
func Glob(property string, pattern string) *Filter { return Compare(property, OpGlob, pattern) }

// And creates a filter requiring both left and right to hold
func And(left, right *Filter) *Filter {
	return &Filter{kind: filterAnd, left: left, right: right}
}

// Or creates a filter requiring left or right to hold
func Or(left, right *Filter) *Filter {
	return &Filter{kind: filterOr, left: left, right: right}
}

// AndAll folds the filters with And, left to right
func AndAll(first *Filter, rest ...*Filter) *Filter {
	f := first
	for _, r := range rest {
		f = And(f, r)
	}
	return f
}

// OrAll folds the filters with Or, left to right
func OrAll(first *Filter, rest ...*Filter) *Filter {
	f := first
	for _, r := range rest {
		f = Or(f, r)
	}
	return f
}

// Raw creates a filter from a SQL fragment with "?" placeholders. The
// fragment is used as is and is not checked against the resource type.
func Raw(sql string, args ...any) *Filter {
	copied := make([]any, len(args))
	copy(copied, args)
	return &Filter{kind: filterRaw, sql: sql, args: copied}
}

// Compile renders the filter as a WHERE fragment for rt together with its
// parameters, in placeholder order. A nil filter compiles to "".
func (f *Filter) Compile(rt *ResourceType) (string, []any, error) {
	if f == nil {
		return "", nil, nil
	}
	var sb strings.Builder
	var args []any
	if err := f.compile(rt, &sb, &args); err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

func (f *Filter) compile(rt *ResourceType, sb *strings.Builder, args *[]any) error {
	if f == nil {
		return Errorf(CodeInvalid, "filter has a nil operand")
	}

	switch f.kind {
	case filterComparison:
		p, err := rt.lookup(f.property)
		if err != nil {
			return err
		}
		if !f.op.IsValid() {
			return Errorf(CodeInvalid, "unsupported filter operator %q", f.op)
		}

		if f.literal == nil {
			switch f.op {
			case OpEq:
				fmt.Fprintf(sb, "%s IS NULL", quoteIdent(p.Column))
				return nil
			case OpNe:
				fmt.Fprintf(sb, "%s IS NOT NULL", quoteIdent(p.Column))
				return nil
			}
		}

		value := f.literal
		if fv, ok := fractional(p, f.literal); ok {
			// bound as is so the backend compares numerically
			value = fv
		} else if f.op != OpLike && f.op != OpGlob {
			v, err := p.toColumn(f.literal)
			if err != nil {
				return NewError(CodeInvalid, fmt.Sprintf("filter literal for %s.%s", rt.name, p.Name), err)
			}
			value = v
		}

		fmt.Fprintf(sb, "%s %s ?", quoteIdent(p.Column), f.op)
		*args = append(*args, value)
		return nil

	case filterAnd, filterOr:
		word := "AND"
		if f.kind == filterOr {
			word = "OR"
		}
		sb.WriteString("(")
		if err := f.left.compile(rt, sb, args); err != nil {
			return err
		}
		fmt.Fprintf(sb, " %s ", word)
		if err := f.right.compile(rt, sb, args); err != nil {
			return err
		}
		sb.WriteString(")")
		return nil

	case filterRaw:
		sb.WriteString(f.sql)
		*args = append(*args, f.args...)
		return nil
	}

	return Errorf(CodeInvalid, "unknown filter kind %d", f.kind)
}

// fractional reports whether literal is a float with a fractional part
// compared against an integer property without a custom transform
func fractional(p *Property, literal any) (float64, bool) {
	if p.Type != TypeInt64 || (p.Transform != nil && p.Transform.ToColumn != nil) {
		return 0, false
	}
	var v float64
	switch n := literal.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	default:
		return 0, false
	}
	return v, v != math.Trunc(v)
}

// String returns a readable form of the filter, for logging
func (f *Filter) String() string {
	if f == nil {
		return "<all>"
	}
	switch f.kind {
	case filterComparison:
		return fmt.Sprintf("%s %s %v", f.property, f.op, f.literal)
	case filterAnd:
		return fmt.Sprintf("(%s AND %s)", f.left, f.right)
	case filterOr:
		return fmt.Sprintf("(%s OR %s)", f.left, f.right)
	default:
		return f.sql
	}
}

// quoteIdent quotes an identifier that has already been validated
func quoteIdent(name string) string {
	return `"` + name + `"`
}
