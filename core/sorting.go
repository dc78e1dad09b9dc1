package core

import (
	"fmt"
	"strings"
)

// SortDirection represents the sort order
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// String returns a string representation of the sort direction
func (sd SortDirection) String() string {
	return string(sd)
}

// IsValid checks if the sort direction is valid
func (sd SortDirection) IsValid() bool {
	return sd == SortAsc || sd == SortDesc
}

// Opposite returns the opposite sort direction
func (sd SortDirection) Opposite() SortDirection {
	if sd == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// SortField is one key of a Sorting
type SortField struct {
	Type      *ResourceType
	Property  string
	Direction SortDirection
}

// Sorting is an ordered list of sort keys. Keys are compiled in the order
// they were added.
type Sorting struct {
	fields []SortField
}

// NewSorting creates an empty Sorting
func NewSorting() *Sorting {
	return &Sorting{}
}

// SortBy creates a Sorting with a single key, panicking if property is not
// mapped on rt. Use it for sort keys known at compile time.
func SortBy(rt *ResourceType, property string, direction SortDirection) *Sorting {
	s := NewSorting()
	if err := s.Add(rt, property, direction); err != nil {
		panic(err)
	}
	return s
}

// Add appends a sort key. The property must be mapped on rt.
func (s *Sorting) Add(rt *ResourceType, property string, direction SortDirection) error {
	if rt == nil {
		return Errorf(CodeInvalid, "sorting on %q has no resource type", property)
	}
	if _, err := rt.lookup(property); err != nil {
		return err
	}
	if !direction.IsValid() {
		return Errorf(CodeInvalid, "invalid sort direction %q", direction)
	}
	s.fields = append(s.fields, SortField{Type: rt, Property: property, Direction: direction})
	return nil
}

// Then is Add for chaining; it panics on an unknown property
func (s *Sorting) Then(rt *ResourceType, property string, direction SortDirection) *Sorting {
	if err := s.Add(rt, property, direction); err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the sort keys
func (s *Sorting) Fields() []SortField {
	if s == nil {
		return nil
	}
	fields := make([]SortField, len(s.fields))
	copy(fields, s.fields)
	return fields
}

// clone returns an independent copy, nil for a nil Sorting
func (s *Sorting) clone() *Sorting {
	if s == nil {
		return nil
	}
	return &Sorting{fields: s.Fields()}
}

// Len returns the number of sort keys
func (s *Sorting) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Compile renders the ORDER BY clause for rt. An empty or nil Sorting
// compiles to "".
func (s *Sorting) Compile(rt *ResourceType) (string, error) {
	terms, err := s.terms(rt)
	if err != nil {
		return "", err
	}
	if len(terms) == 0 {
		return "", nil
	}
	return "ORDER BY " + strings.Join(terms, ", "), nil
}

func (s *Sorting) terms(rt *ResourceType) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	terms := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Type != rt {
			return nil, Errorf(CodeUnknownProperty, "sort key %s.%s does not belong to %s",
				f.Type.Name(), f.Property, rt.Name())
		}
		p, err := rt.lookup(f.Property)
		if err != nil {
			return nil, err
		}
		terms = append(terms, fmt.Sprintf("%s %s", quoteIdent(p.Column), f.Direction))
	}
	return terms, nil
}

// orderWithTiebreak renders ORDER BY with the primary key appended, so rows
// with equal sort keys come back in a stable order across fetches
func (s *Sorting) orderWithTiebreak(rt *ResourceType) (string, error) {
	terms, err := s.terms(rt)
	if err != nil {
		return "", err
	}
	pk := rt.primaryKeyProperty()
	hasPK := false
	for _, f := range s.Fields() {
		if f.Property == pk.Name {
			hasPK = true
			break
		}
	}
	if !hasPK {
		terms = append(terms, fmt.Sprintf("%s %s", quoteIdent(pk.Column), SortAsc))
	}
	return "ORDER BY " + strings.Join(terms, ", "), nil
}
