package core

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func itemType(t *testing.T) *ResourceType {
	t.Helper()
	rt, err := NewResourceType("Item").
		PrimaryKey("id", TypeInt64).
		Property("name", TypeString, &PropertyConfig{NotNull: true}).
		Property("price", TypeFloat64).
		Property("active", TypeBool).
		WithProperty("label", TypeString, func(p *PropertyBuilder) {
			p.Column("item_label")
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return rt
}

func TestFilterCompile(t *testing.T) {
	rt := itemType(t)

	tests := []struct {
		name     string
		filter   *Filter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "nil filter",
			filter:   nil,
			wantSQL:  "",
			wantArgs: nil,
		},
		{
			name:     "equality",
			filter:   Eq("name", "item1"),
			wantSQL:  `"name" = ?`,
			wantArgs: []any{"item1"},
		},
		{
			name:     "literal is converted to the property type",
			filter:   Gt("price", 10),
			wantSQL:  `"price" > ?`,
			wantArgs: []any{float64(10)},
		},
		{
			name:     "fractional literal on an integer property is not truncated",
			filter:   Lt("id", 2.5),
			wantSQL:  `"id" < ?`,
			wantArgs: []any{2.5},
		},
		{
			name:     "whole float literal on an integer property",
			filter:   Ge("id", 3.0),
			wantSQL:  `"id" >= ?`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "column override",
			filter:   Ne("label", "x"),
			wantSQL:  `"item_label" != ?`,
			wantArgs: []any{"x"},
		},
		{
			name:     "nil literal",
			filter:   Eq("label", nil),
			wantSQL:  `"item_label" IS NULL`,
			wantArgs: nil,
		},
		{
			name:     "nil literal not equal",
			filter:   Ne("price", nil),
			wantSQL:  `"price" IS NOT NULL`,
			wantArgs: nil,
		},
		{
			name:     "like keeps the pattern",
			filter:   Like("name", "item%"),
			wantSQL:  `"name" LIKE ?`,
			wantArgs: []any{"item%"},
		},
		{
			name:     "and",
			filter:   And(Eq("name", "a"), Le("price", 2.5)),
			wantSQL:  `("name" = ? AND "price" <= ?)`,
			wantArgs: []any{"a", 2.5},
		},
		{
			name:     "nested or keeps parameter order",
			filter:   Or(And(Eq("name", "a"), Eq("active", true)), Lt("id", 3)),
			wantSQL:  `(("name" = ? AND "active" = ?) OR "id" < ?)`,
			wantArgs: []any{"a", true, int64(3)},
		},
		{
			name:     "and all",
			filter:   AndAll(Eq("name", "a"), Ge("id", 1), Le("id", 9)),
			wantSQL:  `(("name" = ? AND "id" >= ?) AND "id" <= ?)`,
			wantArgs: []any{"a", int64(1), int64(9)},
		},
		{
			name:     "raw",
			filter:   And(Raw("length(name) > ?", 3), Eq("active", false)),
			wantSQL:  `(length(name) > ? AND "active" = ?)`,
			wantArgs: []any{3, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.filter.Compile(rt)
			if err != nil {
				t.Fatalf("Compile() failed: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("Expected SQL %q, got %q", tt.wantSQL, sql)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("Expected args %#v, got %#v", tt.wantArgs, args)
			}
		})
	}
}

func TestFilterCompileErrors(t *testing.T) {
	rt := itemType(t)

	tests := []struct {
		name   string
		filter *Filter
		want   error
	}{
		{"unknown property", Eq("missing", 1), ErrUnknownProperty},
		{"unknown property in nested node", Or(Eq("name", "a"), And(Eq("id", 1), Eq("nope", 2))), ErrUnknownProperty},
		{"column name is not a property name", Eq("item_label", "x"), ErrUnknownProperty},
		{"bad operator", Compare("name", Operator("~"), "a"), ErrInvalid},
		{"unconvertible literal", Eq("id", "not a number"), ErrInvalid},
		{"overflowing literal", Eq("id", uint64(math.MaxUint64)), ErrInvalid},
		{"nil operand", And(Eq("name", "a"), nil), ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.filter.Compile(rt)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFilterIsReusable(t *testing.T) {
	rt := itemType(t)
	f := And(Eq("name", "a"), Gt("id", 1))

	first, _, _ := f.Compile(rt)
	second, _, _ := f.Compile(rt)
	if first != second {
		t.Errorf("Expected repeated compilation to match, got %q and %q", first, second)
	}
}

func TestFilterString(t *testing.T) {
	f := Or(Eq("name", "a"), Gt("id", 2))
	if got := f.String(); got != "(name = a OR id > 2)" {
		t.Errorf("Unexpected string form %q", got)
	}
	var none *Filter
	if got := none.String(); got != "<all>" {
		t.Errorf("Expected <all> for nil filter, got %q", got)
	}
}
