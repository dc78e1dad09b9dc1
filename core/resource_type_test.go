package core

import (
	"errors"
	"testing"
	"time"
)

func TestResourceTypeBuild(t *testing.T) {
	rt := itemType(t)

	if rt.Name() != "Item" {
		t.Errorf("Expected name Item, got %s", rt.Name())
	}
	if rt.TableName() != "items" {
		t.Errorf("Expected table items, got %s", rt.TableName())
	}
	if rt.PrimaryKey() != "id" {
		t.Errorf("Expected primary key id, got %s", rt.PrimaryKey())
	}
	if rt.SinceVersion() != 1 {
		t.Errorf("Expected since version 1, got %d", rt.SinceVersion())
	}

	props := rt.Properties()
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	want := []string{"id", "name", "price", "active", "label"}
	if len(names) != len(want) {
		t.Fatalf("Expected properties %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected property %d to be %s, got %s", i, want[i], names[i])
		}
	}

	name, _ := rt.Property("name")
	if name.Nullable {
		t.Error("name should be NOT NULL")
	}
	price, _ := rt.Property("price")
	if !price.Nullable {
		t.Error("price should be nullable by default")
	}
	label, _ := rt.Property("label")
	if label.Column != "item_label" {
		t.Errorf("Expected column item_label, got %s", label.Column)
	}
	if !rt.autoIncrement() {
		t.Error("int64 primary key should be generated by the backend")
	}
}

func TestResourceTypeBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *ResourceTypeBuilder
	}{
		{"no name", NewResourceType("").Table("t").PrimaryKey("id", TypeInt64)},
		{"no primary key", NewResourceType("Thing")},
		{"float primary key", NewResourceType("Thing").PrimaryKey("id", TypeFloat64)},
		{"bad table name", NewResourceType("Thing").Table("drop table;").PrimaryKey("id", TypeInt64)},
		{"duplicate property", NewResourceType("Thing").PrimaryKey("id", TypeInt64).
			Property("a", TypeString).Property("a", TypeInt64)},
		{"unsupported type", NewResourceType("Thing").PrimaryKey("id", TypeInt64).Property("a", PropertyType(42))},
		{"column added before its table", NewResourceType("Thing").SinceVersion(2).PrimaryKey("id", TypeInt64).
			Property("a", TypeString, &PropertyConfig{NewInVersion: 1})},
		{"shared column", NewResourceType("Thing").PrimaryKey("id", TypeInt64).
			Property("a", TypeString).Property("b", TypeString, &PropertyConfig{Column: "a"})},
		{"bad default", NewResourceType("Thing").PrimaryKey("id", TypeInt64).
			Property("n", TypeInt64, &PropertyConfig{DefaultVal: "many"})},
		{"bad reference", NewResourceType("Thing").PrimaryKey("id", TypeInt64).
			WithProperty("owner", TypeInt64, func(p *PropertyBuilder) { p.References("users;", "id") })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestGenerateTableName(t *testing.T) {
	tests := map[string]string{
		"Item":        "items",
		"Category":    "categories",
		"Box":         "boxes",
		"OrderLine":   "order_lines",
		"Address":     "addresses",
		"SearchMatch": "search_matches",
	}
	for name, want := range tests {
		if got := generateTableName(name); got != want {
			t.Errorf("generateTableName(%q): expected %q, got %q", name, want, got)
		}
	}
}

type discoveredNote struct {
	ID        int64     `db:"id"`
	Title     string    `gom:"notnull,unique"`
	Body      string    `db:"content"`
	Pinned    bool      `gom:"since=2,default=false"`
	Score     float64   `db:"score"`
	CreatedAt time.Time `db:"created_at"`
	Raw       []byte
	Ignored   string `db:"-"`
	private   string
}

func TestDiscoverResourceType(t *testing.T) {
	rt, err := DiscoverResourceType(&discoveredNote{})
	if err != nil {
		t.Fatalf("DiscoverResourceType() failed: %v", err)
	}

	if rt.TableName() != "discovered_notes" {
		t.Errorf("Expected table discovered_notes, got %s", rt.TableName())
	}
	if rt.PrimaryKey() != "id" {
		t.Errorf("Expected primary key id, got %s", rt.PrimaryKey())
	}

	expected := map[string]PropertyType{
		"id":         TypeInt64,
		"title":      TypeString,
		"content":    TypeString,
		"pinned":     TypeBool,
		"score":      TypeFloat64,
		"created_at": TypeTimestamp,
		"raw":        TypeBlob,
	}
	if len(rt.Properties()) != len(expected) {
		t.Fatalf("Expected %d properties, got %d", len(expected), len(rt.Properties()))
	}
	for name, pt := range expected {
		p, ok := rt.Property(name)
		if !ok {
			t.Errorf("Expected property %s", name)
			continue
		}
		if p.Type != pt {
			t.Errorf("Property %s: expected type %s, got %s", name, pt, p.Type)
		}
	}

	title, _ := rt.Property("title")
	if title.Nullable || !title.Unique {
		t.Error("title should be NOT NULL and UNIQUE")
	}
	pinned, _ := rt.Property("pinned")
	if pinned.NewInVersion != 2 {
		t.Errorf("Expected pinned new in version 2, got %d", pinned.NewInVersion)
	}
	if pinned.DefaultVal != false {
		t.Errorf("Expected pinned default false, got %#v", pinned.DefaultVal)
	}
	if rt.HasProperty("ignored") || rt.HasProperty("private") {
		t.Error("Ignored and unexported fields should not be mapped")
	}
}

func TestDiscoverResourceTypeTaggedKey(t *testing.T) {
	type token struct {
		Value string `db:"value" gom:"pk"`
		Owner string
	}
	rt, err := DiscoverResourceType(token{})
	if err != nil {
		t.Fatalf("DiscoverResourceType() failed: %v", err)
	}
	if rt.PrimaryKey() != "value" {
		t.Errorf("Expected primary key value, got %s", rt.PrimaryKey())
	}
	if rt.autoIncrement() {
		t.Error("string primary key should not be generated by the backend")
	}
}

func TestDiscoverResourceTypeRejects(t *testing.T) {
	if _, err := DiscoverResourceType(42); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for a non-struct, got %v", err)
	}
	type noKey struct{ Name string }
	if _, err := DiscoverResourceType(noKey{}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid without a primary key, got %v", err)
	}
	type badField struct {
		ID   int64
		Tags map[string]string
	}
	if _, err := DiscoverResourceType(badField{}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for an unsupported field, got %v", err)
	}

	type badSince struct {
		ID   int64
		Note string `gom:"since=two"`
	}
	type emptySince struct {
		ID   int64
		Note string `gom:"since="`
	}
	type zeroSince struct {
		ID   int64
		Note string `gom:"since=0"`
	}
	for _, model := range []any{badSince{}, emptySince{}, zeroSince{}} {
		if _, err := DiscoverResourceType(model); !errors.Is(err, ErrInvalid) {
			t.Errorf("Expected ErrInvalid for %T, got %v", model, err)
		}
	}
	type goodSince struct {
		ID   int64
		Note string `gom:"since=3"`
	}
	rt, err := DiscoverResourceType(goodSince{})
	if err != nil {
		t.Fatalf("DiscoverResourceType() failed: %v", err)
	}
	if note, _ := rt.Property("note"); note.NewInVersion != 3 {
		t.Errorf("Expected note new in version 3, got %d", note.NewInVersion)
	}
}

func TestPropertyReturnsCopy(t *testing.T) {
	rt := itemType(t)
	p, ok := rt.Property("name")
	if !ok {
		t.Fatal("Expected property name")
	}
	p.Nullable = true
	p.Column = "changed"

	again, _ := rt.Property("name")
	if again.Nullable || again.Column != "name" {
		t.Errorf("Changing the returned property should not change the type, got %+v", again)
	}
	if _, ok := rt.Property("missing"); ok {
		t.Error("Expected no property named missing")
	}
}
