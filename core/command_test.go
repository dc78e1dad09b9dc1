package core

import (
	"reflect"
	"strings"
	"testing"
)

// testDialect mirrors the SQLite dialect of the sql adapter
type testDialect struct{}

func (testDialect) Name() string { return "test" }

func (testDialect) ColumnType(pt PropertyType) string {
	switch pt {
	case TypeInt64, TypeBool:
		return "INTEGER"
	case TypeFloat64:
		return "REAL"
	case TypeBlob:
		return "BLOB"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d testDialect) PrimaryKeyColumn(column string, pt PropertyType, autoIncrement bool) string {
	if autoIncrement {
		return column + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return column + " " + d.ColumnType(pt) + " PRIMARY KEY NOT NULL"
}

func (testDialect) Returning(string) string { return "" }

func TestCreateTableStatement(t *testing.T) {
	rt := NewResourceType("Post").
		PrimaryKey("id", TypeInt64).
		Property("title", TypeString, &PropertyConfig{NotNull: true, Unique: true}).
		Property("draft", TypeBool, &PropertyConfig{DefaultVal: true}).
		WithProperty("author_id", TypeInt64, func(p *PropertyBuilder) { p.References("users", "id") }).
		Property("views", TypeInt64, &PropertyConfig{NewInVersion: 2, DefaultVal: 0}).
		MustBuild()

	got, err := createTableStatement(rt, testDialect{}, 1)
	if err != nil {
		t.Fatalf("createTableStatement() failed: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "posts" (` +
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT, ` +
		`"title" TEXT NOT NULL UNIQUE, ` +
		`"draft" INTEGER DEFAULT 1, ` +
		`"author_id" INTEGER REFERENCES "users"("id"))`
	if got != want {
		t.Errorf("Expected\n%s\ngot\n%s", want, got)
	}

	views, _ := rt.Property("views")
	alter, err := addColumnStatement(rt, &views, testDialect{})
	if err != nil {
		t.Fatalf("addColumnStatement() failed: %v", err)
	}
	if alter != `ALTER TABLE "posts" ADD COLUMN "views" INTEGER DEFAULT 0` {
		t.Errorf("Unexpected ALTER statement %s", alter)
	}

	all, _ := createTableStatement(rt, testDialect{}, 2)
	if !strings.Contains(all, `"views" INTEGER DEFAULT 0`) {
		t.Errorf("Table created at version 2 should include views: %s", all)
	}
}

func TestInsertStatement(t *testing.T) {
	rt := itemType(t)

	query, args, generated, err := insertStatement(rt, testDialect{}, map[string]any{"name": "a", "price": 2.0})
	if err != nil {
		t.Fatalf("insertStatement() failed: %v", err)
	}
	if query != `INSERT INTO "items" ("name", "price") VALUES (?, ?)` {
		t.Errorf("Unexpected insert %s", query)
	}
	if !reflect.DeepEqual(args, []any{"a", 2.0}) {
		t.Errorf("Unexpected args %v", args)
	}
	if generated != nil {
		t.Errorf("Auto-increment key should not be generated locally, got %v", generated)
	}

	empty, _, _, _ := insertStatement(rt, testDialect{}, map[string]any{})
	if empty != `INSERT INTO "items" DEFAULT VALUES` {
		t.Errorf("Unexpected insert without values %s", empty)
	}
}

func TestInsertStatementUUIDKey(t *testing.T) {
	rt := NewResourceType("Session").PrimaryKey("token", TypeString).Property("user", TypeString).MustBuild()

	values := map[string]any{"user": "bob"}
	query, args, generated, err := insertStatement(rt, testDialect{}, values)
	if err != nil {
		t.Fatalf("insertStatement() failed: %v", err)
	}
	key, ok := generated.(string)
	if !ok || len(key) != 36 {
		t.Fatalf("Expected a generated UUID, got %#v", generated)
	}
	if query != `INSERT INTO "sessions" ("token", "user") VALUES (?, ?)` {
		t.Errorf("Unexpected insert %s", query)
	}
	if args[0] != key || values["token"] != key {
		t.Errorf("Generated key should be bound and recorded, got %v", args)
	}
}

func TestUpdateStatement(t *testing.T) {
	rt := itemType(t)
	values := map[string]any{"id": int64(4), "name": "b", "price": 1.0}

	query, args, err := updateStatement(rt, values, map[string]struct{}{"name": {}})
	if err != nil {
		t.Fatalf("updateStatement() failed: %v", err)
	}
	if query != `UPDATE "items" SET "name" = ? WHERE "id" = ?` {
		t.Errorf("Unexpected update %s", query)
	}
	if !reflect.DeepEqual(args, []any{"b", int64(4)}) {
		t.Errorf("Unexpected args %v", args)
	}

	none, _, _ := updateStatement(rt, values, map[string]struct{}{})
	if none != "" {
		t.Errorf("Expected no statement without dirty properties, got %s", none)
	}
}

func TestSelectAndCountStatements(t *testing.T) {
	rt := itemType(t)

	query, args, err := selectStatement(rt, Eq("name", "a"), SortBy(rt, "price", SortDesc), 10, 20)
	if err != nil {
		t.Fatalf("selectStatement() failed: %v", err)
	}
	want := `SELECT "id", "name", "price", "active", "item_label" FROM "items" WHERE "name" = ? ORDER BY "price" DESC, "id" ASC LIMIT ? OFFSET ?`
	if query != want {
		t.Errorf("Expected\n%s\ngot\n%s", want, query)
	}
	if !reflect.DeepEqual(args, []any{"a", 10, 20}) {
		t.Errorf("Unexpected args %v", args)
	}

	count, _, _ := countStatement(rt, nil)
	if count != `SELECT COUNT(*) FROM "items"` {
		t.Errorf("Unexpected count %s", count)
	}
}

func TestDecodeRow(t *testing.T) {
	rt := itemType(t)
	values, err := decodeRow(rt, []any{int64(1), []byte("widget"), "2.5", int64(1), nil})
	if err != nil {
		t.Fatalf("decodeRow() failed: %v", err)
	}
	want := map[string]any{"id": int64(1), "name": "widget", "price": 2.5, "active": true}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("Expected %v, got %v", want, values)
	}
}
