package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Statement builders. Every statement uses "?" placeholders and quoted,
// pre-validated identifiers.

const versionTable = "_gom_version"

func columnDefinition(p *Property, d Dialect, autoIncrement bool) (string, error) {
	if p.PrimaryKey {
		return d.PrimaryKeyColumn(quoteIdent(p.Column), p.Type, autoIncrement), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", quoteIdent(p.Column), d.ColumnType(p.Type))
	if !p.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if p.Unique {
		sb.WriteString(" UNIQUE")
	}
	if p.DefaultVal != nil {
		lit, err := defaultLiteral(p, d)
		if err != nil {
			return "", err
		}
		sb.WriteString(" DEFAULT " + lit)
	}
	if p.Reference != nil {
		fmt.Fprintf(&sb, " REFERENCES %s(%s)", quoteIdent(p.Reference.Table), quoteIdent(p.Reference.Column))
	}
	return sb.String(), nil
}

func defaultLiteral(p *Property, d Dialect) (string, error) {
	v, err := p.toColumn(p.DefaultVal)
	if err != nil {
		return "", err
	}
	// SQLite stores booleans as integers
	if b, ok := v.(bool); ok && d.ColumnType(TypeBool) != "BOOLEAN" {
		if b {
			return "1", nil
		}
		return "0", nil
	}
	return sqlLiteral(v)
}

// createTableStatement creates the table with every property that exists at
// version
func createTableStatement(rt *ResourceType, d Dialect, version int) (string, error) {
	defs := make([]string, 0, len(rt.properties))
	for _, p := range rt.properties {
		if p.NewInVersion > version {
			continue
		}
		def, err := columnDefinition(p, d, rt.autoIncrement())
		if err != nil {
			return "", fmt.Errorf("column %s.%s: %w", rt.name, p.Name, err)
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(rt.table), strings.Join(defs, ", ")), nil
}

func addColumnStatement(rt *ResourceType, p *Property, d Dialect) (string, error) {
	def, err := columnDefinition(p, d, false)
	if err != nil {
		return "", fmt.Errorf("column %s.%s: %w", rt.name, p.Name, err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(rt.table), def), nil
}

// insertStatement binds every set value. A missing or empty string primary
// key is replaced by a random UUID, returned as generatedKey.
func insertStatement(rt *ResourceType, d Dialect, values map[string]any) (query string, args []any, generatedKey any, err error) {
	pk := rt.primaryKeyProperty()
	if pk.Type == TypeString {
		if s, _ := values[pk.Name].(string); s == "" {
			generatedKey = uuid.NewString()
			values[pk.Name] = generatedKey
		}
	}

	var columns, marks []string
	for _, p := range rt.properties {
		v, ok := values[p.Name]
		if !ok || (p.PrimaryKey && v == nil) {
			continue
		}
		bound, err := p.toColumn(v)
		if err != nil {
			return "", nil, nil, NewError(CodeInvalid, fmt.Sprintf("bind %s.%s", rt.name, p.Name), err)
		}
		columns = append(columns, quoteIdent(p.Column))
		marks = append(marks, "?")
		args = append(args, bound)
	}

	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(rt.table))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(rt.table), strings.Join(columns, ", "), strings.Join(marks, ", "))
	}
	if rt.autoIncrement() && generatedKey == nil {
		if ret := d.Returning(quoteIdent(pk.Column)); ret != "" {
			query += " " + ret
		}
	}
	return query, args, generatedKey, nil
}

// updateStatement writes only the dirty properties. It returns "" when
// there is nothing to write.
func updateStatement(rt *ResourceType, values map[string]any, dirty map[string]struct{}) (string, []any, error) {
	pk := rt.primaryKeyProperty()
	var sets []string
	var args []any
	for _, p := range rt.properties {
		if p.PrimaryKey {
			continue
		}
		if _, ok := dirty[p.Name]; !ok {
			continue
		}
		bound, err := p.toColumn(values[p.Name])
		if err != nil {
			return "", nil, NewError(CodeInvalid, fmt.Sprintf("bind %s.%s", rt.name, p.Name), err)
		}
		sets = append(sets, quoteIdent(p.Column)+" = ?")
		args = append(args, bound)
	}
	if len(sets) == 0 {
		return "", nil, nil
	}
	key, err := pk.toColumn(values[pk.Name])
	if err != nil {
		return "", nil, NewError(CodeInvalid, "bind primary key", err)
	}
	args = append(args, key)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(rt.table), strings.Join(sets, ", "), quoteIdent(pk.Column))
	return query, args, nil
}

func deleteStatement(rt *ResourceType, key any) (string, []any, error) {
	pk := rt.primaryKeyProperty()
	bound, err := pk.toColumn(key)
	if err != nil {
		return "", nil, NewError(CodeInvalid, "bind primary key", err)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(rt.table), quoteIdent(pk.Column)), []any{bound}, nil
}

func selectColumns(rt *ResourceType) string {
	cols := make([]string, len(rt.properties))
	for i, p := range rt.properties {
		cols[i] = quoteIdent(p.Column)
	}
	return strings.Join(cols, ", ")
}

// selectStatement reads a window of rows in a stable order
func selectStatement(rt *ResourceType, filter *Filter, sorting *Sorting, limit, offset int) (string, []any, error) {
	where, args, err := filter.Compile(rt)
	if err != nil {
		return "", nil, err
	}
	order, err := sorting.orderWithTiebreak(rt)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectColumns(rt), quoteIdent(rt.table))
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	sb.WriteString(" " + order)
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, offset)
	return sb.String(), args, nil
}

func countStatement(rt *ResourceType, filter *Filter) (string, []any, error) {
	where, args, err := filter.Compile(rt)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(rt.table))
	if where != "" {
		query += " WHERE " + where
	}
	return query, args, nil
}

// decodeRow converts a row selected with selectColumns into property values
func decodeRow(rt *ResourceType, row []any) (map[string]any, error) {
	values := make(map[string]any, len(rt.properties))
	for i, p := range rt.properties {
		if i >= len(row) {
			break
		}
		v, err := p.fromColumn(row[i])
		if err != nil {
			return nil, NewError(CodeQuery, fmt.Sprintf("decode %s.%s", rt.name, p.Name), err)
		}
		if v != nil {
			values[p.Name] = v
		}
	}
	return values, nil
}

func toInt64(v any) (int64, error) {
	i, err := coerce(TypeInt64, v)
	if err != nil {
		return 0, err
	}
	return i.(int64), nil
}
