package sql

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/preslavrachev/gom/core"
)

// Dialect implements core.Dialect for one family of backends
type Dialect struct {
	name      string
	bindType  int
	types     map[core.PropertyType]string
	autoPK    string
	returning bool
}

var (
	// SQLite is the dialect of both SQLite drivers
	SQLite = &Dialect{
		name:     "sqlite",
		bindType: sqlx.QUESTION,
		types: map[core.PropertyType]string{
			core.TypeInt64:     "INTEGER",
			core.TypeFloat64:   "REAL",
			core.TypeString:    "TEXT",
			core.TypeBool:      "INTEGER",
			core.TypeBlob:      "BLOB",
			core.TypeTimestamp: "TIMESTAMP",
		},
		autoPK: "%s INTEGER PRIMARY KEY AUTOINCREMENT",
	}

	// Postgres is the dialect of both PostgreSQL drivers
	Postgres = &Dialect{
		name:     "postgres",
		bindType: sqlx.DOLLAR,
		types: map[core.PropertyType]string{
			core.TypeInt64:     "BIGINT",
			core.TypeFloat64:   "DOUBLE PRECISION",
			core.TypeString:    "TEXT",
			core.TypeBool:      "BOOLEAN",
			core.TypeBlob:      "BYTEA",
			core.TypeTimestamp: "TIMESTAMPTZ",
		},
		autoPK:    "%s BIGSERIAL PRIMARY KEY",
		returning: true,
	}
)

// Name implements core.Dialect
func (d *Dialect) Name() string {
	return d.name
}

// ColumnType implements core.Dialect
func (d *Dialect) ColumnType(pt core.PropertyType) string {
	if t, ok := d.types[pt]; ok {
		return t
	}
	return "TEXT"
}

// PrimaryKeyColumn implements core.Dialect
func (d *Dialect) PrimaryKeyColumn(column string, pt core.PropertyType, autoIncrement bool) string {
	if autoIncrement {
		return fmt.Sprintf(d.autoPK, column)
	}
	return fmt.Sprintf("%s %s PRIMARY KEY NOT NULL", column, d.ColumnType(pt))
}

// Returning implements core.Dialect
func (d *Dialect) Returning(column string) string {
	if !d.returning {
		return ""
	}
	return "RETURNING " + column
}

// Rebind converts "?" placeholders into the dialect's bind style
func (d *Dialect) Rebind(query string) string {
	return sqlx.Rebind(d.bindType, query)
}

// driver describes a registered database/sql driver
type driver struct {
	dialect  *Dialect
	classify func(err error) core.ErrorCode
}

var drivers = map[string]driver{
	"sqlite3":  {dialect: SQLite, classify: classifyMattn},
	"sqlite":   {dialect: SQLite, classify: classifyModernc},
	"pgx":      {dialect: Postgres, classify: classifyPgx},
	"postgres": {dialect: Postgres, classify: classifyPq},
}

// Drivers returns the supported driver names
func Drivers() []string {
	return []string{"sqlite3", "sqlite", "pgx", "postgres"}
}

func lookupDriver(name string) (driver, bool) {
	d, ok := drivers[name]
	return d, ok
}
