package core

import (
	"context"
	"fmt"
)

// Migrator applies one schema step. The repository calls it once per
// version, inside a transaction that also records the version.
type Migrator interface {
	MigrateStep(ctx context.Context, conn Conn, version int) error
}

// MigratorFunc adapts a function to the Migrator interface
type MigratorFunc func(ctx context.Context, conn Conn, version int) error

// MigrateStep implements Migrator
func (f MigratorFunc) MigrateStep(ctx context.Context, conn Conn, version int) error {
	return f(ctx, conn, version)
}

// SchemaMigrator derives each step from resource type declarations: the
// table is created at the type's since version, and each later version adds
// the columns declared new in it.
type SchemaMigrator struct {
	Types []*ResourceType
}

// MigrateStep implements Migrator
func (m *SchemaMigrator) MigrateStep(ctx context.Context, conn Conn, version int) error {
	d := conn.Dialect()
	for _, rt := range m.Types {
		switch {
		case rt.sinceVersion == version:
			query, err := createTableStatement(rt, d, version)
			if err != nil {
				return err
			}
			if _, err := conn.Exec(ctx, query); err != nil {
				return fmt.Errorf("create table %s: %w", rt.table, err)
			}
		case rt.sinceVersion < version:
			for _, p := range rt.properties {
				if p.NewInVersion != version {
					continue
				}
				query, err := addColumnStatement(rt, p, d)
				if err != nil {
					return err
				}
				if _, err := conn.Exec(ctx, query); err != nil {
					return fmt.Errorf("add column %s.%s: %w", rt.table, p.Column, err)
				}
			}
		}
	}
	return nil
}

// Migrate brings the schema to version using the declarations of types.
// Migrating to the current version does nothing.
func (repo *Repository) Migrate(ctx context.Context, version int, types ...*ResourceType) error {
	_, err := repo.MigrateAsync(version, types...).Wait(ctx)
	return err
}

// MigrateAsync is the non-blocking form of Migrate. The result is the
// schema version after the migration.
func (repo *Repository) MigrateAsync(version int, types ...*ResourceType) *Operation[int] {
	for i, rt := range types {
		if rt == nil {
			return Failed[int](Errorf(CodeInvalid, "migrate: resource type %d is nil", i))
		}
	}
	return repo.MigrateWithAsync(version, &SchemaMigrator{Types: types})
}

// MigrateWith brings the schema to version by running m for every step
// after the current version
func (repo *Repository) MigrateWith(ctx context.Context, version int, m Migrator) error {
	_, err := repo.MigrateWithAsync(version, m).Wait(ctx)
	return err
}

// MigrateWithAsync is the non-blocking form of MigrateWith
func (repo *Repository) MigrateWithAsync(version int, m Migrator) *Operation[int] {
	if m == nil {
		return Failed[int](Errorf(CodeInvalid, "migrate: nil migrator"))
	}
	if version < 1 {
		return Failed[int](Errorf(CodeMigration, "target version %d is below 1", version))
	}

	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) (int, error) {
		current, err := SchemaVersion(ctx, conn)
		if err != nil {
			return 0, err
		}
		if version < current {
			return current, Errorf(CodeMigration, "target version %d is below current version %d", version, current)
		}

		for step := current + 1; step <= version; step++ {
			err := conn.Transact(ctx, func(tx Conn) error {
				if err := m.MigrateStep(ctx, tx, step); err != nil {
					return err
				}
				_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)",
					quoteIdent(versionTable), quoteIdent("version")), step)
				return err
			})
			if err != nil {
				return step - 1, WrapError(err, CodeMigration, fmt.Sprintf("migration step %d", step))
			}
		}
		return version, nil
	})
}

// SchemaVersion creates the version table when missing and returns the
// highest applied version, or 0
func SchemaVersion(ctx context.Context, conn Conn) (int, error) {
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s INTEGER NOT NULL)", quoteIdent(versionTable), quoteIdent("version"))
	if _, err := conn.Exec(ctx, create); err != nil {
		return 0, WrapError(err, CodeMigration, "create version table")
	}

	rs, err := conn.Query(ctx, fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", quoteIdent("version"), quoteIdent(versionTable)))
	if err != nil {
		return 0, WrapError(err, CodeMigration, "read schema version")
	}
	v, err := toInt64(rs.Scalar())
	if err != nil {
		return 0, NewError(CodeMigration, "read schema version", err)
	}
	return int(v), nil
}
