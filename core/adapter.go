package core

import "context"

// Adapter defines the interface for backend adapters. An adapter owns a
// single connection and runs queued tasks against it one at a time, in the
// order they were enqueued.
type Adapter interface {
	// Enqueue appends a task to the adapter's queue. It never blocks. If the
	// adapter is closed or not open the task is not queued and an error is
	// returned; the task is left untouched.
	Enqueue(task Task) error

	// Dialect returns the SQL dialect of the connected backend
	Dialect() Dialect

	// Close fails queued tasks with ErrClosed and releases the connection
	Close() error
}

// Task is a unit of work queued on an adapter
type Task interface {
	// Begin moves the task from queued to running. It returns false when the
	// task was cancelled while queued, in which case the adapter skips it.
	Begin() bool

	// Run executes the task. ctx is cancelled when the adapter closes.
	Run(ctx context.Context, conn Conn)

	// Abort completes the task with err without running it
	Abort(err error)
}

// Conn is the view of the backend connection given to a running task
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	Query(ctx context.Context, query string, args ...any) (*RowSet, error)

	// Transact runs fn inside a transaction, committing when fn returns nil
	// and rolling back otherwise. Nested calls join the outer transaction.
	Transact(ctx context.Context, fn func(tx Conn) error) error

	Dialect() Dialect
}

// Result reports the outcome of a statement that returns no rows
type Result struct {
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
}

// RowSet holds fully materialized query results
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Map returns row i keyed by column name
func (rs *RowSet) Map(i int) map[string]any {
	row := make(map[string]any, len(rs.Columns))
	for j, col := range rs.Columns {
		row[col] = rs.Rows[i][j]
	}
	return row
}

// Scalar returns the first column of the first row, or nil for an empty set
func (rs *RowSet) Scalar() any {
	if rs.Len() == 0 || len(rs.Rows[0]) == 0 {
		return nil
	}
	return rs.Rows[0][0]
}

// Dialect describes the SQL differences between backends. Statements are
// always built with "?" placeholders; the adapter rebinds them.
type Dialect interface {
	// Name returns the dialect name, e.g. "sqlite" or "postgres"
	Name() string

	// ColumnType returns the column type used for pt
	ColumnType(pt PropertyType) string

	// PrimaryKeyColumn returns the full column definition of a primary key.
	// autoIncrement is set for backend-generated keys.
	PrimaryKeyColumn(column string, pt PropertyType, autoIncrement bool) string

	// Returning returns the clause appended to an INSERT to read back the
	// generated key, or "" when the key comes from LastInsertID
	Returning(column string) string
}
