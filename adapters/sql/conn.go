package sql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/preslavrachev/gom/core"
)

// execer is satisfied by both *sqlx.Conn and *sqlx.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// conn implements core.Conn for the task currently running on the adapter
type conn struct {
	opID   string
	driver driver
	logger *SQLLogger
	raw    *sqlx.Conn
	ext    execer
	tx     *sqlx.Tx
}

func (c *conn) Dialect() core.Dialect {
	return c.driver.dialect
}

// Exec runs a statement that returns no rows
func (c *conn) Exec(ctx context.Context, query string, args ...any) (core.Result, error) {
	bound := c.driver.dialect.Rebind(query)
	start := time.Now()
	res, err := c.ext.ExecContext(ctx, bound, args...)
	duration := time.Since(start)
	if err != nil {
		c.logger.LogError(c.opID, bound, args, duration, err)
		return core.Result{}, classifyError(c.driver, err)
	}

	out := core.Result{RowsAffected: -1}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	// Postgres drivers do not support LastInsertId
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	c.logger.LogExec(c.opID, bound, args, duration, out.RowsAffected)
	return out, nil
}

// Query runs a statement and materializes every row it returns
func (c *conn) Query(ctx context.Context, query string, args ...any) (*core.RowSet, error) {
	bound := c.driver.dialect.Rebind(query)
	start := time.Now()
	rows, err := c.ext.QueryxContext(ctx, bound, args...)
	if err != nil {
		c.logger.LogError(c.opID, bound, args, time.Since(start), err)
		return nil, classifyError(c.driver, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyError(c.driver, err)
	}

	rs := &core.RowSet{Columns: columns}
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			c.logger.LogError(c.opID, bound, args, time.Since(start), err)
			return nil, classifyError(c.driver, err)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		c.logger.LogError(c.opID, bound, args, time.Since(start), err)
		return nil, classifyError(c.driver, err)
	}

	c.logger.LogQuery(c.opID, bound, args, time.Since(start), len(rs.Rows))
	return rs, nil
}

// Transact runs fn in a transaction. Inside a transaction it just runs fn.
func (c *conn) Transact(ctx context.Context, fn func(tx core.Conn) error) error {
	if c.tx != nil {
		return fn(c)
	}

	tx, err := c.raw.BeginTxx(ctx, nil)
	if err != nil {
		return classifyError(c.driver, err)
	}
	c.logger.LogEvent(c.opID, "BEGIN")

	txConn := &conn{
		opID:   c.opID,
		driver: c.driver,
		logger: c.logger,
		raw:    c.raw,
		ext:    tx,
		tx:     tx,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			c.logger.LogEvent(c.opID, "ROLLBACK")
			panic(p)
		}
	}()

	if err := fn(txConn); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			c.logger.LogEvent(c.opID, "ROLLBACK failed: "+rbErr.Error())
		} else {
			c.logger.LogEvent(c.opID, "ROLLBACK")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyError(c.driver, err)
	}
	c.logger.LogEvent(c.opID, "COMMIT")
	return nil
}
