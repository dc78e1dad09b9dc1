package sql

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/preslavrachev/gom/core"
)

// classifyError wraps a driver error as a core.Error, keeping the driver
// error as the cause
func classifyError(d driver, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	code := d.classify(err)
	return core.NewError(code, "", err)
}

func classifyMattn(err error) core.ErrorCode {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return core.CodeConstraint
	}
	return core.CodeQuery
}

func classifyModernc(err error) core.ErrorCode {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT {
		return core.CodeConstraint
	}
	return core.CodeQuery
}

func classifyPgx(err error) core.ErrorCode {
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pgerrcode.IsIntegrityConstraintViolation(pe.Code) {
		return core.CodeConstraint
	}
	return core.CodeQuery
}

func classifyPq(err error) core.ErrorCode {
	var pe *pq.Error
	if errors.As(err, &pe) && pgerrcode.IsIntegrityConstraintViolation(string(pe.Code)) {
		return core.CodeConstraint
	}
	return core.CodeQuery
}
