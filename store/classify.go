package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/sijms/go-ora/v2/network"

	"shopload/loaderr"
)

// Classify tags a driver error with a loaderr kind. Constraint violations
// name table, broken connections name op. Untagged errors come back as is.
func Classify(op, table string, err error) error {
	if err == nil || loaderr.KindOf(err) != loaderr.KindUnknown {
		return err
	}
	if IsConnectionError(err) {
		return loaderr.Connection(op, err)
	}
	if code, ok := ConstraintCode(err); ok {
		return loaderr.ConstraintViolation(table, code, err)
	}
	return err
}

// IsConnectionError reports errors that mean the store is unreachable or the
// session is gone.
func IsConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ce *pgconn.ConnectError
	return errors.As(err, &ce)
}

// ConstraintCode returns the driver code of an integrity error.
func ConstraintCode(err error) (string, bool) {
	var me mssql.Error
	if errors.As(err, &me) {
		return mssqlCode(me.Number)
	}
	var mp *mssql.Error
	if errors.As(err, &mp) && mp != nil {
		return mssqlCode(mp.Number)
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		// Class 23: integrity constraint violation.
		if len(pe.Code) == 5 && pe.Code[:2] == "23" {
			return pe.Code, true
		}
		return "", false
	}

	var my *mysql.MySQLError
	if errors.As(err, &my) {
		switch my.Number {
		case 1048, 1062, 1216, 1217, 1451, 1452:
			return strconv.Itoa(int(my.Number)), true
		}
		return "", false
	}

	var oe *network.OracleError
	if errors.As(err, &oe) {
		switch oe.ErrCode {
		case 1, 1400, 2290, 2291, 2292:
			return "ORA-" + leftPad(strconv.Itoa(oe.ErrCode), 5), true
		}
		return "", false
	}

	return sqliteConstraintCode(err)
}

func mssqlCode(n int32) (string, bool) {
	switch n {
	// FK/check conflict, NULL into NOT NULL, duplicate key.
	case 547, 515, 2601, 2627:
		return strconv.Itoa(int(n)), true
	}
	return "", false
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}
