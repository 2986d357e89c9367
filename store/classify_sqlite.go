//go:build cgo

package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

func sqliteConstraintCode(err error) (string, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return se.ExtendedCode.Error(), true
	}
	return "", false
}
