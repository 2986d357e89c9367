// Package store is the relational boundary of the loader: one Repo per
// connection, speaking one SQL dialect.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"shopload/bulkload"
)

// ErrTriggersUnsupported is returned by dialects that cannot suspend a
// trigger in place.
var ErrTriggersUnsupported = errors.New("dialect cannot disable triggers in place")

// Dialect holds what differs between databases.
type Dialect struct {
	Name   string
	Driver string
	// Placeholder is the bind parameter style of the driver.
	Placeholder sq.PlaceholderFormat
	// MaxParams bounds the bind parameters of one statement. 0 means no limit.
	MaxParams int
	// MaxRows bounds the rows of one multi-row INSERT. 0 means no limit.
	MaxRows int
	// ArrayBind inserts a batch with one statement bound to column arrays
	// instead of multi-row VALUES.
	ArrayBind bool
}

// sqlServerMaxParams is the 2100 RPC parameter limit less the two taken by
// sp_executesql (@stmt, @params), which go-mssqldb wraps every query in.
const sqlServerMaxParams = 2100 - 2

var (
	SQLServer = Dialect{Name: "sqlserver", Driver: "sqlserver", Placeholder: sq.AtP, MaxParams: sqlServerMaxParams, MaxRows: 1000}
	Oracle    = Dialect{Name: "oracle", Driver: "oracle", Placeholder: sq.Colon, ArrayBind: true}
	Postgres  = Dialect{Name: "postgres", Driver: "pgx", Placeholder: sq.Dollar, MaxParams: 65535}
	MySQL     = Dialect{Name: "mysql", Driver: "mysql", Placeholder: sq.Question, MaxParams: 65535}
	SQLite    = Dialect{Name: "sqlite", Driver: "sqlite3", Placeholder: sq.Question, MaxParams: 999}
)

var dialects = map[string]Dialect{
	"sqlserver":  SQLServer,
	"mssql":      SQLServer,
	"oracle":     Oracle,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"pgx":        Postgres,
	"mysql":      MySQL,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
}

// DialectByName resolves a dialect name or alias.
func DialectByName(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown dialect %q (want one of %s)", name, strings.Join(DialectNames(), ", "))
	}
	return d, nil
}

// DialectNames lists the canonical dialect names.
func DialectNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, d := range dialects {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Quote quotes an identifier. Table names such as User and Order are
// reserved words on most servers.
func (d Dialect) Quote(ident string) string {
	switch d.Name {
	case SQLServer.Name:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	case MySQL.Name:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// SupportsTriggers reports whether TriggerSQL can produce statements.
func (d Dialect) SupportsTriggers() bool {
	switch d.Name {
	case SQLServer.Name, Oracle.Name, Postgres.Name:
		return true
	}
	return false
}

// TriggerSQL returns the statement that disables (or enables) t.
func (d Dialect) TriggerSQL(t bulkload.Trigger, enable bool) (string, error) {
	verb := "DISABLE"
	if enable {
		verb = "ENABLE"
	}
	switch d.Name {
	case SQLServer.Name:
		return fmt.Sprintf("%s TRIGGER %s ON %s", verb, d.Quote(t.Name), d.Quote(t.Table)), nil
	case Oracle.Name:
		return fmt.Sprintf("ALTER TRIGGER %s %s", d.Quote(t.Name), verb), nil
	case Postgres.Name:
		return fmt.Sprintf("ALTER TABLE %s %s TRIGGER %s", d.Quote(t.Table), verb, d.Quote(t.Name)), nil
	}
	return "", fmt.Errorf("%s %s: %w", strings.ToLower(verb), t, ErrTriggersUnsupported)
}

// RowsPerStatement is how many rows of width columns fit in one INSERT.
func (d Dialect) RowsPerStatement(columns int) int {
	n := 0
	if d.MaxParams > 0 && columns > 0 {
		n = max(d.MaxParams/columns, 1)
	}
	if d.MaxRows > 0 && (n == 0 || d.MaxRows < n) {
		n = d.MaxRows
	}
	if n == 0 {
		return int(^uint(0) >> 1)
	}
	return n
}

// tableExistsQuery counts catalog rows naming table. Oracle and Postgres
// match the exact case, as Quote makes the INSERT case sensitive there.
func (d Dialect) tableExistsQuery(qb sq.StatementBuilderType, table string) sq.SelectBuilder {
	switch d.Name {
	case SQLServer.Name:
		return qb.Select("COUNT(1)").From("INFORMATION_SCHEMA.TABLES").Where(sq.Eq{"TABLE_NAME": table})
	case Oracle.Name:
		return qb.Select("COUNT(1)").From("USER_TABLES").Where(sq.Eq{"TABLE_NAME": table})
	case Postgres.Name:
		return qb.Select("COUNT(1)").From("information_schema.tables").
			Where(sq.Eq{"table_name": table}).
			Where("table_schema = ANY (current_schemas(false))")
	case MySQL.Name:
		return qb.Select("COUNT(1)").From("information_schema.tables").
			Where(sq.Eq{"table_name": table}).
			Where("table_schema = DATABASE()")
	default:
		return qb.Select("COUNT(1)").From("sqlite_master").
			Where(sq.Eq{"type": "table", "name": table})
	}
}
