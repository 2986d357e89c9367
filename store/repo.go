package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/sijms/go-ora/v2"

	"shopload/bulkload"
	"shopload/loaderr"
)

const (
	LogFieldDialect = "dialect"
	LogFieldTable   = "table"
	LogFieldRows    = "rows"
	LogFieldBind    = "bind"
)

// Repo implements bulkload.Repository over one database handle.
type Repo struct {
	db      *sqlx.DB
	dialect Dialect
	qb      sq.StatementBuilderType
	logger  *slog.Logger
}

var (
	_ bulkload.Repository   = (*Repo)(nil)
	_ bulkload.Pinger       = (*Repo)(nil)
	_ bulkload.TableChecker = (*Repo)(nil)
)

// New wraps an open handle.
func New(db *sqlx.DB, d Dialect) *Repo {
	return &Repo{
		db:      db,
		dialect: d,
		qb:      sq.StatementBuilder.PlaceholderFormat(d.Placeholder),
		logger:  slog.Default().With(LogFieldDialect, d.Name),
	}
}

// Open connects with the dialect's driver and verifies the connection. The
// loader is single-threaded, so the pool holds one connection.
func Open(ctx context.Context, d Dialect, dsn string) (*Repo, error) {
	db, err := sqlx.Open(d.Driver, dsn)
	if err != nil {
		return nil, loaderr.Connection("connect to "+d.Name, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(2 * time.Minute)

	r := New(db, d)
	if err := r.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Dialect returns the dialect the repo speaks.
func (r *Repo) Dialect() Dialect { return r.dialect }

// DB exposes the underlying handle.
func (r *Repo) DB() *sqlx.DB { return r.db }

// Ping checks the connection.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return loaderr.Connection("ping "+r.dialect.Name, err)
	}
	return nil
}

// Close closes the handle.
func (r *Repo) Close() error { return r.db.Close() }

// SupportsTriggers reports whether DisableTrigger can work on this dialect.
func (r *Repo) SupportsTriggers() bool { return r.dialect.SupportsTriggers() }

// DisableTrigger suspends t.
func (r *Repo) DisableTrigger(ctx context.Context, t bulkload.Trigger) error {
	return r.execTrigger(ctx, t, false)
}

// EnableTrigger restores t.
func (r *Repo) EnableTrigger(ctx context.Context, t bulkload.Trigger) error {
	return r.execTrigger(ctx, t, true)
}

func (r *Repo) execTrigger(ctx context.Context, t bulkload.Trigger, enable bool) error {
	query, err := r.dialect.TriggerSQL(t, enable)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return Classify("alter trigger "+t.String(), t.Table, fmt.Errorf("%s: %w", query, err))
	}
	return nil
}

// InsertBatch writes all rows of b in one transaction. Either every row is
// committed or none is.
func (r *Repo) InsertBatch(ctx context.Context, b *bulkload.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	op := "insert into " + b.Table

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Classify(op, b.Table, fmt.Errorf("begin transaction failed: %w", err))
	}
	defer tx.Rollback()

	if r.dialect.ArrayBind {
		err = r.insertArrays(ctx, tx, b)
	} else {
		err = r.insertRows(ctx, tx, b)
	}
	if err != nil {
		return Classify(op, b.Table, err)
	}

	if err := tx.Commit(); err != nil {
		return Classify(op, b.Table, fmt.Errorf("commit failed: %w", err))
	}
	return nil
}

// insertRows sends multi-row INSERTs sized to the dialect's limits.
func (r *Repo) insertRows(ctx context.Context, tx *sqlx.Tx, b *bulkload.Batch) error {
	per := r.dialect.RowsPerStatement(len(b.Columns))
	for start := 0; start < len(b.Rows); start += per {
		end := min(start+per, len(b.Rows))
		query, args, err := r.insertSQL(b.Table, b.Columns, b.Rows[start:end])
		if err != nil {
			return fmt.Errorf("build insert failed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert rows %d-%d of batch %d failed: %w", b.Offset+start+1, b.Offset+end, b.Seq, err)
		}
	}
	return nil
}

// insertArrays sends one INSERT bound to a typed slice per column.
func (r *Repo) insertArrays(ctx context.Context, tx *sqlx.Tx, b *bulkload.Batch) error {
	arrays, err := columnArrays(b.Rows, b.Columns)
	if err != nil {
		return err
	}
	for i, a := range arrays {
		r.logger.Debug("Binding column", LogFieldTable, b.Table, "column", b.Columns[i], LogFieldBind, fmt.Sprintf("%T", a), LogFieldRows, b.Len())
	}
	query, _, err := r.insertSQL(b.Table, b.Columns, [][]interface{}{arrays})
	if err != nil {
		return fmt.Errorf("build insert failed: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert statement failed: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, arrays...); err != nil {
		return fmt.Errorf("insert batch %d failed: %w", b.Seq, err)
	}
	return nil
}

func (r *Repo) insertSQL(table string, columns []string, rows [][]interface{}) (string, []interface{}, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = r.dialect.Quote(c)
	}
	ib := r.qb.Insert(r.dialect.Quote(table)).Columns(quoted...)
	for _, row := range rows {
		ib = ib.Values(row...)
	}
	return ib.ToSql()
}

// CountRows returns the number of rows in table.
func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	query, args, err := r.qb.Select("COUNT(*)").From(r.dialect.Quote(table)).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, Classify("count "+table, table, fmt.Errorf("count rows of %s: %w", table, err))
	}
	return n, nil
}

// TableExists checks the catalog for table.
func (r *Repo) TableExists(ctx context.Context, table string) (bool, error) {
	query, args, err := r.dialect.tableExistsQuery(r.qb, table).ToSql()
	if err != nil {
		return false, err
	}
	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, Classify("check table "+table, table, fmt.Errorf("check table %s exists: %w", table, err))
	}
	return n > 0, nil
}
