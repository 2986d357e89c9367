package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopload/bulkload"
	"shopload/schema"
)

func TestDialectByName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sqlserver", "sqlserver"},
		{"MSSQL", "sqlserver"},
		{"oracle", "oracle"},
		{"postgresql", "postgres"},
		{" pgx ", "postgres"},
		{"mysql", "mysql"},
		{"sqlite3", "sqlite"},
	}
	for _, tt := range tests {
		d, err := DialectByName(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, d.Name)
	}

	_, err := DialectByName("db2")
	assert.ErrorContains(t, err, `unknown dialect "db2"`)
	assert.Equal(t, []string{"mysql", "oracle", "postgres", "sqlite", "sqlserver"}, DialectNames())
}

func TestTriggerSQL(t *testing.T) {
	trg := bulkload.Trigger{Name: "trg_AfterOrderItem_UpdateStock", Table: "OrderItem"}

	tests := []struct {
		d       Dialect
		disable string
		enable  string
	}{
		{SQLServer, "DISABLE TRIGGER [trg_AfterOrderItem_UpdateStock] ON [OrderItem]", "ENABLE TRIGGER [trg_AfterOrderItem_UpdateStock] ON [OrderItem]"},
		{Oracle, `ALTER TRIGGER "trg_AfterOrderItem_UpdateStock" DISABLE`, `ALTER TRIGGER "trg_AfterOrderItem_UpdateStock" ENABLE`},
		{Postgres, `ALTER TABLE "OrderItem" DISABLE TRIGGER "trg_AfterOrderItem_UpdateStock"`, `ALTER TABLE "OrderItem" ENABLE TRIGGER "trg_AfterOrderItem_UpdateStock"`},
	}
	for _, tt := range tests {
		t.Run(tt.d.Name, func(t *testing.T) {
			assert.True(t, tt.d.SupportsTriggers())
			got, err := tt.d.TriggerSQL(trg, false)
			require.NoError(t, err)
			assert.Equal(t, tt.disable, got)
			got, err = tt.d.TriggerSQL(trg, true)
			require.NoError(t, err)
			assert.Equal(t, tt.enable, got)
		})
	}

	for _, d := range []Dialect{MySQL, SQLite} {
		assert.False(t, d.SupportsTriggers())
		_, err := d.TriggerSQL(trg, false)
		assert.True(t, errors.Is(err, ErrTriggersUnsupported), d.Name)
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "[Order]", SQLServer.Quote("Order"))
	assert.Equal(t, "`User`", MySQL.Quote("User"))
	assert.Equal(t, `"User"`, Postgres.Quote("User"))
	assert.Equal(t, `"a""b"`, SQLite.Quote(`a"b`))
	assert.Equal(t, "[a]]b]", SQLServer.Quote("a]b"))
}

func TestRowsPerStatement(t *testing.T) {
	assert.Equal(t, 1000, SQLServer.RowsPerStatement(2), "row cap wins over 1050")
	assert.Equal(t, 209, SQLServer.RowsPerStatement(10))
	assert.Equal(t, 99, SQLite.RowsPerStatement(10))
	assert.Equal(t, 6553, Postgres.RowsPerStatement(10))
	assert.Equal(t, 1, Dialect{MaxParams: 3}.RowsPerStatement(10))
	assert.Greater(t, Oracle.RowsPerStatement(10), 1<<30)
}

func TestSQLServerStatementsFitRPCLimit(t *testing.T) {
	r := New(nil, SQLServer)
	for _, e := range schema.Entities() {
		cols := e.Columns()
		n := SQLServer.RowsPerStatement(len(cols))
		rows := make([][]interface{}, n)
		for i := range rows {
			rows[i] = make([]interface{}, len(cols))
		}
		_, args, err := r.insertSQL(e.Table, cols, rows)
		require.NoError(t, err, e.Name)
		assert.LessOrEqual(t, len(args), 2098, "%s: %d rows x %d columns", e.Name, n, len(cols))
	}
}

func TestInsertSQLPlaceholders(t *testing.T) {
	rows := [][]interface{}{{1, "a"}, {2, "b"}}
	tests := []struct {
		d    Dialect
		want string
	}{
		{SQLServer, "INSERT INTO [Cart] ([UserID],[ProductID]) VALUES (@p1,@p2),(@p3,@p4)"},
		{Postgres, `INSERT INTO "Cart" ("UserID","ProductID") VALUES ($1,$2),($3,$4)`},
		{MySQL, "INSERT INTO `Cart` (`UserID`,`ProductID`) VALUES (?,?),(?,?)"},
		{Oracle, `INSERT INTO "Cart" ("UserID","ProductID") VALUES (:1,:2),(:3,:4)`},
	}
	for _, tt := range tests {
		r := New(nil, tt.d)
		query, args, err := r.insertSQL("Cart", []string{"UserID", "ProductID"}, rows)
		require.NoError(t, err)
		assert.Equal(t, tt.want, query, tt.d.Name)
		assert.Equal(t, []interface{}{1, "a", 2, "b"}, args)
	}
}

func TestTableExistsQuery(t *testing.T) {
	r := New(nil, Oracle)
	query, args, err := Oracle.tableExistsQuery(r.qb, "Order").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(1) FROM USER_TABLES WHERE TABLE_NAME = :1", query)
	assert.Equal(t, []interface{}{"Order"}, args, "only the quoted, case-sensitive name counts")

	r = New(nil, Postgres)
	query, args, err = Postgres.tableExistsQuery(r.qb, "User").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(1) FROM information_schema.tables WHERE table_name = $1 AND table_schema = ANY (current_schemas(false))", query)
	assert.Equal(t, []interface{}{"User"}, args)

	r = New(nil, SQLServer)
	query, args, err = SQLServer.tableExistsQuery(r.qb, "Order").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(1) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1", query)
	assert.Equal(t, []interface{}{"Order"}, args)
}
