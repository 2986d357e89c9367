//go:build cgo

package cli

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopload/loaderr"
)

var shopDDL = []string{
	`CREATE TABLE "Category" (CategoryID INTEGER PRIMARY KEY, CategoryName TEXT NOT NULL UNIQUE, Description TEXT, IsActive BOOLEAN NOT NULL)`,
	`CREATE TABLE "Product" (ProductID INTEGER PRIMARY KEY, CategoryID INTEGER NOT NULL, ProductName TEXT NOT NULL, Description TEXT,
		Price REAL NOT NULL, StockQuantity INTEGER NOT NULL, ImageURL TEXT, DateAdded DATETIME NOT NULL, IsActive BOOLEAN NOT NULL)`,
	`CREATE TABLE "Order" (OrderID INTEGER PRIMARY KEY, UserID INTEGER NOT NULL, OrderDate DATETIME NOT NULL, TotalAmount REAL NOT NULL,
		Status TEXT NOT NULL, ShippingAddress TEXT, ShippingCity TEXT, ShippingPostalCode TEXT)`,
	`CREATE TABLE "OrderItem" (OrderItemID INTEGER PRIMARY KEY, OrderID INTEGER NOT NULL, OrderDate DATETIME NOT NULL,
		ProductID INTEGER NOT NULL, Quantity INTEGER NOT NULL, PriceAtPurchase REAL NOT NULL)`,
}

func TestLoadIntoSQLite(t *testing.T) {
	t.Chdir(t.TempDir())
	dataDir := t.TempDir()
	dsn := filepath.Join(t.TempDir(), "shop.db")

	db, err := sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	for _, stmt := range shopDDL {
		db.MustExec(stmt)
	}
	require.NoError(t, db.Close())

	_, err = run(t, "generate", "categories", "products", "orders", "order_items",
		"--data-dir", dataDir, "--compression", "zst",
		"--products", "120", "--orders", "40", "--order-items", "90")
	require.NoError(t, err)

	common := []string{"--dialect", "sqlite", "--dsn", dsn, "--data-dir", dataDir, "--compression", "zst"}

	out, err := run(t, append([]string{"load", "categories-products", "orders", "--batch-size", "products=50,order_items=25"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Plan categories-products")
	assert.Contains(t, out, "Plan orders")
	assert.Contains(t, out, "rows loaded")

	out, err = run(t, append([]string{"count", "products", "orders", "order_items"}, common...)...)
	require.NoError(t, err)
	assert.Regexp(t, `Product\s+120`, out)
	assert.Regexp(t, `Order\s+40`, out)
	assert.Regexp(t, `OrderItem\s+90`, out)

	// Every order item carries the date of its order.
	db, err = sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()
	var mismatched int
	require.NoError(t, db.Get(&mismatched, `SELECT COUNT(*) FROM "OrderItem" oi JOIN "Order" o ON o.OrderID = oi.OrderID WHERE o.OrderDate <> oi.OrderDate`))
	assert.Zero(t, mismatched)

	// A missing table is reported before anything is written.
	_, err = run(t, append([]string{"load", "users-cart"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table User does not exist")
	assert.Equal(t, 1, loaderr.ExitCode(err))
}

var userCartDDL = []string{
	`CREATE TABLE "User" (UserID INTEGER PRIMARY KEY, Email TEXT NOT NULL UNIQUE, PasswordHash TEXT NOT NULL, FirstName TEXT NOT NULL,
		LastName TEXT NOT NULL, PhoneNumber TEXT, Address TEXT, City TEXT, PostalCode TEXT, DateJoined DATETIME NOT NULL, IsActive BOOLEAN NOT NULL)`,
	`CREATE TABLE "Admin" (AdminID INTEGER PRIMARY KEY, Email TEXT NOT NULL UNIQUE, PasswordHash TEXT NOT NULL, FirstName TEXT NOT NULL,
		LastName TEXT NOT NULL, Role TEXT NOT NULL, DateCreated DATETIME NOT NULL, IsActive BOOLEAN NOT NULL)`,
	`CREATE TABLE "Cart" (CartID INTEGER PRIMARY KEY, UserID INTEGER NOT NULL, ProductID INTEGER NOT NULL, Quantity INTEGER NOT NULL,
		DateAdded DATETIME NOT NULL, UNIQUE (UserID, ProductID))`,
}

func execAll(t *testing.T, dsn string, stmts []string) {
	t.Helper()
	db, err := sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		db.MustExec(stmt)
	}
}

// A resumed multi-plan load skips the plans that finished before the failure.
func TestLoadResumeAcrossPlans(t *testing.T) {
	t.Chdir(t.TempDir())
	dataDir := t.TempDir()
	checkpoints := t.TempDir()
	dsn := filepath.Join(t.TempDir(), "shop.db")
	execAll(t, dsn, shopDDL)

	_, err := run(t, "generate", "categories", "products", "users", "admins", "cart",
		"--data-dir", dataDir, "--users", "30", "--admins", "3", "--products", "60", "--cart-items", "40")
	require.NoError(t, err)

	args := []string{"load", "categories-products", "users-cart", "--resume", "--checkpoint-dir", checkpoints,
		"--dialect", "sqlite", "--dsn", dsn, "--data-dir", dataDir}

	_, err = run(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table User does not exist")
	kept, err := filepath.Glob(filepath.Join(checkpoints, "categories-products.*.checkpoint"))
	require.NoError(t, err)
	assert.Len(t, kept, 2)

	execAll(t, dsn, userCartDDL)
	out, err := run(t, args...)
	require.NoError(t, err)
	assert.Regexp(t, `products\s+Product\s+0\s+\d+\s+60`, out, "products skipped, not reloaded")

	out, err = run(t, "count", "products", "users", "cart", "--dialect", "sqlite", "--dsn", dsn)
	require.NoError(t, err)
	assert.Regexp(t, `Product\s+60`, out)
	assert.Regexp(t, `User\s+30`, out)
	assert.Regexp(t, `Cart\s+40`, out)

	left, err := filepath.Glob(filepath.Join(checkpoints, "*.checkpoint"))
	require.NoError(t, err)
	assert.Empty(t, left)
}
