// Package schema describes the seven e-commerce entities: their CSV files,
// target tables, column parsers and default batch sizes, and groups them into
// load plans.
package schema

import (
	"fmt"
	"strings"

	"shopload/csvsource"
)

// SingleBatch makes a step commit all its rows in one transaction.
const SingleBatch = 1 << 30

// Entity is one CSV file loaded into one table. Parsers list the columns in
// file order; CSV headers and DB columns share names.
type Entity struct {
	Name      string
	File      string
	Table     string
	Parsers   []csvsource.Parser
	BatchSize int
}

// Headers returns the CSV header row.
func (e Entity) Headers() []string {
	h := make([]string, len(e.Parsers))
	for i, p := range e.Parsers {
		h[i] = p.CSVHeader
	}
	return h
}

// Columns returns the target DB columns.
func (e Entity) Columns() []string {
	c := make([]string, len(e.Parsers))
	for i, p := range e.Parsers {
		c[i] = p.DBColumn
	}
	return c
}

// ColumnIndex returns the position of a column, or -1.
func (e Entity) ColumnIndex(name string) int {
	for i, p := range e.Parsers {
		if p.DBColumn == name {
			return i
		}
	}
	return -1
}

func col(name string, fn csvsource.ParserFunc) csvsource.Parser {
	return csvsource.Parser{CSVHeader: name, DBColumn: name, ParserFunc: fn}
}

var (
	User = Entity{
		Name:  "users",
		File:  "users.csv",
		Table: "User",
		Parsers: []csvsource.Parser{
			col("Email", csvsource.ParseRequiredString),
			col("PasswordHash", csvsource.ParseRequiredString),
			col("FirstName", csvsource.ParseRequiredString),
			col("LastName", csvsource.ParseRequiredString),
			col("PhoneNumber", csvsource.ParseNullableString),
			col("Address", csvsource.ParseNullableString),
			col("City", csvsource.ParseNullableString),
			col("PostalCode", csvsource.ParseNullableString),
			col("DateJoined", csvsource.ParseDateTime),
			col("IsActive", csvsource.ParseBool),
		},
		BatchSize: 1000,
	}

	Admin = Entity{
		Name:  "admins",
		File:  "admins.csv",
		Table: "Admin",
		Parsers: []csvsource.Parser{
			col("Email", csvsource.ParseRequiredString),
			col("PasswordHash", csvsource.ParseRequiredString),
			col("FirstName", csvsource.ParseRequiredString),
			col("LastName", csvsource.ParseRequiredString),
			col("Role", csvsource.ParseRequiredString),
			col("DateCreated", csvsource.ParseDateTime),
			col("IsActive", csvsource.ParseBool),
		},
		BatchSize: SingleBatch,
	}

	Category = Entity{
		Name:  "categories",
		File:  "categories.csv",
		Table: "Category",
		Parsers: []csvsource.Parser{
			col("CategoryName", csvsource.ParseRequiredString),
			col("Description", csvsource.ParseNullableString),
			col("IsActive", csvsource.ParseBool),
		},
		BatchSize: SingleBatch,
	}

	Product = Entity{
		Name:  "products",
		File:  "products.csv",
		Table: "Product",
		Parsers: []csvsource.Parser{
			col("CategoryID", csvsource.ParseInt),
			col("ProductName", csvsource.ParseRequiredString),
			col("Description", csvsource.ParseNullableString),
			col("Price", csvsource.ParseFloat),
			col("StockQuantity", csvsource.ParseInt),
			col("ImageURL", csvsource.ParseNullableString),
			col("DateAdded", csvsource.ParseDateTime),
			col("IsActive", csvsource.ParseBool),
		},
		BatchSize: 1000,
	}

	Order = Entity{
		Name:  "orders",
		File:  "orders.csv",
		Table: "Order",
		Parsers: []csvsource.Parser{
			col("UserID", csvsource.ParseInt),
			col("OrderDate", csvsource.ParseDateTime),
			col("TotalAmount", csvsource.ParseFloat),
			col("Status", csvsource.ParseRequiredString),
			col("ShippingAddress", csvsource.ParseNullableString),
			col("ShippingCity", csvsource.ParseNullableString),
			col("ShippingPostalCode", csvsource.ParseNullableString),
		},
		BatchSize: 5000,
	}

	OrderItem = Entity{
		Name:  "order_items",
		File:  "order_items.csv",
		Table: "OrderItem",
		Parsers: []csvsource.Parser{
			col("OrderID", csvsource.ParseInt),
			col("OrderDate", csvsource.ParseDateTime),
			col("ProductID", csvsource.ParseInt),
			col("Quantity", csvsource.ParseInt),
			col("PriceAtPurchase", csvsource.ParseFloat),
		},
		BatchSize: 5000,
	}

	Cart = Entity{
		Name:  "cart",
		File:  "cart.csv",
		Table: "Cart",
		Parsers: []csvsource.Parser{
			col("UserID", csvsource.ParseInt),
			col("ProductID", csvsource.ParseInt),
			col("Quantity", csvsource.ParseInt),
			col("DateAdded", csvsource.ParseDateTime),
		},
		BatchSize: 1000,
	}
)

// Entities returns every entity in generation order: parents before children.
func Entities() []Entity {
	return []Entity{Category, Product, User, Admin, Order, OrderItem, Cart}
}

// EntityByName looks an entity up by name ("users") or table ("User"), case-insensitively.
func EntityByName(name string) (Entity, error) {
	for _, e := range Entities() {
		if strings.EqualFold(e.Name, name) || strings.EqualFold(e.Table, name) {
			return e, nil
		}
	}
	return Entity{}, fmt.Errorf("unknown entity %q", name)
}

// EntityNames lists the entity names in generation order.
func EntityNames() []string {
	var names []string
	for _, e := range Entities() {
		names = append(names, e.Name)
	}
	return names
}
