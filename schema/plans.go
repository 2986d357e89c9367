package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shopload/blob"
	"shopload/bulkload"
	"shopload/csvsource"
	"shopload/keyindex"
)

// Plan is a group of entities loaded under one bulk-load mode, in order.
type Plan struct {
	Name     string
	Entities []Entity
	// Triggers are suspended while the plan runs.
	Triggers []bulkload.Trigger
}

var (
	PlanCategoriesProducts = Plan{
		Name:     "categories-products",
		Entities: []Entity{Category, Product},
	}

	PlanUsersCart = Plan{
		Name:     "users-cart",
		Entities: []Entity{User, Admin, Cart},
		Triggers: []bulkload.Trigger{{Name: "trg_InsteadOfCart_ValidateStock", Table: "Cart"}},
	}

	PlanOrders = Plan{
		Name:     "orders",
		Entities: []Entity{Order, OrderItem},
		Triggers: []bulkload.Trigger{{Name: "trg_AfterOrderItem_UpdateStock", Table: "OrderItem"}},
	}
)

// Plans returns every plan in load order. Cart references products and
// order items reference orders and products, so categories-products runs first.
func Plans() []Plan {
	return []Plan{PlanCategoriesProducts, PlanUsersCart, PlanOrders}
}

// PlanByName looks a plan up by name.
func PlanByName(name string) (Plan, error) {
	for _, p := range Plans() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("unknown load plan %q (want one of %s)", name, strings.Join(PlanNames(), ", "))
}

// PlanNames lists the plan names in load order.
func PlanNames() []string {
	var names []string
	for _, p := range Plans() {
		names = append(names, p.Name)
	}
	return names
}

// StepOptions tunes how a plan is turned into pipeline steps.
type StepOptions struct {
	Store blob.Store
	// BatchSizes overrides Entity.BatchSize by entity name.
	BatchSizes map[string]int
	// ResolveOrderDates replaces each order item's OrderDate with the date of
	// the order it references in orders.csv.
	ResolveOrderDates bool
	// OrderDateFallback is used for order items referencing an order outside
	// orders.csv. Defaults to the current time.
	OrderDateFallback func() string
	// FileSuffix is appended to every file name (".gz", ".zst", ".lz4").
	FileSuffix string
	Logger     *slog.Logger
}

// Steps builds one pipeline step per entity. The returned func closes every source.
func (p Plan) Steps(opts StepOptions) ([]bulkload.Step, func() error) {
	var (
		steps   []bulkload.Step
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	for _, e := range p.Entities {
		enrich := e.Name == OrderItem.Name && opts.ResolveOrderDates
		parsers := e.Parsers
		if enrich {
			// The file's own OrderDate is replaced, so it may be blank or stale.
			parsers = withParser(parsers, "OrderDate", csvsource.ParseString)
		}
		src, closeSrc := csvsource.New(csvsource.Config{
			Store:           opts.Store,
			FileName:        e.File + opts.FileSuffix,
			TableName:       e.Table,
			ExpectedHeaders: e.Headers(),
			Parsers:         parsers,
		})
		closers = append(closers, closeSrc)

		var source bulkload.Source = src
		if enrich {
			fallback := opts.OrderDateFallback
			if fallback == nil {
				fallback = keyindex.NowFallback(csvsource.DateTimeLayout)
			}
			source = keyindex.Enrich(src, keyindex.EnrichConfig{
				Store:        opts.Store,
				ParentFile:   Order.File + opts.FileSuffix,
				ParentColumn: "OrderDate",
				KeyColumn:    OrderItem.ColumnIndex("OrderID"),
				TargetColumn: OrderItem.ColumnIndex("OrderDate"),
				Parse:        csvsource.ParseDateTime,
				Fallback:     fallback,
				Logger:       opts.Logger,
			}, nil)
		}

		size := e.BatchSize
		if n, ok := opts.BatchSizes[e.Name]; ok && n > 0 {
			size = n
		}
		steps = append(steps, bulkload.Step{
			Name:      e.Name,
			Table:     e.Table,
			Columns:   e.Columns(),
			BatchSize: size,
			Source:    source,
		})
	}
	return steps, closeAll
}

// withParser returns a copy of parsers with column's ParserFunc replaced.
func withParser(parsers []csvsource.Parser, column string, fn csvsource.ParserFunc) []csvsource.Parser {
	out := append([]csvsource.Parser(nil), parsers...)
	for i := range out {
		if out[i].DBColumn == column {
			out[i].ParserFunc = fn
		}
	}
	return out
}
