package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shopload/generator"
	"shopload/schema"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [entity...]",
		Short: "Write synthetic CSV files",
		Long: fmt.Sprintf(`Write the CSV file of each named entity, or of every entity when none is
named. Entities: %s.

order_items reads orders.csv to copy each order's date, so generate orders
first (or in the same run).`, strings.Join(schema.EntityNames(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd, args)
		},
	}

	f := cmd.Flags()
	f.Int64("seed", 0, "random seed (0 seeds from the clock)")
	f.Int("users", 0, "number of users")
	f.Int("admins", 0, "number of admins")
	f.Int("products", 0, "number of products")
	f.Int("orders", 0, "number of orders")
	f.Int("order-items", 0, "number of order items")
	f.Int("cart-items", 0, "number of cart items")
	f.Int("cart-max-attempts", 0, "cart sampling budget (0 means twice cart-items)")
	f.Bool("strict", false, "fail when the cart cannot reach its target")
	a.bind(cmd, false, map[string]string{
		"seed":              "generate.seed",
		"users":             "generate.users",
		"admins":            "generate.admins",
		"products":          "generate.products",
		"orders":            "generate.orders",
		"order-items":       "generate.order_items",
		"cart-items":        "generate.cart_items",
		"cart-max-attempts": "generate.cart_max_attempts",
		"strict":            "generate.strict",
	})
	return cmd
}

func (a *app) counts() generator.Counts {
	g := a.cfg.Generate
	return generator.Counts{
		Users:           g.Users,
		Admins:          g.Admins,
		Products:        g.Products,
		Orders:          g.Orders,
		OrderItems:      g.OrderItems,
		CartItems:       g.CartItems,
		CartMaxAttempts: g.CartMaxAttempts,
		Strict:          g.Strict,
	}
}

func (a *app) runGenerate(cmd *cobra.Command, args []string) error {
	entities := args
	if len(entities) == 0 {
		entities = schema.EntityNames()
	}
	for _, name := range entities {
		if _, err := schema.EntityByName(name); err != nil {
			return err
		}
	}

	store, err := a.store()
	if err != nil {
		return err
	}
	g := generator.New(generator.Config{
		Store:         store,
		Seed:          a.cfg.Generate.Seed,
		ProgressEvery: a.cfg.Generate.ProgressEvery,
		FileSuffix:    a.cfg.FileSuffix(),
		Logger:        a.logger,
	})

	counts := a.counts()
	var summaries []generator.Summary
	for i, name := range entities {
		step(a.logger, i+1, len(entities), "Generate "+name)
		s, err := g.Generate(cmd.Context(), name, counts)
		if s.Entity != "" {
			summaries = append(summaries, s)
		}
		if err != nil {
			printGenerateSummary(cmd.OutOrStdout(), summaries)
			return fmt.Errorf("generate %s: %w", name, err)
		}
	}
	printGenerateSummary(cmd.OutOrStdout(), summaries)
	return nil
}
