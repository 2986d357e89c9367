// Package generator writes synthetic e-commerce CSV files matching the schema
// package, one entity at a time.
package generator

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"shopload/blob"
	"shopload/schema"
)

const (
	LogFieldEntity    = "entity"
	LogFieldFile      = "file"
	LogFieldRows      = "rows"
	LogFieldRequested = "requested"
	LogFieldAttempts  = "attempts"
	LogFieldDuration  = "duration"
	LogFieldErr       = "error"
)

// Config holds generator settings shared by all entities.
type Config struct {
	Store blob.Store
	// Seed makes output reproducible. 0 seeds from the clock.
	Seed int64
	// Now anchors every relative date. Zero means time.Now().
	Now           time.Time
	ProgressEvery int
	// FileSuffix is appended to every file name (".gz", ".zst", ".lz4").
	FileSuffix string
	Logger     *slog.Logger
}

// Counts are the row targets per entity.
type Counts struct {
	Users      int
	Admins     int
	Products   int
	Orders     int
	OrderItems int
	CartItems  int
	// CartMaxAttempts bounds cart sampling. 0 means twice CartItems.
	CartMaxAttempts int
	// Strict turns a short cart into an error instead of a warning.
	Strict bool
}

// DefaultCounts are the volumes of the reference dataset.
func DefaultCounts() Counts {
	return Counts{
		Users:      10000,
		Admins:     100,
		Products:   100000,
		Orders:     500000,
		OrderItems: 400000,
		CartItems:  50000,
	}
}

// Summary describes one generated file.
type Summary struct {
	Entity    string
	File      string
	Rows      int
	Requested int
	Attempts  int
	Duration  time.Duration
}

// Shortfall is how many rows are missing from the request.
func (s Summary) Shortfall() int { return s.Requested - s.Rows }

// Generator writes entity files. It is not safe for concurrent use.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	now    time.Time
	logger *slog.Logger
}

// New creates a Generator.
func New(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		now:    now,
		logger: logger,
	}
}

// Generate writes the file of one entity.
func (g *Generator) Generate(ctx context.Context, entity string, c Counts) (Summary, error) {
	e, err := schema.EntityByName(entity)
	if err != nil {
		return Summary{}, err
	}
	switch e.Name {
	case schema.User.Name:
		return g.Users(ctx, c.Users)
	case schema.Admin.Name:
		return g.Admins(ctx, c.Admins)
	case schema.Category.Name:
		return g.Categories(ctx)
	case schema.Product.Name:
		return g.Products(ctx, c.Products, len(categoryNames))
	case schema.Order.Name:
		return g.Orders(ctx, c.Orders, c.Users)
	case schema.OrderItem.Name:
		return g.OrderItems(ctx, c.OrderItems, c.Orders, c.Products)
	case schema.Cart.Name:
		return g.Cart(ctx, c.CartItems, c.Users, c.Products, c.CartMaxAttempts, c.Strict)
	}
	return Summary{}, fmt.Errorf("no generator for entity %q", e.Name)
}

// GenerateAll writes every entity, parents first.
func (g *Generator) GenerateAll(ctx context.Context, c Counts) ([]Summary, error) {
	var out []Summary
	for _, name := range schema.EntityNames() {
		s, err := g.Generate(ctx, name, c)
		out = append(out, s)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// csvFile writes one entity file and logs progress.
type csvFile struct {
	w       io.WriteCloser
	cw      *csv.Writer
	entity  schema.Entity
	summary Summary
	start   time.Time
	every   int
	logger  *slog.Logger
	ctx     context.Context
}

func (g *Generator) create(ctx context.Context, e schema.Entity, requested int) (*csvFile, error) {
	name := e.File + g.cfg.FileSuffix
	w, err := g.cfg.Store.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	f := &csvFile{
		w:       w,
		cw:      csv.NewWriter(w),
		entity:  e,
		summary: Summary{Entity: e.Name, File: g.cfg.Store.Location(name), Requested: requested},
		start:   time.Now(),
		every:   g.cfg.ProgressEvery,
		logger:  g.logger.With(LogFieldEntity, e.Name),
		ctx:     ctx,
	}
	if err := f.cw.Write(e.Headers()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write header of %s: %w", name, err)
	}
	return f, nil
}

func (f *csvFile) write(rec ...string) error {
	if err := f.cw.Write(rec); err != nil {
		return fmt.Errorf("write %s row %d: %w", f.entity.File, f.summary.Rows+1, err)
	}
	f.summary.Rows++
	if f.every > 0 && f.summary.Rows%f.every == 0 {
		f.logger.Info(fmt.Sprintf("Generated %d %s...", f.summary.Rows, f.entity.Name))
		if err := f.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// finish flushes and closes the file. On a previous error it only closes.
func (f *csvFile) finish(err error) (Summary, error) {
	f.cw.Flush()
	if err == nil {
		err = f.cw.Error()
	}
	if cerr := f.w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", f.summary.File, cerr)
	}
	f.summary.Duration = time.Since(f.start)
	if err != nil {
		return f.summary, err
	}
	f.logger.Info(fmt.Sprintf("Completed! Generated %d %s", f.summary.Rows, f.entity.Name),
		LogFieldFile, f.summary.File, LogFieldDuration, f.summary.Duration)
	return f.summary, nil
}
