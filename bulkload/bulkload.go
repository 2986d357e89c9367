// Package bulkload streams rows from sources into a store in fixed-size
// batches, one transaction per batch, with table triggers suspended for the
// duration of the run.
package bulkload

import (
	"context"
	"time"
)

const (
	LogFieldTable    = "table"
	LogFieldStep     = "step"
	LogFieldRowIndex = "row_index"
	LogFieldRawData  = "raw_data"
	LogFieldErr      = "error"
	LogFieldDuration = "duration"
	LogFieldRowCount = "row_count"
	LogFieldTotal    = "total"
	LogFieldBatch    = "batch"
	LogFieldFile     = "file"
	LogFieldTrigger  = "trigger"
	LogFieldState    = "state"
)

// Source defines the interface for input data handling.
type Source interface {
	// Validate performs initial checks on the source (e.g., header validation).
	// It is called once per run, before any trigger is suspended.
	Validate(ctx context.Context) error

	// Next returns the next raw row data from the source.
	// It should return io.EOF when there are no more rows.
	Next(ctx context.Context) (interface{}, error)

	// Convert transforms the raw row data into a slice of values corresponding to the target columns.
	Convert(rawRow interface{}) ([]interface{}, error)
}

// Trigger names a database trigger attached to a table.
type Trigger struct {
	Name  string
	Table string
}

func (t Trigger) String() string { return t.Name + " ON " + t.Table }

// TriggerController disables and re-enables single triggers.
type TriggerController interface {
	DisableTrigger(ctx context.Context, t Trigger) error
	EnableTrigger(ctx context.Context, t Trigger) error
}

// Repository is the store boundary used by the pipeline.
type Repository interface {
	TriggerController
	// InsertBatch writes all rows of b in one transaction.
	InsertBatch(ctx context.Context, b *Batch) error
}

// Pinger is implemented by repositories that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TableChecker is implemented by repositories that can check a table exists.
type TableChecker interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// Step loads one source into one table.
type Step struct {
	Name      string
	Table     string
	Columns   []string
	BatchSize int
	Source    Source
}

// StepReport summarizes one finished (or failed) step.
type StepReport struct {
	Name     string
	Table    string
	Rows     int // committed in this run
	Skipped  int // already committed by a previous run (resume)
	Batches  int
	Duration time.Duration
}

// Report summarizes a run.
type Report struct {
	Steps    []StepReport
	Duration time.Duration
}

// Rows returns the number of rows committed in this run across all steps.
func (r Report) Rows() int {
	n := 0
	for _, s := range r.Steps {
		n += s.Rows
	}
	return n
}
