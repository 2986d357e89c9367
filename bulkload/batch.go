package bulkload

import "fmt"

// Batch is a bounded, ordered group of rows for one table.
type Batch struct {
	Table   string
	Columns []string
	Rows    [][]interface{}
	// Seq is the 1-based batch number within its step.
	Seq int
	// Offset is the number of source rows that precede the first row of the batch.
	Offset int
}

// maxPrealloc caps the initial buffer for single-batch steps.
const maxPrealloc = 8192

func newBatch(step Step, seq, offset int) *Batch {
	return &Batch{
		Table:   step.Table,
		Columns: step.Columns,
		Rows:    make([][]interface{}, 0, min(step.BatchSize, maxPrealloc)),
		Seq:     seq,
		Offset:  offset,
	}
}

// Len returns the number of buffered rows.
func (b *Batch) Len() int { return len(b.Rows) }

// Add appends a row, checking its width against the columns.
func (b *Batch) Add(values []interface{}) error {
	if len(values) != len(b.Columns) {
		return fmt.Errorf("row has %d values, table %s expects %d columns", len(values), b.Table, len(b.Columns))
	}
	b.Rows = append(b.Rows, values)
	return nil
}

// Column returns the values of column i across all rows.
func (b *Batch) Column(i int) []interface{} {
	col := make([]interface{}, len(b.Rows))
	for r, row := range b.Rows {
		col[r] = row[i]
	}
	return col
}
