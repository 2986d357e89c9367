// Package keyindex resolves a child row's reference to a parent row by the
// parent's position in its CSV file, and propagates one parent column (the
// partitioning key) to the child.
package keyindex

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"shopload/blob"
	"shopload/loaderr"
)

// Index maps a parent row ordinal (1-based, header excluded) to the raw value
// of one parent column.
type Index struct {
	column string
	values []string
}

// Build consumes r fully. name is used in errors only. Empty values are
// rejected because a resolved key must never be empty.
func Build(ctx context.Context, r io.Reader, name, column string) (*Index, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, loaderr.MalformedRow(name, 1, errors.New("missing header row"))
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}
	col := -1
	for i, h := range header {
		if h == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, loaderr.MalformedRow(name, 1, fmt.Errorf("column '%s' not found", column))
	}

	ix := &Index{column: column}
	for {
		if len(ix.values)%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, loaderr.MalformedRow(name, pe.Line, pe.Err)
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		v := rec[col]
		if v == "" {
			line, _ := cr.FieldPos(col)
			return nil, loaderr.MalformedRow(name, line, fmt.Errorf("empty %s", column))
		}
		ix.values = append(ix.values, v)
	}
	return ix, nil
}

// BuildFromStore opens name in store and builds the index from it.
func BuildFromStore(ctx context.Context, store blob.Store, name, column string) (*Index, error) {
	rc, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Build(ctx, rc, name, column)
}

// Column returns the indexed column name.
func (ix *Index) Column() string { return ix.column }

// Len returns the number of parent rows.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.values)
}

// Lookup returns the parent value for the 1-based ordinal key.
func (ix *Index) Lookup(key int) (string, bool) {
	if ix == nil || key < 1 || key > len(ix.values) {
		return "", false
	}
	return ix.values[key-1], true
}

// Resolver pairs an Index with the value used for keys outside it.
type Resolver struct {
	Index    *Index
	Fallback func() string
}

// NowFallback returns the current time in layout, evaluated per call.
func NowFallback(layout string) func() string {
	return func() string { return time.Now().Format(layout) }
}

// Resolve returns the parent's exact value when key is in range and the
// fallback otherwise. resolved reports which one was used.
func (r Resolver) Resolve(key int) (value string, resolved bool, err error) {
	if v, ok := r.Index.Lookup(key); ok {
		return v, true, nil
	}
	if r.Fallback == nil {
		return "", false, fmt.Errorf("key %d outside parent range 1..%d and no fallback", key, r.Index.Len())
	}
	v := r.Fallback()
	if v == "" {
		return "", false, fmt.Errorf("fallback for key %d is empty", key)
	}
	return v, false, nil
}
