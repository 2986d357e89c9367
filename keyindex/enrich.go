package keyindex

import (
	"context"
	"fmt"
	"log/slog"

	"shopload/blob"
	"shopload/bulkload"
	"shopload/csvsource"
)

// EnrichConfig describes how a child source is joined to its parent file.
type EnrichConfig struct {
	Store        blob.Store
	ParentFile   string
	ParentColumn string
	// KeyColumn and TargetColumn index the converted child values.
	KeyColumn    int
	TargetColumn int
	// Parse converts the resolved raw value to the DB value.
	Parse    csvsource.ParserFunc
	Fallback func() string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// EnrichSource wraps a bulkload.Source and overwrites TargetColumn with the
// parent value referenced by KeyColumn.
type EnrichSource struct {
	inner     bulkload.Source
	cfg       EnrichConfig
	resolver  Resolver
	fallbacks int
}

var _ bulkload.Source = (*EnrichSource)(nil)

// Enrich wraps inner. When index is nil it is built from the parent file
// during Validate, before any child row is read.
func Enrich(inner bulkload.Source, cfg EnrichConfig, index *Index) *EnrichSource {
	return &EnrichSource{
		inner:    inner,
		cfg:      cfg,
		resolver: Resolver{Index: index, Fallback: cfg.Fallback},
	}
}

func (e *EnrichSource) Validate(ctx context.Context) error {
	if e.resolver.Index == nil {
		ix, err := BuildFromStore(ctx, e.cfg.Store, e.cfg.ParentFile, e.cfg.ParentColumn)
		if err != nil {
			return fmt.Errorf("build key index from %s: %w", e.cfg.ParentFile, err)
		}
		e.resolver.Index = ix
		e.logger().Info("Key index built", bulkload.LogFieldFile, e.cfg.ParentFile, "column", e.cfg.ParentColumn, bulkload.LogFieldRowCount, ix.Len())
	}
	return e.inner.Validate(ctx)
}

func (e *EnrichSource) Next(ctx context.Context) (interface{}, error) {
	return e.inner.Next(ctx)
}

func (e *EnrichSource) Convert(rawRow interface{}) ([]interface{}, error) {
	values, err := e.inner.Convert(rawRow)
	if err != nil {
		return nil, err
	}
	if e.cfg.KeyColumn >= len(values) || e.cfg.TargetColumn >= len(values) {
		return nil, fmt.Errorf("row has %d values, key column %d / target column %d out of range", len(values), e.cfg.KeyColumn, e.cfg.TargetColumn)
	}

	key, err := toKey(values[e.cfg.KeyColumn])
	if err != nil {
		return nil, err
	}
	raw, resolved, err := e.resolver.Resolve(key)
	if err != nil {
		return nil, err
	}
	if !resolved {
		e.fallbacks++
	}

	var v interface{} = raw
	if e.cfg.Parse != nil {
		if v, err = e.cfg.Parse(raw); err != nil {
			return nil, fmt.Errorf("parse resolved %s %q for key %d: %w", e.cfg.ParentColumn, raw, key, err)
		}
	}
	values[e.cfg.TargetColumn] = v
	return values, nil
}

func (e *EnrichSource) logger() *slog.Logger {
	if e.cfg.Logger != nil {
		return e.cfg.Logger
	}
	return slog.Default()
}

// Fallbacks returns how many rows so far referenced a key outside the parent file.
func (e *EnrichSource) Fallbacks() int { return e.fallbacks }

// Close closes the inner source when it can be closed.
func (e *EnrichSource) Close() error {
	if c, ok := e.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func toKey(v interface{}) (int, error) {
	switch k := v.(type) {
	case int:
		return k, nil
	case int64:
		return int(k), nil
	case int32:
		return int(k), nil
	default:
		return 0, fmt.Errorf("key value %v has type %T, want an integer", v, v)
	}
}
