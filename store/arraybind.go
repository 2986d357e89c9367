package store

import (
	"database/sql"
	"fmt"
	"time"
)

// columnArrays transposes rows into one typed slice per column, the shape
// go-ora expects for array binding. The first non-nil value decides the
// slice type; columns holding NULLs bind as sql.Null* slices.
func columnArrays(rows [][]interface{}, columns []string) ([]interface{}, error) {
	out := make([]interface{}, len(columns))
	for c, name := range columns {
		values := make([]interface{}, len(rows))
		for r, row := range rows {
			if len(row) != len(columns) {
				return nil, fmt.Errorf("row %d has %d values but expected %d columns", r, len(row), len(columns))
			}
			values[r] = row[c]
		}
		arr, err := columnArray(name, values)
		if err != nil {
			return nil, err
		}
		out[c] = arr
	}
	return out, nil
}

func columnArray(name string, values []interface{}) (interface{}, error) {
	sample, nulls := sampleValue(values)
	switch sample.(type) {
	case int, int32, int64, uint, uint32, uint64, bool:
		if nulls {
			return buildArray(name, "integer", values, nullable(asInt64))
		}
		return buildArray(name, "integer", values, asInt64)
	case float64, float32:
		if nulls {
			return buildArray(name, "float", values, nullable(asFloat64))
		}
		return buildArray(name, "float", values, asFloat64)
	case time.Time:
		if nulls {
			return buildArray(name, "time.Time", values, nullable(asTime))
		}
		return buildArray(name, "time.Time", values, asTime)
	case string, nil:
		if nulls {
			return buildArray(name, "string", values, nullable(asString))
		}
		return buildArray(name, "string", values, asString)
	}
	return nil, fmt.Errorf("column %s: cannot bind %T as an array", name, sample)
}

// sampleValue returns the first non-nil value and whether any value is nil.
func sampleValue(values []interface{}) (sample interface{}, nulls bool) {
	for _, v := range values {
		if v == nil {
			nulls = true
		} else if sample == nil {
			sample = v
		}
	}
	return sample, nulls
}

func buildArray[T any](name, want string, values []interface{}, conv func(interface{}) (T, bool)) ([]T, error) {
	arr := make([]T, len(values))
	for i, v := range values {
		t, ok := conv(v)
		if !ok {
			return nil, fmt.Errorf("column %s type mismatch: expected %s, got %T at row %d", name, want, v, i)
		}
		arr[i] = t
	}
	return arr, nil
}

// nullable lifts conv to the matching sql.Null type.
func nullable[T any](conv func(interface{}) (T, bool)) func(interface{}) (sql.Null[T], bool) {
	return func(v interface{}) (sql.Null[T], bool) {
		if v == nil {
			return sql.Null[T]{}, true
		}
		t, ok := conv(v)
		return sql.Null[T]{V: t, Valid: ok}, ok
	}
}

// asInt64 also maps bool to 1/0; Oracle has no boolean column type.
func asInt64(v interface{}) (int64, bool) {
	switch vv := v.(type) {
	case int64:
		return vv, true
	case int:
		return int64(vv), true
	case int32:
		return int64(vv), true
	case uint:
		return int64(vv), true
	case uint32:
		return int64(vv), true
	case uint64:
		return int64(vv), true
	case bool:
		if vv {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	}
	return 0, false
}

func asTime(v interface{}) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
