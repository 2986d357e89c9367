package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnArrays(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := [][]interface{}{
		{1, "Ann", nil, 9.5, true, when},
		{2, "Bob", "555-0100", float32(1.5), false, when},
	}
	cols := []string{"ID", "Name", "Phone", "Price", "IsActive", "Joined"}

	arrays, err := columnArrays(rows, cols)
	require.NoError(t, err)
	require.Len(t, arrays, 6)

	assert.Equal(t, []int64{1, 2}, arrays[0])
	assert.Equal(t, []string{"Ann", "Bob"}, arrays[1])
	assert.Equal(t, []sql.Null[string]{{}, {V: "555-0100", Valid: true}}, arrays[2])
	assert.Equal(t, []float64{9.5, 1.5}, arrays[3])
	assert.Equal(t, []int64{1, 0}, arrays[4])
	assert.Equal(t, []time.Time{when, when}, arrays[5])
}

func TestColumnArraysAllNull(t *testing.T) {
	arrays, err := columnArrays([][]interface{}{{nil}, {nil}}, []string{"Address"})
	require.NoError(t, err)
	assert.Equal(t, []sql.Null[string]{{}, {}}, arrays[0])
}

func TestColumnArraysTypeMismatch(t *testing.T) {
	_, err := columnArrays([][]interface{}{{1}, {"two"}}, []string{"Quantity"})
	assert.EqualError(t, err, "column Quantity type mismatch: expected integer, got string at row 1")

	_, err = columnArrays([][]interface{}{{1, 2}, {3}}, []string{"A", "B"})
	assert.ErrorContains(t, err, "row 1 has 1 values but expected 2 columns")

	_, err = columnArrays([][]interface{}{{[]byte("x")}}, []string{"Blob"})
	assert.ErrorContains(t, err, "cannot bind []uint8")
}
