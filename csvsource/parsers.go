package csvsource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the timestamp format used by every CSV file.
const DateTimeLayout = "2006-01-02 15:04:05"

// ParserFunc defines the function signature for converting a CSV string value to a DB value.
type ParserFunc func(csvVal string) (interface{}, error)

// Parser defines the mapping and conversion logic for a single column.
type Parser struct {
	CSVHeader  string     // The name of the header in the CSV file
	DBColumn   string     // The name of the target column in the database
	ParserFunc ParserFunc // Function to convert the string value. If nil, returns string as-is.
}

var errEmpty = errors.New("value is required")

// ParseInt converts a string to an int.
func ParseInt(s string) (interface{}, error) {
	return strconv.Atoi(s)
}

// ParseFloat converts a string to a float64.
func ParseFloat(s string) (interface{}, error) {
	return strconv.ParseFloat(s, 64)
}

// ParseString returns the string as-is (identity).
func ParseString(s string) (interface{}, error) {
	return s, nil
}

// ParseRequiredString rejects empty values.
func ParseRequiredString(s string) (interface{}, error) {
	if s == "" {
		return nil, errEmpty
	}
	return s, nil
}

// ParseNullableString returns nil if the string is empty, otherwise returns the string.
func ParseNullableString(s string) (interface{}, error) {
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// ParseNullableInt returns nil if the string is empty, otherwise converts to int.
func ParseNullableInt(s string) (interface{}, error) {
	if s == "" {
		return nil, nil
	}
	return strconv.Atoi(s)
}

// ParseBool accepts 0/1 as written by the generator, plus the forms strconv understands.
func ParseBool(s string) (interface{}, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// ParseDateTime parses a DateTimeLayout timestamp.
func ParseDateTime(s string) (interface{}, error) {
	if s == "" {
		return nil, errEmpty
	}
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return nil, fmt.Errorf("want layout %q: %w", DateTimeLayout, err)
	}
	return t, nil
}
