package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"shopload/blob"
	"shopload/bulkload"
	"shopload/loaderr"
)

// Config holds configuration for the CSV source.
type Config struct {
	Store     blob.Store
	FileName  string
	TableName string
	Delimiter rune
	// ExpectedHeaders, when set, must match the header row exactly and in order.
	ExpectedHeaders []string
	Parsers         []Parser
}

// Record is one raw CSV row together with the line it started on.
type Record struct {
	Line   int
	Fields []string
}

// CsvSource implements bulkload.Source over a CSV file in a blob.Store.
type CsvSource struct {
	cfg Config

	rc            io.ReadCloser
	reader        *csv.Reader
	columnIndices []int
}

var _ bulkload.Source = (*CsvSource)(nil)

// New creates a new CsvSource. The returned func closes the underlying file.
func New(cfg Config) (*CsvSource, func() error) {
	src := &CsvSource{
		cfg: cfg,
	}
	return src, src.Close
}

// Columns returns the target DB columns in parser order.
func (s *CsvSource) Columns() []string {
	cols := make([]string, len(s.cfg.Parsers))
	for i, p := range s.cfg.Parsers {
		cols[i] = p.DBColumn
	}
	return cols
}

// FileName returns the configured file name.
func (s *CsvSource) FileName() string { return s.cfg.FileName }

// Validate opens the CSV file, validates the header and prepares the column mapping.
// Calling it again reopens the file from the start.
func (s *CsvSource) Validate(ctx context.Context) error {
	if s.cfg.Store == nil {
		return fmt.Errorf("csv source %s: store is required", s.cfg.FileName)
	}
	location := s.cfg.Store.Location(s.cfg.FileName)
	slog.Info("Opening CSV for validation", bulkload.LogFieldFile, location, bulkload.LogFieldTable, s.cfg.TableName)

	if err := s.openFile(ctx); err != nil {
		return err
	}

	header, err := s.validateHeader()
	if err != nil {
		return err
	}

	if err := s.mapColumns(header); err != nil {
		return err
	}

	slog.Info("CSV validation successful", bulkload.LogFieldFile, location, bulkload.LogFieldTable, s.cfg.TableName)
	return nil
}

func (s *CsvSource) openFile(ctx context.Context) error {
	if s.rc != nil {
		_ = s.rc.Close()
		s.rc = nil
	}

	rc, err := s.cfg.Store.Open(ctx, s.cfg.FileName)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", s.cfg.FileName, err)
	}
	s.rc = rc

	s.reader = csv.NewReader(rc)
	if s.cfg.Delimiter != 0 {
		s.reader.Comma = s.cfg.Delimiter
	}
	// Enforce that all records have the same number of fields as the first record (header).
	s.reader.FieldsPerRecord = 0
	return nil
}

func (s *CsvSource) validateHeader() ([]string, error) {
	header, err := s.reader.Read()
	if err == io.EOF {
		return nil, loaderr.MalformedRow(s.cfg.FileName, 1, errors.New("missing header row"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", s.cfg.FileName, err)
	}

	if len(s.cfg.ExpectedHeaders) > 0 {
		if len(header) != len(s.cfg.ExpectedHeaders) {
			return nil, loaderr.MalformedRow(s.cfg.FileName, 1,
				fmt.Errorf("header count mismatch: got %d, want %d", len(header), len(s.cfg.ExpectedHeaders)))
		}
		for i, want := range s.cfg.ExpectedHeaders {
			if header[i] != want {
				return nil, loaderr.MalformedRow(s.cfg.FileName, 1,
					fmt.Errorf("header name mismatch at index %d: got '%s', want '%s'", i, header[i], want))
			}
		}
	}
	return header, nil
}

func (s *CsvSource) mapColumns(header []string) error {
	headerMap := make(map[string]int)
	for i, name := range header {
		headerMap[name] = i
	}

	if len(s.cfg.Parsers) == 0 {
		return fmt.Errorf("no parsers defined")
	}

	s.columnIndices = make([]int, len(s.cfg.Parsers))
	for i, p := range s.cfg.Parsers {
		if p.CSVHeader == "" {
			// No CSV column; the parser receives "".
			s.columnIndices[i] = -1
			continue
		}
		idx, ok := headerMap[p.CSVHeader]
		if !ok {
			return loaderr.MalformedRow(s.cfg.FileName, 1, fmt.Errorf("csv header '%s' not found in file", p.CSVHeader))
		}
		s.columnIndices[i] = idx
	}
	return nil
}

// Next reads the next data row as a Record.
func (s *CsvSource) Next(ctx context.Context) (interface{}, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("reader not initialized (call Validate first)")
	}
	fields, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, loaderr.MalformedRow(s.cfg.FileName, pe.Line, pe.Err)
		}
		return nil, fmt.Errorf("read csv %s failed: %w", s.cfg.FileName, err)
	}

	line, _ := s.reader.FieldPos(0)
	return Record{Line: line, Fields: fields}, nil
}

// Convert transforms a Record into DB values using the configured Parsers.
// Coercion failures are reported as malformed rows carrying the line number.
func (s *CsvSource) Convert(rawRow interface{}) ([]interface{}, error) {
	rec, ok := rawRow.(Record)
	if !ok {
		return nil, fmt.Errorf("expected csvsource.Record, got %T", rawRow)
	}

	values := make([]interface{}, len(s.cfg.Parsers))
	for i, parser := range s.cfg.Parsers {
		val, err := s.parseField(i, parser, rec.Fields)
		if err != nil {
			return nil, loaderr.MalformedRow(s.cfg.FileName, rec.Line, err)
		}
		values[i] = val
	}

	return values, nil
}

func (s *CsvSource) parseField(index int, parser Parser, row []string) (interface{}, error) {
	csvIdx := s.columnIndices[index]
	var csvVal string

	if csvIdx != -1 {
		if csvIdx >= len(row) {
			return nil, fmt.Errorf("csv index %d out of bounds for row with length %d", csvIdx, len(row))
		}
		csvVal = row[csvIdx]
	}

	if parser.ParserFunc != nil {
		val, err := parser.ParserFunc(csvVal)
		if err != nil {
			return nil, fmt.Errorf("parse error for column '%s' (csv header '%s') value '%s': %w", parser.DBColumn, parser.CSVHeader, csvVal, err)
		}
		return val, nil
	}
	return csvVal, nil
}

// Close closes the underlying file handle.
func (s *CsvSource) Close() error {
	if s.rc != nil {
		err := s.rc.Close()
		s.rc = nil
		return err
	}
	return nil
}
