// Package csvio reads source export files into loosely-typed rows for the
// adapters.
//
// The engine's input boundary is a sequence of rows mapping field name to
// string value; dates and amounts stay unparsed strings here. Format
// conventions are resolved by the adapters, never by this reader.
//
// The reader handles the usual variations found in real exports:
//   - Header presence or absence (absent headers use configured names)
//   - Different delimiters
//   - Empty and padding rows
//   - Encoding problems (non-UTF-8 bytes are reported, not silently mangled)
//
// Structurally unreadable lines are collected and reported per row; a bad
// row never aborts the whole file.
package csvio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// Row is one source export row: field values keyed by case-folded column
// name, plus the 1-based line number for error reporting
type Row struct {
	Line   int
	Fields map[string]string
}

// Get returns the value of the named column, matching case-insensitively.
// Missing columns return the empty string.
func (r Row) Get(column string) string {
	return r.Fields[foldKey(column)]
}

// Has reports whether the named column is present on this row
func (r Row) Has(column string) bool {
	_, ok := r.Fields[foldKey(column)]
	return ok
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SkippedRow records a line the reader could not structurally parse
type SkippedRow struct {
	Line   int
	Reason string
}

// ReadResult holds the rows read from one file together with the original
// header names and any structurally unreadable lines
type ReadResult struct {
	Rows    []Row
	Headers []string
	Skipped []SkippedRow
}

// ReadConfig holds configuration for reading export files
type ReadConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultReadConfig returns a configuration with sensible defaults
func DefaultReadConfig() *ReadConfig {
	return &ReadConfig{
		HasHeader:        true,
		Delimiter:        ',',
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// Reader reads CSV export files into rows
type Reader struct {
	config *ReadConfig
	logger logger.Logger
}

// NewReader creates a Reader with the given configuration
func NewReader(config *ReadConfig) *Reader {
	if config == nil {
		config = DefaultReadConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("csv_reader")
	log.WithFields(logger.Fields{
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
	}).Debug("Created CSV reader")

	return &Reader{
		config: config,
		logger: log,
	}
}

// ReadFile reads all rows from the file at path. When the configuration has
// no header row, requiredColumns provides the positional column names.
// Required columns absent from the header fail the whole file; individual
// unreadable lines are collected in the result instead.
func (r *Reader) ReadFile(path string, requiredColumns []string) (*ReadResult, error) {
	r.logger.WithField("file_path", path).Debug("Opening export file")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, path, err)
	}
	defer file.Close()

	if r.config.ValidateEncoding {
		if err := r.validateEncoding(file, path); err != nil {
			return nil, err
		}
		if _, err := file.Seek(0, 0); err != nil {
			return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	return r.readAll(file, path, requiredColumns)
}

func (r *Reader) readAll(file io.Reader, path string, requiredColumns []string) (*ReadResult, error) {
	reader := csv.NewReader(file)
	reader.Comma = r.config.Delimiter
	reader.Comment = r.config.Comment
	reader.TrimLeadingSpace = r.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1 // exports pad or truncate trailing fields

	result := &ReadResult{}
	line := 0

	var headers []string
	if r.config.HasHeader {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("file is empty")).
				WithSuggestion("Ensure the file contains header and data rows")
		}
		if err != nil {
			return nil, errors.NewEnhancedParseError(errors.CodeInvalidFormat,
				&errors.ParseContext{File: path, Line: 1},
				"cannot read header row", err)
		}
		line = 1
		headers = cleanHeaders(record)
	} else {
		headers = append([]string(nil), requiredColumns...)
	}

	if len(requiredColumns) > 0 {
		if missing := missingColumns(requiredColumns, headers); len(missing) > 0 {
			return nil, errors.MissingColumnError(path, requiredColumns, headers)
		}
	}
	result.Headers = headers

	foldedHeaders := make([]string, len(headers))
	for i, h := range headers {
		foldedHeaders[i] = foldKey(h)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{
				Line:   line,
				Reason: fmt.Sprintf("unreadable CSV line: %v", err),
			})
			continue
		}

		if r.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		fields := make(map[string]string, len(foldedHeaders))
		for i, key := range foldedHeaders {
			if i < len(record) {
				fields[key] = strings.TrimSpace(record[i])
			} else {
				fields[key] = ""
			}
		}
		result.Rows = append(result.Rows, Row{Line: line, Fields: fields})
	}

	r.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(result.Rows),
		"skipped":   len(result.Skipped),
	}).Info("Read export file")

	return result, nil
}

// validateEncoding checks that the file starts with valid UTF-8 text
func (r *Reader) validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.EncodingError(path, lineNum,
				fmt.Errorf("invalid UTF-8 encoding detected"))
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	return nil
}

func cleanHeaders(record []string) []string {
	headers := make([]string, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		h = strings.TrimPrefix(h, "\uFEFF") // byte order mark on the first column
		headers[i] = h
	}
	return headers
}

func missingColumns(required, actual []string) []string {
	present := make(map[string]bool, len(actual))
	for _, h := range actual {
		present[foldKey(h)] = true
	}

	var missing []string
	for _, col := range required {
		if !present[foldKey(col)] {
			missing = append(missing, col)
		}
	}
	return missing
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
