package csvio

import (
	"os"
	"testing"

	"property-reconciliation-engine/pkg/errors"
)

// Helper function to create a temporary CSV file
func createTempCSVFile(t *testing.T, content string) string {
	tmpFile, err := os.CreateTemp("", "test_*.csv")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()

	t.Cleanup(func() {
		os.Remove(tmpFile.Name())
	})

	return tmpFile.Name()
}

func TestDefaultReadConfig(t *testing.T) {
	config := DefaultReadConfig()

	if !config.HasHeader {
		t.Error("Expected HasHeader to be true")
	}
	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.TrimLeadingSpace {
		t.Error("Expected TrimLeadingSpace to be true")
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
}

func TestReadFile_Basic(t *testing.T) {
	content := `Date,Amount,Description
2025-03-01,-1500.00,HUNTINGTON MORTGAGE
2025-03-05,950.00,Tenant Rent
`
	path := createTempCSVFile(t, content)

	reader := NewReader(nil)
	result, err := reader.ReadFile(path, []string{"Date", "Amount"})
	if err != nil {
		t.Fatalf("ReadFile() unexpected error: %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}

	first := result.Rows[0]
	if first.Line != 2 {
		t.Errorf("first data row line = %d, want 2", first.Line)
	}
	if got := first.Get("Date"); got != "2025-03-01" {
		t.Errorf("Get(Date) = %q, want 2025-03-01", got)
	}
	if got := first.Get("amount"); got != "-1500.00" {
		t.Errorf("case-insensitive Get(amount) = %q, want -1500.00", got)
	}
	if !first.Has("description") {
		t.Error("expected description column to be present")
	}
	if first.Has("category") {
		t.Error("did not expect category column")
	}
}

func TestReadFile_MissingRequiredColumn(t *testing.T) {
	content := `Date,Description
2025-03-01,HUNTINGTON MORTGAGE
`
	path := createTempCSVFile(t, content)

	reader := NewReader(nil)
	_, err := reader.ReadFile(path, []string{"Date", "Amount"})
	if err == nil {
		t.Fatal("ReadFile() expected missing column error")
	}

	engineErr, ok := errors.AsEngineError(err)
	if !ok {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Code != errors.CodeMissingColumn {
		t.Errorf("error code = %s, want %s", engineErr.Code, errors.CodeMissingColumn)
	}
}

func TestReadFile_NoHeader(t *testing.T) {
	content := `2025-03-01,-1500.00,HUNTINGTON MORTGAGE
2025-03-05,950.00,Tenant Rent
`
	path := createTempCSVFile(t, content)

	config := DefaultReadConfig()
	config.HasHeader = false

	reader := NewReader(config)
	result, err := reader.ReadFile(path, []string{"date", "amount", "payee"})
	if err != nil {
		t.Fatalf("ReadFile() unexpected error: %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if got := result.Rows[0].Get("payee"); got != "HUNTINGTON MORTGAGE" {
		t.Errorf("Get(payee) = %q, want HUNTINGTON MORTGAGE", got)
	}
	if result.Rows[0].Line != 1 {
		t.Errorf("first data row line = %d, want 1 without header", result.Rows[0].Line)
	}
}

func TestReadFile_SkipsEmptyRows(t *testing.T) {
	content := `Date,Amount
2025-03-01,-1500.00

,
2025-03-05,950.00
`
	path := createTempCSVFile(t, content)

	reader := NewReader(nil)
	result, err := reader.ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile() unexpected error: %v", err)
	}

	if len(result.Rows) != 2 {
		t.Errorf("expected 2 rows after skipping empties, got %d", len(result.Rows))
	}
	// Line numbers reflect file position, not row index
	if result.Rows[1].Line != 5 {
		t.Errorf("second data row line = %d, want 5", result.Rows[1].Line)
	}
}

func TestReadFile_ShortRecordPadded(t *testing.T) {
	content := `Date,Amount,Memo
2025-03-01,-1500.00
`
	path := createTempCSVFile(t, content)

	reader := NewReader(nil)
	result, err := reader.ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile() unexpected error: %v", err)
	}

	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result.Rows))
	}
	if got := result.Rows[0].Get("Memo"); got != "" {
		t.Errorf("missing trailing field = %q, want empty string", got)
	}
}

func TestReadFile_UnreadableLineCollected(t *testing.T) {
	content := "Date,Amount\n2025-03-01,-1500.00\n\"broken,100.00\n2025-03-05,950.00\n"
	path := createTempCSVFile(t, content)

	reader := NewReader(nil)
	result, err := reader.ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile() should not fail for one bad line: %v", err)
	}

	if len(result.Skipped) == 0 {
		t.Fatal("expected the broken line to be collected in Skipped")
	}
	if len(result.Rows) == 0 {
		t.Error("expected readable rows to survive a bad line")
	}
}

func TestReadFile_NotFound(t *testing.T) {
	reader := NewReader(nil)
	_, err := reader.ReadFile("/nonexistent/export.csv", nil)
	if err == nil {
		t.Fatal("ReadFile() expected error for missing file")
	}

	engineErr, ok := errors.AsEngineError(err)
	if !ok {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Code != errors.CodeFileNotFound {
		t.Errorf("error code = %s, want %s", engineErr.Code, errors.CodeFileNotFound)
	}
}

func TestReadFile_BOMHeader(t *testing.T) {
	content := "\uFEFFDate,Amount\n2025-03-01,-1500.00\n"
	path := createTempCSVFile(t, content)

	reader := NewReader(nil)
	result, err := reader.ReadFile(path, []string{"Date"})
	if err != nil {
		t.Fatalf("ReadFile() unexpected error with BOM: %v", err)
	}
	if got := result.Rows[0].Get("Date"); got != "2025-03-01" {
		t.Errorf("Get(Date) = %q, want BOM-stripped header match", got)
	}
}

func TestReadFile_TabDelimited(t *testing.T) {
	content := "Date\tAmount\n2025-03-01\t-1500.00\n"
	path := createTempCSVFile(t, content)

	config := DefaultReadConfig()
	config.Delimiter = '\t'

	reader := NewReader(config)
	result, err := reader.ReadFile(path, []string{"Date", "Amount"})
	if err != nil {
		t.Fatalf("ReadFile() unexpected error: %v", err)
	}
	if got := result.Rows[0].Get("Amount"); got != "-1500.00" {
		t.Errorf("Get(Amount) = %q, want -1500.00", got)
	}
}
