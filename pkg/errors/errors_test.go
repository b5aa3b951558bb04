package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeMalformedRecord,
			message:    "malformed record",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeStorageIO,
			message:    "write failed",
			cause:      errors.New("disk full"),
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *EngineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			// Test basic properties
			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}

			// Test exit code
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}

			// Test error interface
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}

			// Test unwrapping
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestEngineErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	// Test context
	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	// Test suggestion
	if err.Suggestion != "check file path" {
		t.Errorf("expected suggestion 'check file path', got %s", err.Suggestion)
	}

	// Test error string with suggestion
	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/file.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Code != CodeFilePermission {
			t.Errorf("expected permission code, got %s", err.Code)
		}
		if err.Context["file_path"] != "/test/file.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("MalformedRecordError", func(t *testing.T) {
		err := MalformedRecordError("bank-statement", "amount", "12.3.4", "not a decimal")

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Code != CodeMalformedRecord {
			t.Errorf("expected malformed_record code, got %s", err.Code)
		}
		if err.Context["source_id"] != "bank-statement" {
			t.Errorf("expected source_id context, got %v", err.Context["source_id"])
		}
		if err.Context["value"] != "12.3.4" {
			t.Errorf("expected value context, got %v", err.Context["value"])
		}
	})

	t.Run("SplitInvariantError", func(t *testing.T) {
		err := SplitInvariantError("TXN-42", 150000, 149900)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Code != CodeSplitInvariant {
			t.Errorf("expected split_invariant code, got %s", err.Code)
		}
		if err.Context["total_cents"] != int64(150000) {
			t.Errorf("expected total_cents context, got %v", err.Context["total_cents"])
		}
		if err.Context["component_sum_cents"] != int64(149900) {
			t.Errorf("expected component_sum_cents context, got %v", err.Context["component_sum_cents"])
		}
		if !strings.Contains(err.Message, "TXN-42") {
			t.Errorf("expected message to name the ref, got %s", err.Message)
		}
	})

	t.Run("DuplicateIngestionWarning", func(t *testing.T) {
		err := DuplicateIngestionWarning("bank-statement", "TXN-1")

		if err.Category != CategoryStorage {
			t.Errorf("expected storage category, got %s", err.Category)
		}
		if err.Code != CodeDuplicateIngestion {
			t.Errorf("expected duplicate_ingestion code, got %s", err.Code)
		}
		if err.Context["external_ref"] != "TXN-1" {
			t.Errorf("expected external_ref context, got %v", err.Context["external_ref"])
		}
	})

	t.Run("TruthReplaceError", func(t *testing.T) {
		cause := errors.New("database is locked")
		err := TruthReplaceError("snap-abc", cause)

		if err.Category != CategoryStorage {
			t.Errorf("expected storage category, got %s", err.Category)
		}
		if err.Code != CodeTruthReplaceFailed {
			t.Errorf("expected truth_replace_failed code, got %s", err.Code)
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
		if !strings.Contains(err.Message, "previous snapshot remains current") {
			t.Errorf("expected message to state the prior snapshot survives, got %s", err.Message)
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errors := []*EngineError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryFile, CodeFilePermission, "error 2"),
		New(CategoryParse, CodeInvalidFormat, "error 3"),
		New(CategoryParse, CodeMalformedRecord, "error 4"),
		New(CategoryValidation, CodeSplitInvariant, "error 5"),
	}

	summary := NewErrorSummary(errors)

	// Test total count
	if summary.Total != 5 {
		t.Errorf("expected total 5, got %d", summary.Total)
	}

	// Test category counts
	if summary.ByCategory[CategoryFile] != 2 {
		t.Errorf("expected 2 file errors, got %d", summary.ByCategory[CategoryFile])
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if summary.ByCategory[CategoryValidation] != 1 {
		t.Errorf("expected 1 validation error, got %d", summary.ByCategory[CategoryValidation])
	}

	// Test code counts
	if summary.ByCode[CodeFileNotFound] != 1 {
		t.Errorf("expected 1 file not found error, got %d", summary.ByCode[CodeFileNotFound])
	}

	// Test error string
	errStr := summary.Error()
	if errStr == "" {
		t.Error("expected non-empty error string")
	}

	// Test category checks
	if !summary.HasCategory(CategoryFile) {
		t.Error("expected to have file category")
	}
	if summary.HasCategory(CategoryStorage) {
		t.Error("expected not to have storage category")
	}

	// Test exit code (should be highest priority)
	actualCode := summary.GetExitCode()
	if actualCode == 0 {
		t.Error("expected non-zero exit code")
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary([]*EngineError{})

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestSingleErrorSummary(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "single error")
	summary := NewErrorSummary([]*EngineError{err})

	if summary.Total != 1 {
		t.Errorf("expected total 1, got %d", summary.Total)
	}
	if summary.Error() != "single error" {
		t.Errorf("expected 'single error', got '%s'", summary.Error())
	}
}

func TestIsEngineError(t *testing.T) {
	engineErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if !IsEngineError(engineErr) {
		t.Error("expected IsEngineError to return true for EngineError")
	}
	if IsEngineError(genericErr) {
		t.Error("expected IsEngineError to return false for generic error")
	}
	if IsEngineError(nil) {
		t.Error("expected IsEngineError to return false for nil")
	}
}

func TestAsEngineError(t *testing.T) {
	engineErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	// Test with EngineError
	if extracted, ok := AsEngineError(engineErr); !ok || extracted != engineErr {
		t.Error("expected AsEngineError to extract EngineError")
	}

	// Test with generic error
	if _, ok := AsEngineError(genericErr); ok {
		t.Error("expected AsEngineError to return false for generic error")
	}

	// Test with nil
	if _, ok := AsEngineError(nil); ok {
		t.Error("expected AsEngineError to return false for nil")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	engineErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	// Test with EngineError (should return as-is)
	result1 := WrapIfNeeded(engineErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if result1 != engineErr {
		t.Error("expected WrapIfNeeded to return original EngineError")
	}

	// Test with generic error (should wrap)
	result2 := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if result2.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}
	if result2.Category != CategoryParse {
		t.Error("expected wrapped error to have correct category")
	}

	// Test with nil (should return nil)
	result3 := WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped")
	if result3 != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{CategoryStorage, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}

func TestParseErrorCollector(t *testing.T) {
	collector := NewParseErrorCollector(3, true)

	if collector.HasErrors() {
		t.Error("expected new collector to have no errors")
	}

	// nil errors are ignored
	if !collector.Add(nil) {
		t.Error("expected Add(nil) to allow continuation")
	}

	cont := collector.Add(InvalidAmountError("test.csv", 2, "amount", "abc"))
	if !cont {
		t.Error("expected continuation after first error")
	}
	collector.Add(InvalidDateError("test.csv", 3, "date", "13/45/99"))

	// Hitting maxErrors stops processing
	cont = collector.Add(InvalidAmountError("test.csv", 4, "amount", "xyz"))
	if cont {
		t.Error("expected continuation to stop at max errors")
	}

	if len(collector.GetErrors()) != 3 {
		t.Errorf("expected 3 collected errors, got %d", len(collector.GetErrors()))
	}

	summary := collector.GetSummary()
	if summary.Total != 3 {
		t.Errorf("expected summary total 3, got %d", summary.Total)
	}
	if !summary.HasCategory(CategoryParse) {
		t.Error("expected summary to contain parse category")
	}

	collector.Clear()
	if collector.HasErrors() {
		t.Error("expected collector to be empty after Clear")
	}
}

func TestEnhancedParseErrorFormatting(t *testing.T) {
	err := InvalidDateError("/data/bank_export.csv", 17, "Date", "not-a-date")

	// Error string includes the location
	msg := err.Error()
	if !strings.Contains(msg, "bank_export.csv:17") {
		t.Errorf("expected error to include file:line, got %s", msg)
	}

	// Detailed output includes value and expectation
	detailed := err.GetDetailedError()
	for _, want := range []string{"not-a-date", "Date", "YYYY-MM-DD"} {
		if !strings.Contains(detailed, want) {
			t.Errorf("expected detailed error to contain %q, got:\n%s", want, detailed)
		}
	}
}

func TestMissingColumnError(t *testing.T) {
	err := MissingColumnError("export.csv",
		[]string{"Date", "Amount", "Description"},
		[]string{"date", "description"})

	if err.Code != CodeMissingColumn {
		t.Errorf("expected missing_column code, got %s", err.Code)
	}
	if err.Recoverable {
		t.Error("expected missing column error to be unrecoverable")
	}
	if !strings.Contains(err.Message, "Amount") {
		t.Errorf("expected message to name the missing column, got %s", err.Message)
	}
	// Present columns are matched case-insensitively
	if strings.Contains(err.Message, "Description") {
		t.Errorf("did not expect present column in message, got %s", err.Message)
	}
}
