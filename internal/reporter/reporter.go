// Package reporter renders reconciliation reports for people and machines.
//
// Supported output formats:
//   - Console: human-readable grouped output for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: flat rows for spreadsheet review
//
// Every format presents the same report: summary figures first, then the
// results grouped by classification in a fixed order, then the rows that
// were rejected during ingestion. Rendering never touches stored data.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/reconciler"
	"property-reconciliation-engine/pkg/errors"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// OutputFormatNames returns the supported format names for flag help text
func OutputFormatNames() []string {
	return []string{string(FormatConsole), string(FormatJSON), string(FormatCSV)}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Format selects the output rendering
	Format OutputFormat `json:"format"`

	// IncludeMatched lists the matched pairs in full rather than only
	// counting them in the summary
	IncludeMatched bool `json:"include_matched"`

	// IncludeRejected appends the rows that failed normalization
	IncludeRejected bool `json:"include_rejected"`

	// MaxGroupItems truncates each console group after this many lines.
	// Zero means no truncation; a discrepancy list cut short defeats a
	// monthly close, so truncation is strictly opt-in.
	MaxGroupItems int `json:"max_group_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		IncludeMatched:  false,
		IncludeRejected: true,
		MaxGroupItems:   0,
		CSVDelimiter:    ',',
		CSVHeaders:      true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report format",
			string(c.Format), nil).
			WithSuggestion(fmt.Sprintf("supported formats: %v", OutputFormatNames()))
	}
	if c.MaxGroupItems < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max group items",
			c.MaxGroupItems, nil).
			WithSuggestion("use zero to list every result, or a positive limit")
	}
	if c.CSVDelimiter == 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "csv delimiter",
			c.CSVDelimiter, nil).
			WithSuggestion("use a single delimiter character such as ',' or ';'")
	}
	return nil
}

// ReportGenerator renders reconciliation reports in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the given configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReportGenerator{config: config}, nil
}

// Config returns the generator's configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// GenerateReport renders the report and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(report *reconciler.Report, writer io.Writer) error {
	if report == nil {
		return errors.InternalError("report generation", fmt.Errorf("report cannot be nil"))
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report format",
			string(rg.config.Format), nil)
	}
}

// generateConsoleReport renders a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *reconciler.Report, writer io.Writer) error {
	fmt.Fprintf(writer, "PROPERTY RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Window:   %s to %s\n",
		report.WindowStart.Format(models.DateLayout), report.WindowEnd.Format(models.DateLayout))
	if report.SnapshotID != "" {
		fmt.Fprintf(writer, "Snapshot: %s\n", report.SnapshotID)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(report.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== FINANCIAL SUMMARY ===\n")
	rg.printFinancialSummary(report.Summary, writer)
	fmt.Fprintf(writer, "\n")

	for _, group := range report.Groups {
		if len(group.Results) == 0 {
			continue
		}
		if group.Classification == models.ClassificationMatched && !rg.config.IncludeMatched {
			continue
		}
		fmt.Fprintf(writer, "=== %s (%d) ===\n", groupTitle(group.Classification), len(group.Results))
		rg.printGroup(group, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeRejected && len(report.Rejected) > 0 {
		fmt.Fprintf(writer, "=== REJECTED ROWS (%d) ===\n", len(report.Rejected))
		rg.printRejected(report.Rejected, writer)
		fmt.Fprintf(writer, "\n")
	}

	return nil
}

// generateJSONReport renders a structured JSON report
func (rg *ReportGenerator) generateJSONReport(report *reconciler.Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterReport(report))
}

// generateCSVReport renders one row per result, discrepancies and rejected
// rows included, so the whole report lands in a single spreadsheet
func (rg *ReportGenerator) generateCSVReport(report *reconciler.Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Classification",
			"Date",
			"Source_Ref",
			"Source_Payee",
			"Source_Amount",
			"Truth_Ref",
			"Truth_Payee",
			"Truth_Amount",
			"Confidence",
			"Note",
		}
		if err := csvWriter.Write(headers); err != nil {
			return errors.Wrap(err, errors.CategoryFile, errors.CodeFilePermission,
				"failed to write CSV headers")
		}
	}

	for _, group := range report.Groups {
		if group.Classification == models.ClassificationMatched && !rg.config.IncludeMatched {
			continue
		}
		for _, result := range group.Results {
			if err := csvWriter.Write(rg.csvRow(result)); err != nil {
				return errors.Wrap(err, errors.CategoryFile, errors.CodeFilePermission,
					"failed to write CSV result row")
			}
		}
	}

	if rg.config.IncludeRejected {
		for _, rejected := range report.Rejected {
			row := []string{
				"rejected-row",
				"",
				fmt.Sprintf("%s:%d", rejected.SourceID, rejected.Line),
				"",
				"",
				"",
				"",
				"",
				"",
				rejectedNote(rejected),
			}
			if err := csvWriter.Write(row); err != nil {
				return errors.Wrap(err, errors.CategoryFile, errors.CodeFilePermission,
					"failed to write CSV rejected row")
			}
		}
	}

	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(summary reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Raw Records:        %d\n", summary.RawCount)
	fmt.Fprintf(writer, "Truth Records:      %d\n", summary.TruthCount)
	fmt.Fprintf(writer, "Rejected Rows:      %d\n", summary.RejectedRows)
	fmt.Fprintf(writer, "Matched:            %d (%.1f%%)\n",
		summary.Matched, summary.MatchRate*100.0)
	fmt.Fprintf(writer, "Amount Mismatches:  %d\n", summary.AmountMismatches)
	fmt.Fprintf(writer, "Missing From Truth: %d\n", summary.MissingFromTruth)
	fmt.Fprintf(writer, "Extra In Truth:     %d\n", summary.ExtraInTruth)
	fmt.Fprintf(writer, "Discrepancies:      %d\n", summary.Discrepancies())
}

func (rg *ReportGenerator) printFinancialSummary(summary reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Net Source Amount: %s\n", models.FormatCents(summary.NetRawCents))
	fmt.Fprintf(writer, "Net Truth Amount:  %s\n", models.FormatCents(summary.NetTruthCents))
	fmt.Fprintf(writer, "Net Difference:    %s\n", models.FormatCents(summary.NetDifferenceCents))
}

func (rg *ReportGenerator) printGroup(group reconciler.Group, writer io.Writer) {
	for i, result := range group.Results {
		if rg.config.MaxGroupItems > 0 && i >= rg.config.MaxGroupItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(group.Results)-rg.config.MaxGroupItems)
			break
		}
		fmt.Fprintf(writer, "  %d. %s\n", i+1, resultLine(result))
	}
}

func (rg *ReportGenerator) printRejected(rejected []models.RejectedRow, writer io.Writer) {
	for i, row := range rejected {
		fmt.Fprintf(writer, "  %d. %s line %d: %s\n", i+1, row.SourceID, row.Line, rejectedNote(row))
	}
}

// resultLine renders one result the way its classification reads best
func resultLine(result *models.MatchResult) string {
	date := result.ResultDate().Format(models.DateLayout)
	switch result.Classification {
	case models.ClassificationMatched:
		return fmt.Sprintf("Date: %s, Source: %s, Truth: %s, Payee: %s, Amount: %s, Confidence: %.2f",
			date, result.Raw.ExternalRef, result.Truth.ExternalRef,
			result.Raw.Payee, models.FormatCents(result.Raw.AmountCents), result.Confidence)
	case models.ClassificationAmountMismatch:
		return fmt.Sprintf("Date: %s, Source: %s, Truth: %s, Payee: %s, %s, Confidence: %.2f",
			date, result.Raw.ExternalRef, result.Truth.ExternalRef,
			result.Raw.Payee, result.Note, result.Confidence)
	case models.ClassificationMissingFromTruth:
		return fmt.Sprintf("Date: %s, Source: %s, Payee: %s, Amount: %s, no truth record found",
			date, result.Raw.ExternalRef, result.Raw.Payee,
			models.FormatCents(result.Raw.AmountCents))
	case models.ClassificationExtraInTruth:
		return fmt.Sprintf("Date: %s, Truth: %s, Payee: %s, Amount: %s, no source record found",
			date, result.Truth.ExternalRef, result.Truth.Payee,
			models.FormatCents(result.Truth.AmountCents))
	default:
		return result.String()
	}
}

// groupTitle maps a classification to its console section heading
func groupTitle(classification models.Classification) string {
	switch classification {
	case models.ClassificationMatched:
		return "MATCHED"
	case models.ClassificationAmountMismatch:
		return "AMOUNT MISMATCHES"
	case models.ClassificationMissingFromTruth:
		return "MISSING FROM TRUTH"
	case models.ClassificationExtraInTruth:
		return "EXTRA IN TRUTH"
	default:
		return string(classification)
	}
}

// rejectedNote renders a rejected row's reason with the offending field
// and value when the parser captured them
func rejectedNote(row models.RejectedRow) string {
	if row.Field == "" {
		return row.Reason
	}
	if row.Value == "" {
		return fmt.Sprintf("%s (field %s)", row.Reason, row.Field)
	}
	return fmt.Sprintf("%s (field %s, value %q)", row.Reason, row.Field, row.Value)
}

// csvRow flattens one result into a CSV record
func (rg *ReportGenerator) csvRow(result *models.MatchResult) []string {
	row := []string{
		string(result.Classification),
		result.ResultDate().Format(models.DateLayout),
		"", "", "", "", "", "",
		"",
		result.Note,
	}
	if result.Raw != nil {
		row[2] = result.Raw.ExternalRef
		row[3] = result.Raw.Payee
		row[4] = models.FormatCents(result.Raw.AmountCents)
	}
	if result.Truth != nil {
		row[5] = result.Truth.ExternalRef
		row[6] = result.Truth.Payee
		row[7] = models.FormatCents(result.Truth.AmountCents)
	}
	if result.Raw != nil && result.Truth != nil {
		row[8] = strconv.FormatFloat(result.Confidence, 'f', 2, 64)
	}
	return row
}

// filterReport applies the include flags before JSON encoding. The copy is
// shallow: groups are duplicated so the caller's report stays intact, the
// results themselves are shared.
func (rg *ReportGenerator) filterReport(report *reconciler.Report) *reconciler.Report {
	out := *report
	if !rg.config.IncludeMatched {
		groups := make([]reconciler.Group, len(report.Groups))
		copy(groups, report.Groups)
		for i := range groups {
			if groups[i].Classification == models.ClassificationMatched {
				groups[i].Results = nil
			}
		}
		out.Groups = groups
	}
	if !rg.config.IncludeRejected {
		out.Rejected = nil
	}
	return &out
}
