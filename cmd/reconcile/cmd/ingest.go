package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"property-reconciliation-engine/cmd/reconcile/config"
	"property-reconciliation-engine/internal/adapters"
	"property-reconciliation-engine/internal/csvio"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/store"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	ingestFile     string
	ingestSourceID string
	ingestFormat   string
	ingestBatchID  string
)

// ingestCmd loads one source export into the raw ledger
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a source CSV export into the raw ledger",
	Long: `Ingest normalizes a bank statement or property manager export and
appends it to the raw transaction ledger. Re-ingesting the same file is
safe: unchanged records are skipped and changed records are appended as
new versions, never overwritten.

Examples:
  reconcile ingest --file checking.csv --format huntington --source-id huntington-checking
  reconcile ingest --file rentvine.csv --format property-manager --source-id rentvine
  reconcile ingest --file export.csv --format generic --source-id landlord-visa`,
	PreRunE: validateIngestFlags,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "CSV export to ingest (required)")
	ingestCmd.Flags().StringVarP(&ingestSourceID, "source-id", "s", "", "stable identifier of the source account (required)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "generic",
		fmt.Sprintf("source format: %s", strings.Join(config.SourceFormatNames(), ", ")))
	ingestCmd.Flags().StringVar(&ingestBatchID, "batch-id", "", "batch identifier (default: generated)")
}

// validateIngestFlags validates the ingest command flags
func validateIngestFlags(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(ingestFile, "ingest file"); err != nil {
		return err
	}

	if strings.TrimSpace(ingestSourceID) == "" {
		return fmt.Errorf("source-id is required")
	}

	if !knownSourceFormat(ingestFormat) {
		return fmt.Errorf("invalid format '%s' (valid formats: %s)",
			ingestFormat, strings.Join(config.SourceFormatNames(), ", "))
	}

	return nil
}

// knownSourceFormat reports whether name is an accepted --format value
func knownSourceFormat(name string) bool {
	for _, known := range config.SourceFormatNames() {
		if name == known {
			return true
		}
	}
	return false
}

// runIngest executes the ingest command
func runIngest(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")
	op := logger.NewOperationLogger(log, "ingest")

	setup, err := config.CreateSourceSetup(ingestFormat, ingestSourceID)
	if err != nil {
		return err
	}

	readResult, err := csvio.NewReader(setup.Read).ReadFile(ingestFile, setup.Required)
	if err != nil {
		op.Error("Could not read export", err, logger.Fields{"file": ingestFile})
		return err
	}

	op.Step("normalize", logger.Fields{
		"file":   ingestFile,
		"format": ingestFormat,
		"rows":   len(readResult.Rows),
	})
	produced, err := setup.Adapter.Produce(readResult.Rows)
	if err != nil {
		op.Error("Normalization failed", err, nil)
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rejected := append(produced.Rejected, rejectedFromSkipped(ingestSourceID, readResult.Skipped)...)

	op.Step("append", logger.Fields{
		"transactions": len(produced.Transactions),
		"rejected":     len(rejected),
	})
	result, err := st.AppendRaw(cmd.Context(), store.IngestInput{
		BatchID:      ingestBatchID,
		SourceID:     ingestSourceID,
		FileName:     filepath.Base(ingestFile),
		Transactions: produced.Transactions,
		Rejected:     rejected,
	})
	if err != nil {
		op.Error("Append failed", err, nil)
		return err
	}

	op.Success("Ingestion complete", logger.Fields{
		"batch_id":  result.BatchID,
		"source_id": ingestSourceID,
	})

	printIngestSummary(cmd.OutOrStdout(), ingestFile, result, produced)

	if len(rejected) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), formatRejectedRows(ingestFile, rejected))
	}

	return nil
}

// printIngestSummary reports what the batch did to the ledger
func printIngestSummary(w io.Writer, file string, result *store.AppendResult, produced *adapters.ProduceResult) {
	fmt.Fprintf(w, "Ingested %s as batch %s\n", filepath.Base(file), result.BatchID)
	fmt.Fprintf(w, "  Rows seen:  %d\n", produced.Stats.RowsSeen)
	fmt.Fprintf(w, "  Inserted:   %d\n", result.Inserted)
	if result.Duplicates > 0 {
		fmt.Fprintf(w, "  Duplicates: %d (unchanged, skipped)\n", result.Duplicates)
	}
	if result.Superseded > 0 {
		fmt.Fprintf(w, "  Superseded: %d (content changed, new version appended)\n", result.Superseded)
	}
	if produced.Stats.CompositeSplits > 0 {
		fmt.Fprintf(w, "  Splits:     %d composite payments split into components\n", produced.Stats.CompositeSplits)
	}
	if produced.Stats.Excluded > 0 {
		fmt.Fprintf(w, "  Excluded:   %d rows dropped by source policy\n", produced.Stats.Excluded)
	}
	if result.Rejected > 0 {
		fmt.Fprintf(w, "  Rejected:   %d rows could not be normalized\n", result.Rejected)
	}
}

// rejectedFromSkipped folds reader-level skips into the batch's rejected
// rows so the ledger keeps every dropped line
func rejectedFromSkipped(sourceID string, skipped []csvio.SkippedRow) []models.RejectedRow {
	rows := make([]models.RejectedRow, 0, len(skipped))
	for _, skip := range skipped {
		rows = append(rows, models.RejectedRow{
			SourceID: sourceID,
			Line:     skip.Line,
			Reason:   skip.Reason,
		})
	}
	return rows
}

// formatRejectedRows renders rejected rows with the same line and column
// context parse failures get elsewhere
func formatRejectedRows(file string, rows []models.RejectedRow) string {
	parseErrors := make([]*errors.EnhancedParseError, 0, len(rows))
	for _, row := range rows {
		parseErrors = append(parseErrors, errors.NewEnhancedParseError(
			errors.CodeMalformedRecord,
			&errors.ParseContext{
				File:   file,
				Line:   row.Line,
				Column: row.Field,
				Value:  row.Value,
			},
			row.Reason,
			nil,
		))
	}
	return errors.FormatParseErrorsForUser(parseErrors)
}
