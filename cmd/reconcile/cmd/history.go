package cmd

import (
	"fmt"
	"time"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/store"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRunID string
)

// historyCmd shows past reconciliation runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show saved reconciliation runs",
	Long: `History lists past reconciliation runs with their windows and result
counts. Pass --run to see the match records one run produced.

Examples:
  reconcile history
  reconcile history --limit 5
  reconcile history --run 7f8c0d2a-5a44-4f7e-9c3b-2f1f6f8e9a10`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "show the match records of one run")
}

// runHistory executes the history command
func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if historyRunID != "" {
		return showRunMatches(cmd, st, historyRunID)
	}

	runs, err := st.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No reconciliation runs recorded yet.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-23s  %7s  %8s  %7s  %5s\n",
		"RUN", "WINDOW", "MATCHED", "MISMATCH", "MISSING", "EXTRA")
	for _, run := range runs {
		fmt.Fprintf(out, "%-36s  %-23s  %7d  %8d  %7d  %5d\n",
			run.RunID,
			formatWindow(run.WindowStart, run.WindowEnd),
			run.MatchedCount,
			run.MismatchCount,
			run.MissingCount,
			run.ExtraCount)
	}
	return nil
}

// showRunMatches prints the match records of a single run
func showRunMatches(cmd *cobra.Command, st *store.Store, runID string) error {
	matches, err := st.MatchesForRun(cmd.Context(), runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintf(out, "No match records found for run %s.\n", runID)
		return nil
	}

	fmt.Fprintf(out, "Match records for run %s:\n", runID)
	for i, match := range matches {
		line := fmt.Sprintf("%4d. %-18s confidence %.2f  raw=%s truth=%s",
			i+1, match.Classification, match.Confidence,
			formatRecordID(match.RawRecordID), formatRecordID(match.TruthRecordID))
		if match.Note != "" {
			line += "  " + match.Note
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

// formatWindow renders a reporting window, leaving open ends readable
func formatWindow(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return "(all dates)"
	}
	format := func(t time.Time) string {
		if t.IsZero() {
			return "open"
		}
		return t.Format(models.DateLayout)
	}
	return format(start) + ".." + format(end)
}

// formatRecordID renders a nullable record reference
func formatRecordID(id *uint) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}
