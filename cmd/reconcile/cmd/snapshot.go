package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"property-reconciliation-engine/cmd/reconcile/config"
	"property-reconciliation-engine/internal/csvio"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/store"
	"property-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	snapshotFile     string
	snapshotSourceID string
)

// snapshotCmd groups the truth snapshot operations
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage truth platform snapshots",
	Long: `Snapshot manages full loads of the platform-of-record ledger. Each
load replaces the current snapshot in one step; earlier snapshots stay
queryable for audit.`,
}

// snapshotLoadCmd installs a truth export as the current snapshot
var snapshotLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a truth platform export as the current snapshot",
	Long: `Load normalizes a truth platform export and installs it as the
snapshot reconciliation runs against. Rows matched by the exclusion
rules (internal transfers, owner contributions) are kept in the
snapshot but marked so matching skips them.

Examples:
  reconcile snapshot load --file stessa.csv --source-id stessa
  reconcile snapshot load --file stessa.csv`,
	PreRunE: validateSnapshotLoadFlags,
	RunE:    runSnapshotLoad,
}

// snapshotListCmd shows the snapshot history
var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded truth snapshots",
	RunE:  runSnapshotList,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotLoadCmd)
	snapshotCmd.AddCommand(snapshotListCmd)

	snapshotLoadCmd.Flags().StringVarP(&snapshotFile, "file", "f", "", "truth export to load (required)")
	snapshotLoadCmd.Flags().StringVarP(&snapshotSourceID, "source-id", "s", "stessa", "identifier of the truth platform")
}

// validateSnapshotLoadFlags validates the snapshot load flags
func validateSnapshotLoadFlags(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(snapshotFile, "truth export"); err != nil {
		return err
	}
	if strings.TrimSpace(snapshotSourceID) == "" {
		return fmt.Errorf("source-id is required")
	}
	return nil
}

// runSnapshotLoad executes the snapshot load command
func runSnapshotLoad(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	setup, err := config.CreateTruthSetup(snapshotSourceID)
	if err != nil {
		return err
	}

	readResult, err := csvio.NewReader(setup.Read).ReadFile(snapshotFile, setup.Required)
	if err != nil {
		return err
	}

	produced, err := setup.Adapter.Produce(readResult.Rows)
	if err != nil {
		return err
	}

	exclusions := make(map[string]string, len(produced.Excluded))
	for _, row := range produced.Excluded {
		exclusions[row.ExternalRef] = row.Reason
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := st.ReplaceTruth(cmd.Context(), store.ReplaceInput{
		SourceID:     snapshotSourceID,
		FileName:     filepath.Base(snapshotFile),
		Transactions: produced.Transactions,
		Exclusions:   exclusions,
	})
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"snapshot_id": result.SnapshotID,
		"source_id":   snapshotSourceID,
		"records":     result.Records,
	}).Info("Snapshot load complete")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %s as snapshot %s\n", filepath.Base(snapshotFile), result.SnapshotID)
	fmt.Fprintf(out, "  Records:  %d\n", result.Records)
	if result.Excluded > 0 {
		fmt.Fprintf(out, "  Excluded: %d (kept in snapshot, skipped by matching)\n", result.Excluded)
	}
	if result.PreviousSnapshotID != "" {
		fmt.Fprintf(out, "  Replaces: %s\n", result.PreviousSnapshotID)
	}

	// truth rejects are not persisted, the snapshot either loads fully
	// normalized or the operator fixes the export and reloads
	if len(produced.Rejected) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), formatRejectedRows(snapshotFile, produced.Rejected))
	}

	return nil
}

// runSnapshotList executes the snapshot list command
func runSnapshotList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snapshots, err := st.ListSnapshots(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(snapshots) == 0 {
		fmt.Fprintln(out, "No truth snapshots loaded yet.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-12s  %-19s  %7s  %s\n", "SNAPSHOT", "SOURCE", "LOADED", "RECORDS", "CURRENT")
	for _, snapshot := range snapshots {
		current := ""
		if snapshot.Current {
			current = "*"
		}
		fmt.Fprintf(out, "%-36s  %-12s  %-19s  %7d  %s\n",
			snapshot.SnapshotID,
			snapshot.SourceID,
			snapshot.LoadedAt.Format(models.DateLayout+" 15:04:05"),
			snapshot.RecordCount,
			current)
	}
	return nil
}
