package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"property-reconciliation-engine/cmd/reconcile/config"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/reconciler"
	"property-reconciliation-engine/internal/reporter"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	runStart          string
	runEnd            string
	runSourceID       string
	runOutputFormat   string
	runOutputFile     string
	runProfile        string
	runDateTolerance  int
	runAmountCents    int64
	runAmountPercent  float64
	runMinConfidence  float64
	runIncludeMatched bool
	runSave           bool
)

// runCmd reconciles the raw ledger against the current truth snapshot
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile raw transactions against the current truth snapshot",
	Long: `Run matches the raw ledger against the current truth snapshot and
reports every transaction as matched, amount-mismatch, missing-from-truth
or extra-in-truth. The run is recorded with its configuration so any
past report can be reproduced.

Examples:
  reconcile run --start 2025-03-01 --end 2025-03-31
  reconcile run --start 2025-03-01 --end 2025-03-31 --output-format json --output-file march.json
  reconcile run --profile strict --include-matched
  reconcile run --date-tolerance 5 --amount-tolerance-cents 100 --save=false`,
	PreRunE: validateRunFlags,
	RunE:    runReconciliation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStart, "start", "", "reporting window start (YYYY-MM-DD, empty leaves it open)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "reporting window end (YYYY-MM-DD, empty leaves it open)")
	runCmd.Flags().StringVarP(&runSourceID, "source-id", "s", "", "restrict the raw side to one source")
	runCmd.Flags().StringVarP(&runOutputFormat, "output-format", "f", "console",
		fmt.Sprintf("report format: %s", strings.Join(reporter.OutputFormatNames(), ", ")))
	runCmd.Flags().StringVarP(&runOutputFile, "output-file", "o", "", "write the report to a file instead of stdout")
	runCmd.Flags().StringVar(&runProfile, "profile", "default",
		fmt.Sprintf("matching profile: %s", strings.Join(config.MatchingProfileNames(), ", ")))
	runCmd.Flags().IntVar(&runDateTolerance, "date-tolerance", 3, "settlement drift allowed in days")
	runCmd.Flags().Int64Var(&runAmountCents, "amount-tolerance-cents", 1, "absolute amount difference treated as equal, in cents")
	runCmd.Flags().Float64Var(&runAmountPercent, "amount-tolerance-percent", 0.0, "relative amount tolerance for large transactions")
	runCmd.Flags().Float64Var(&runMinConfidence, "min-confidence", 0.6, "lowest score an accepted match may have")
	runCmd.Flags().BoolVar(&runIncludeMatched, "include-matched", false, "list matched pairs in the report")
	runCmd.Flags().BoolVar(&runSave, "save", true, "record the run and its matches in the database")

	bindRunFlags()
}

// bindRunFlags binds the run command flags to viper
func bindRunFlags() {
	viper.BindPFlag("start", runCmd.Flags().Lookup("start"))
	viper.BindPFlag("end", runCmd.Flags().Lookup("end"))
	viper.BindPFlag("source-id", runCmd.Flags().Lookup("source-id"))
	viper.BindPFlag("output-format", runCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", runCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("profile", runCmd.Flags().Lookup("profile"))
	viper.BindPFlag("date-tolerance", runCmd.Flags().Lookup("date-tolerance"))
	viper.BindPFlag("amount-tolerance-cents", runCmd.Flags().Lookup("amount-tolerance-cents"))
	viper.BindPFlag("amount-tolerance-percent", runCmd.Flags().Lookup("amount-tolerance-percent"))
	viper.BindPFlag("min-confidence", runCmd.Flags().Lookup("min-confidence"))
	viper.BindPFlag("include-matched", runCmd.Flags().Lookup("include-matched"))
	viper.BindPFlag("save", runCmd.Flags().Lookup("save"))
}

// validateRunFlags validates the run command flags
func validateRunFlags(cmd *cobra.Command, args []string) error {
	if _, _, err := parseWindow(); err != nil {
		return err
	}

	format := viper.GetString("output-format")
	if !reporter.OutputFormat(format).IsValid() {
		return fmt.Errorf("invalid output format '%s' (valid formats: %s)",
			format, strings.Join(reporter.OutputFormatNames(), ", "))
	}

	if _, err := config.CreateMatchingConfig(viper.GetString("profile")); err != nil {
		return err
	}

	if viper.GetInt("date-tolerance") < 0 {
		return fmt.Errorf("date tolerance cannot be negative")
	}
	if viper.GetInt64("amount-tolerance-cents") < 0 {
		return fmt.Errorf("amount tolerance cannot be negative")
	}
	if percent := viper.GetFloat64("amount-tolerance-percent"); percent < 0.0 || percent > 100.0 {
		return fmt.Errorf("amount tolerance percent must be between 0.0 and 100.0")
	}
	if confidence := viper.GetFloat64("min-confidence"); confidence < 0.0 || confidence > 1.0 {
		return fmt.Errorf("min confidence must be between 0.0 and 1.0")
	}

	return nil
}

// parseWindow resolves the reporting window flags. An empty flag leaves
// that end of the window open.
func parseWindow() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if value := viper.GetString("start"); value != "" {
		start, err = time.Parse(models.DateLayout, value)
		if err != nil {
			return start, end, fmt.Errorf("invalid start date format '%s' (expected YYYY-MM-DD)", value)
		}
	}
	if value := viper.GetString("end"); value != "" {
		end, err = time.Parse(models.DateLayout, value)
		if err != nil {
			return start, end, fmt.Errorf("invalid end date format '%s' (expected YYYY-MM-DD)", value)
		}
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return start, end, fmt.Errorf("start date cannot be after end date")
	}
	return start, end, nil
}

// runReconciliation executes the run command
func runReconciliation(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")
	ctx := cmd.Context()

	start, end, err := parseWindow()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snapshot, err := st.CurrentSnapshot(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return errors.New(errors.CategoryValidation, errors.CodeMissingField,
			"no truth snapshot has been loaded").
			WithSuggestion("load a truth platform export first: reconcile snapshot load --file <export.csv>")
	}

	raw, err := st.ListRaw(ctx, viper.GetString("source-id"), start, end)
	if err != nil {
		return err
	}
	truth, err := st.ListTruth(ctx, "", start, end, true)
	if err != nil {
		return err
	}
	rejected, err := st.ListRejected(ctx, viper.GetString("source-id"))
	if err != nil {
		return err
	}

	matching, err := config.CreateMatchingConfig(viper.GetString("profile"))
	if err != nil {
		return err
	}
	// explicit tolerance flags win over the profile
	flags := cmd.Flags()
	if flags.Changed("date-tolerance") {
		matching.DateToleranceDays = viper.GetInt("date-tolerance")
	}
	if flags.Changed("amount-tolerance-cents") {
		matching.AmountToleranceCents = viper.GetInt64("amount-tolerance-cents")
	}
	if flags.Changed("amount-tolerance-percent") {
		matching.AmountTolerancePercent = viper.GetFloat64("amount-tolerance-percent")
	}
	if flags.Changed("min-confidence") {
		matching.MinConfidenceScore = viper.GetFloat64("min-confidence")
	}

	log.WithFields(logger.Fields{
		"raw_records":   len(raw),
		"truth_records": len(truth),
		"snapshot_id":   snapshot.SnapshotID,
		"profile":       viper.GetString("profile"),
	}).Info("Starting reconciliation run")

	startedAt := time.Now().UTC()
	var report *reconciler.Report
	err = logger.TimedOperation("reconcile", log, func() error {
		var runErr error
		report, runErr = reconciler.Reconcile(reconciler.Input{
			Raw:         raw,
			Truth:       truth,
			Rejected:    rejected,
			WindowStart: start,
			WindowEnd:   end,
			SnapshotID:  snapshot.SnapshotID,
		}, matching)
		return runErr
	})
	if err != nil {
		return err
	}
	completedAt := time.Now().UTC()

	if viper.GetBool("save") {
		runID := uuid.NewString()
		run, records := report.RunRecords(runID, startedAt, completedAt)
		if err := st.SaveRun(ctx, run, records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved run %s (%d match records)\n", runID, len(records))
	}

	reportConfig := config.CreateReportConfig(viper.GetString("output-format"), viper.GetBool("include-matched"))
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path := viper.GetString("output-file"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		defer file.Close()
		out = file
		defer fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", path)
	}

	return generator.GenerateReportSafely(report, out)
}
