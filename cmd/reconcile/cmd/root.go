package cmd

import (
	"fmt"
	"os"
	"strings"

	"property-reconciliation-engine/cmd/reconcile/config"
	"property-reconciliation-engine/internal/store"
	"property-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	dbPath  string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Property transaction reconciliation engine",
	Long: `Reconcile normalizes property finance transactions from bank and
property manager exports, keeps them in an append-only ledger next to
truth platform snapshots, and reports the discrepancies between the
two sides.

Examples:
  reconcile ingest --file checking.csv --format huntington --source-id huntington-checking
  reconcile snapshot load --file stessa.csv --source-id stessa
  reconcile run --start 2025-03-01 --end 2025-03-31 --output-format json
  reconcile history --limit 10`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default data/reconcile.db)")

	bindRootFlags()
}

// bindRootFlags binds the global flags to viper
func bindRootFlags() {
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("RECONCILE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// initLogger installs the global logger once flags are parsed so every
// component logs at the requested level
func initLogger() {
	log, err := logger.NewLogger(config.CreateLoggerConfig(viper.GetBool("verbose")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogger(log)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

// openStore opens the persistent store the data commands share
func openStore() (*store.Store, error) {
	return store.Open(config.CreateStoreConfig(viper.GetString("db"), viper.GetBool("verbose")))
}

// validateFileExists checks that a path names a readable regular file
func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s is required", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("cannot access %s %s: %w", description, filePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}
