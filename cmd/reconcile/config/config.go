// Package config translates command-line inputs (format names, matching
// profiles, paths) into the concrete configuration structs the engine
// packages expect.
package config

import (
	"fmt"
	"strings"

	"property-reconciliation-engine/internal/adapters"
	"property-reconciliation-engine/internal/csvio"
	"property-reconciliation-engine/internal/matcher"
	"property-reconciliation-engine/internal/reporter"
	"property-reconciliation-engine/internal/store"
	"property-reconciliation-engine/pkg/logger"
)

// PropertyManagerFormat is the format name that selects the property
// manager adapter instead of a bank statement format.
const PropertyManagerFormat = "property-manager"

// Matching profiles selectable with --profile
const (
	ProfileDefault = "default"
	ProfileStrict  = "strict"
	ProfileRelaxed = "relaxed"
)

// SourceSetup couples a source adapter with the CSV reading rules its
// format prescribes
type SourceSetup struct {
	Adapter  adapters.Adapter
	Read     *csvio.ReadConfig
	Required []string
}

// SourceFormatNames returns the format names accepted by --format
func SourceFormatNames() []string {
	return append(adapters.BankFormatNames(), PropertyManagerFormat)
}

// CreateSourceSetup builds the adapter and read configuration for a raw
// transaction source. formatName is a bank format name or
// PropertyManagerFormat.
func CreateSourceSetup(formatName, sourceID string) (*SourceSetup, error) {
	if formatName == PropertyManagerFormat {
		cfg := adapters.DefaultPropertyManagerConfig()
		adapter, err := adapters.NewPropertyManagerAdapter(sourceID, cfg)
		if err != nil {
			return nil, err
		}
		return &SourceSetup{Adapter: adapter, Read: cfg.ReadConfig(), Required: cfg.RequiredColumns()}, nil
	}

	format, err := adapters.BankFormatByName(formatName)
	if err != nil {
		return nil, err
	}
	adapter, err := adapters.NewBankAdapter(sourceID, format)
	if err != nil {
		return nil, err
	}
	return &SourceSetup{Adapter: adapter, Read: format.ReadConfig(), Required: format.RequiredColumns()}, nil
}

// CreateTruthSetup builds the adapter and read configuration for a truth
// platform export
func CreateTruthSetup(sourceID string) (*SourceSetup, error) {
	cfg := adapters.DefaultTruthConfig()
	adapter, err := adapters.NewTruthAdapter(sourceID, cfg)
	if err != nil {
		return nil, err
	}
	return &SourceSetup{Adapter: adapter, Read: cfg.ReadConfig(), Required: cfg.RequiredColumns()}, nil
}

// MatchingProfileNames returns the selectable matching profiles
func MatchingProfileNames() []string {
	return []string{ProfileDefault, ProfileStrict, ProfileRelaxed}
}

// CreateMatchingConfig returns the matching configuration for the named
// profile. Individual tolerance flags are applied on top by the caller,
// so a profile and an explicit override can be combined.
func CreateMatchingConfig(profile string) (*matcher.MatchingConfig, error) {
	switch profile {
	case "", ProfileDefault:
		return matcher.DefaultMatchingConfig(), nil
	case ProfileStrict:
		return matcher.StrictMatchingConfig(), nil
	case ProfileRelaxed:
		return matcher.RelaxedMatchingConfig(), nil
	default:
		return nil, fmt.Errorf("unknown matching profile '%s' (valid profiles: %s)",
			profile, strings.Join(MatchingProfileNames(), ", "))
	}
}

// CreateReportConfig creates a report configuration for the specified
// output format
func CreateReportConfig(format string, includeMatched bool) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.IncludeMatched = includeMatched

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}

	return config
}

// CreateStoreConfig creates the database configuration. An empty path
// keeps the default location; query logging follows the verbose flag.
func CreateStoreConfig(dbPath string, verbose bool) *store.Config {
	config := store.DefaultConfig()
	if dbPath != "" {
		config.Path = dbPath
	}
	config.LogQueries = verbose
	return config
}

// CreateLoggerConfig creates the logger configuration for CLI runs.
// Verbose switches to debug-level output.
func CreateLoggerConfig(verbose bool) *logger.Config {
	if verbose {
		return logger.DebugConfig()
	}
	return logger.DefaultConfig()
}
