package reporter

import (
	"fmt"
	"io"

	"property-reconciliation-engine/internal/reconciler"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and a console
// fallback. A reconciliation pass that ran to completion should always
// leave the operator with a readable report, even when the requested
// format cannot be produced.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, err
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the report, falling back to console output
// if the configured format fails partway
func (srg *SafeReportGenerator) GenerateReportSafely(report *reconciler.Report, writer io.Writer) error {
	if report == nil {
		return errors.New(errors.CategoryValidation, errors.CodeMissingField,
			"no report to render").
			WithSuggestion("run a reconciliation before generating a report")
	}
	if writer == nil {
		return errors.New(errors.CategoryValidation, errors.CodeMissingField,
			"no output destination for the report")
	}

	srg.logger.WithFields(logger.Fields{
		"format":        srg.config.Format,
		"discrepancies": report.Summary.Discrepancies(),
	}).Info("Generating report")

	err := srg.GenerateReport(report, writer)
	if err == nil {
		srg.logger.Info("Report generation completed")
		return nil
	}

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}

	// A structured format failed mid-stream. Console output has no
	// encoder to fail, so it is the safest retry.
	srg.logger.WithError(err).Warnf("%s report failed, falling back to console", srg.config.Format)

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallback, fbErr := NewReportGenerator(&fallbackConfig)
	if fbErr != nil {
		return srg.wrapGenerationError(err)
	}

	fmt.Fprintf(writer, "NOTE: report rendered as console output, the requested %s format failed\n", srg.config.Format)
	fmt.Fprintf(writer, "Original error: %v\n\n", err)
	if fbErr := fallback.GenerateReport(report, writer); fbErr != nil {
		return errors.InternalError("report fallback",
			fmt.Errorf("both %s and console rendering failed: %v, %v", srg.config.Format, err, fbErr))
	}

	srg.logger.Info("Report generated using console fallback")
	return nil
}

// wrapGenerationError keeps structured errors intact and wraps the rest
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if engineErr, ok := errors.AsEngineError(err); ok {
		return engineErr
	}
	return errors.InternalError("report generation", err).
		WithSuggestion("check the output destination and report format settings")
}
