package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker reports progress of long-running operations such as
// batch ingestion or a reconciliation run
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	processed   int64
	startTime   time.Time
	lastLog     time.Time
	logInterval time.Duration
	mu          sync.Mutex
}

// NewProgressTracker creates a tracker for an operation with a known total.
// A total of zero disables percentage reporting.
func NewProgressTracker(logger Logger, operation string, total int64) *ProgressTracker {
	return &ProgressTracker{
		logger:      logger.WithComponent("progress"),
		operation:   operation,
		total:       total,
		startTime:   time.Now(),
		lastLog:     time.Now(),
		logInterval: 5 * time.Second,
	}
}

// Add advances the processed count by delta and logs if the interval elapsed
func (pt *ProgressTracker) Add(delta int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.processed += delta
	pt.maybeLog()
}

// Increment advances the processed count by one
func (pt *ProgressTracker) Increment() {
	pt.Add(1)
}

// Update sets the absolute processed count
func (pt *ProgressTracker) Update(processed int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.processed = processed
	pt.maybeLog()
}

func (pt *ProgressTracker) maybeLog() {
	now := time.Now()
	if now.Sub(pt.lastLog) < pt.logInterval {
		return
	}
	pt.lastLog = now

	stats := pt.statsLocked()
	pt.logger.WithFields(Fields{
		"operation": stats.Operation,
		"processed": stats.Processed,
		"total":     stats.Total,
		"percent":   fmt.Sprintf("%.1f", stats.Percentage),
		"rate":      fmt.Sprintf("%.0f/s", stats.ItemsPerSecond),
	}).Info("Operation in progress")
}

// Complete logs the final state of the operation
func (pt *ProgressTracker) Complete() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	stats := pt.statsLocked()
	pt.logger.WithFields(Fields{
		"operation": stats.Operation,
		"processed": stats.Processed,
		"elapsed":   stats.Elapsed.Round(time.Millisecond).String(),
		"rate":      fmt.Sprintf("%.0f/s", stats.ItemsPerSecond),
	}).Infof("Operation completed: %s", stats.Operation)
}

// CompleteWithError logs the final state together with the failure
func (pt *ProgressTracker) CompleteWithError(err error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	stats := pt.statsLocked()
	pt.logger.WithError(err).WithFields(Fields{
		"operation": stats.Operation,
		"processed": stats.Processed,
		"elapsed":   stats.Elapsed.Round(time.Millisecond).String(),
	}).Errorf("Operation failed: %s", stats.Operation)
}

// GetStats returns a snapshot of the current progress
func (pt *ProgressTracker) GetStats() ProgressStats {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.statsLocked()
}

func (pt *ProgressTracker) statsLocked() ProgressStats {
	elapsed := time.Since(pt.startTime)
	stats := ProgressStats{
		Operation: pt.operation,
		Total:     pt.total,
		Processed: pt.processed,
		Elapsed:   elapsed,
	}
	if pt.total > 0 {
		stats.Percentage = float64(pt.processed) / float64(pt.total) * 100
	}
	if elapsed > 0 {
		stats.ItemsPerSecond = float64(pt.processed) / elapsed.Seconds()
	}
	return stats
}

// ProgressStats holds a point-in-time view of tracked progress
type ProgressStats struct {
	Operation      string
	Total          int64
	Processed      int64
	Percentage     float64
	Elapsed        time.Duration
	ItemsPerSecond float64
}

// String returns a human-readable summary of the stats
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%) in %s",
			ps.Operation, ps.Processed, ps.Total, ps.Percentage, ps.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: %d in %s",
		ps.Operation, ps.Processed, ps.Elapsed.Round(time.Millisecond))
}

// OperationLogger logs the lifecycle of a multi-step operation
type OperationLogger struct {
	logger    Logger
	operation string
	startTime time.Time
}

// NewOperationLogger creates a logger scoped to one named operation
func NewOperationLogger(logger Logger, operation string) *OperationLogger {
	ol := &OperationLogger{
		logger:    logger.WithField("operation", operation),
		operation: operation,
		startTime: time.Now(),
	}
	ol.logger.Infof("Starting operation: %s", operation)
	return ol
}

// Step logs an intermediate step within the operation
func (ol *OperationLogger) Step(step string, fields Fields) {
	logger := ol.logger.WithField("step", step)
	if fields != nil {
		logger = logger.WithFields(fields)
	}
	logger.Infof("Operation step: %s", step)
}

// Success logs successful completion of the operation
func (ol *OperationLogger) Success(message string, fields Fields) {
	logger := ol.logger.WithField("elapsed", time.Since(ol.startTime).Round(time.Millisecond).String())
	if fields != nil {
		logger = logger.WithFields(fields)
	}
	logger.Info(message)
}

// Error logs a failure of the operation
func (ol *OperationLogger) Error(message string, err error, fields Fields) {
	logger := ol.logger.WithError(err).WithField("elapsed", time.Since(ol.startTime).Round(time.Millisecond).String())
	if fields != nil {
		logger = logger.WithFields(fields)
	}
	logger.Error(message)
}

// Warning logs a non-fatal issue encountered during the operation
func (ol *OperationLogger) Warning(message string, fields Fields) {
	logger := ol.logger
	if fields != nil {
		logger = logger.WithFields(fields)
	}
	logger.Warn(message)
}

// TimedOperation runs fn and logs its duration and outcome
func TimedOperation(operation string, logger Logger, fn func() error) error {
	start := time.Now()
	opLogger := logger.WithField("operation", operation)
	opLogger.Debugf("Starting: %s", operation)

	err := fn()
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		opLogger.WithError(err).WithField("elapsed", elapsed.String()).Errorf("Failed: %s", operation)
		return err
	}
	opLogger.WithField("elapsed", elapsed.String()).Debugf("Completed: %s", operation)
	return nil
}
