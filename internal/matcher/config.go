// Package matcher pairs raw source records with truth platform records.
//
// Matching is fuzzy because the two sides describe the same money with
// different words: settlement dates drift by a few days, payee names are
// abbreviated or expanded, and amounts occasionally pick up rounding
// differences. The engine handles this with:
//   - A date window that bounds how far apart paired records may settle
//   - An amount tolerance for rounding differences
//   - Payee similarity scoring to rank competing candidates
//   - Configurable weights and thresholds
//
// The engine works in stages:
//  1. Candidate selection: a raw record may only pair with truth records
//     inside the date window whose amounts are within tolerance
//  2. Scoring: candidates are weighted over amount, date and payee
//  3. Greedy acceptance in descending score order with deterministic ties
//  4. A probe pass that pairs leftovers agreeing on date and payee but
//     not amount, surfacing them as amount mismatches
//
// The same inputs always produce the same outcome. Payee similarity never
// admits a candidate on its own; it only ranks candidates that already
// satisfy the date and amount gates.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateToleranceDays = 2
//
//	m, err := matcher.NewMatcher(config)
//	outcome, err := m.Match(rawRecords, truthRecords)
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
)

// TieBreakPolicy decides the order of candidate pairs whose scores are
// exactly equal
type TieBreakPolicy string

const (
	// TieBreakIngestionOrder prefers the earliest-ingested raw record,
	// then the earliest truth record in export order
	TieBreakIngestionOrder TieBreakPolicy = "ingestion-order"

	// TieBreakPayeeSimilarity prefers the pair with the stronger payee
	// similarity before falling back to ingestion order
	TieBreakPayeeSimilarity TieBreakPolicy = "payee-similarity"
)

// String returns the string representation of the policy
func (p TieBreakPolicy) String() string {
	return string(p)
}

// IsValid checks whether the policy is one of the known values
func (p TieBreakPolicy) IsValid() bool {
	switch p {
	case TieBreakIngestionOrder, TieBreakPayeeSimilarity:
		return true
	default:
		return false
	}
}

// MatchingWeights defines the relative importance of the scoring criteria.
// The weights should sum to approximately 1.0.
type MatchingWeights struct {
	AmountWeight float64 `json:"amount_weight"`
	DateWeight   float64 `json:"date_weight"`
	PayeeWeight  float64 `json:"payee_weight"`
}

// Validate checks if the matching weights are valid
func (mw *MatchingWeights) Validate() error {
	if mw.AmountWeight < 0.0 || mw.AmountWeight > 1.0 {
		return fmt.Errorf("amount weight must be between 0.0 and 1.0: %f", mw.AmountWeight)
	}
	if mw.DateWeight < 0.0 || mw.DateWeight > 1.0 {
		return fmt.Errorf("date weight must be between 0.0 and 1.0: %f", mw.DateWeight)
	}
	if mw.PayeeWeight < 0.0 || mw.PayeeWeight > 1.0 {
		return fmt.Errorf("payee weight must be between 0.0 and 1.0: %f", mw.PayeeWeight)
	}

	// allow some slack so hand-tuned weights need not hit 1.0 exactly
	total := mw.AmountWeight + mw.DateWeight + mw.PayeeWeight
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}
	return nil
}

// MatchingConfig holds the parameters of the matching engine.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): balanced settings for monthly statements
//   - StrictMatchingConfig(): tight tolerances for clean, same-day feeds
//   - RelaxedMatchingConfig(): loose tolerances for exploratory matching
type MatchingConfig struct {
	// DateToleranceDays is the settlement drift allowed between a raw
	// record and a truth record, in whole days either direction
	DateToleranceDays int `json:"date_tolerance_days"`

	// AmountToleranceCents is the absolute amount difference treated as
	// equal, in minor units
	AmountToleranceCents int64 `json:"amount_tolerance_cents"`

	// AmountTolerancePercent widens the tolerance for large amounts as a
	// percentage of the truth-side amount (0.0 to 100.0). The wider of
	// the absolute and percentage bands applies.
	AmountTolerancePercent float64 `json:"amount_tolerance_percent"`

	// MinConfidenceScore is the lowest weighted score an accepted match
	// may have
	MinConfidenceScore float64 `json:"min_confidence_score"`

	// MismatchProbeScore governs when two leftover records are reported
	// as an amount mismatch rather than as two unmatched records: both
	// their combined date-and-payee score and their payee similarity
	// alone must reach it
	MismatchProbeScore float64 `json:"mismatch_probe_score"`

	// TieBreak orders candidate pairs with exactly equal scores
	TieBreak TieBreakPolicy `json:"tie_break"`

	// Weights sets the relative importance of the scoring criteria
	Weights MatchingWeights `json:"weights"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
// for monthly statement reconciliation
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:      3,
		AmountToleranceCents:   1,
		AmountTolerancePercent: 0.0,
		MinConfidenceScore:     0.6,
		MismatchProbeScore:     0.3,
		TieBreak:               TieBreakIngestionOrder,
		Weights: MatchingWeights{
			AmountWeight: 0.4,
			DateWeight:   0.3,
			PayeeWeight:  0.3,
		},
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:      1,
		AmountToleranceCents:   0,
		AmountTolerancePercent: 0.0,
		MinConfidenceScore:     0.85,
		MismatchProbeScore:     0.5,
		TieBreak:               TieBreakIngestionOrder,
		Weights: MatchingWeights{
			AmountWeight: 0.5,
			DateWeight:   0.3,
			PayeeWeight:  0.2,
		},
	}
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:      5,
		AmountToleranceCents:   100,
		AmountTolerancePercent: 1.0,
		MinConfidenceScore:     0.5,
		MismatchProbeScore:     0.25,
		TieBreak:               TieBreakPayeeSimilarity,
		Weights: MatchingWeights{
			AmountWeight: 0.35,
			DateWeight:   0.3,
			PayeeWeight:  0.35,
		},
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.DateToleranceDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.date_tolerance_days", mc.DateToleranceDays, nil)
	}
	if mc.AmountToleranceCents < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.amount_tolerance_cents", mc.AmountToleranceCents, nil)
	}
	if mc.AmountTolerancePercent < 0.0 || mc.AmountTolerancePercent > 100.0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.amount_tolerance_percent", mc.AmountTolerancePercent, nil)
	}
	if mc.MinConfidenceScore < 0.0 || mc.MinConfidenceScore > 1.0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.min_confidence_score", mc.MinConfidenceScore, nil)
	}
	if mc.MismatchProbeScore < 0.0 || mc.MismatchProbeScore > 1.0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.mismatch_probe_score", mc.MismatchProbeScore, nil)
	}
	if !mc.TieBreak.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.tie_break", string(mc.TieBreak), nil).
			WithSuggestion(fmt.Sprintf("valid policies: %s, %s", TieBreakIngestionOrder, TieBreakPayeeSimilarity))
	}
	if err := mc.Weights.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.weights", mc.Weights, err)
	}
	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// AmountBandCents returns the amount difference treated as equal for the
// given truth-side amount, in minor units
func (mc *MatchingConfig) AmountBandCents(truthCents int64) int64 {
	band := mc.AmountToleranceCents
	if mc.AmountTolerancePercent > 0.0 {
		percentage := decimal.NewFromFloat(mc.AmountTolerancePercent / 100.0)
		widened := decimal.NewFromInt(truthCents).Abs().Mul(percentage).Round(0).IntPart()
		if widened > band {
			band = widened
		}
	}
	return band
}

// WithinAmountTolerance checks if two amounts agree within the configured
// band. The percentage band is taken over the truth-side amount.
func (mc *MatchingConfig) WithinAmountTolerance(rawCents, truthCents int64) bool {
	diff := rawCents - truthCents
	if diff < 0 {
		diff = -diff
	}
	return diff <= mc.AmountBandCents(truthCents)
}

// WithinDateTolerance checks if two dates fall within the configured window
func (mc *MatchingConfig) WithinDateTolerance(a, b time.Time) bool {
	return models.DaysBetween(a, b) <= mc.DateToleranceDays
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DateTolerance: %d days, AmountTolerance: %d cents + %.2f%%, MinConfidence: %.2f, ProbeScore: %.2f, TieBreak: %s}",
		mc.DateToleranceDays, mc.AmountToleranceCents, mc.AmountTolerancePercent,
		mc.MinConfidenceScore, mc.MismatchProbeScore, mc.TieBreak)
}
