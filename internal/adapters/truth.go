package adapters

import (
	"fmt"
	"strings"

	"property-reconciliation-engine/internal/csvio"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// Filter rule fields
const (
	FilterFieldPayee    = "payee"
	FilterFieldCategory = "category"
	FilterFieldMemo     = "memo"
)

// FilterRule marks truth rows whose field contains the given text,
// matched case-insensitively. Marked rows stay in the snapshot but are
// kept out of matching.
type FilterRule struct {
	Field    string `json:"field"`
	Contains string `json:"contains"`
	// Reason is recorded on the marked row. Empty derives one from the
	// rule itself.
	Reason string `json:"reason,omitempty"`
}

// Validate checks the rule targets a known field
func (r *FilterRule) Validate() error {
	switch r.Field {
	case FilterFieldPayee, FilterFieldCategory, FilterFieldMemo:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "filter_rule.field", r.Field, nil).
			WithSuggestion(fmt.Sprintf("valid fields: %s, %s, %s", FilterFieldPayee, FilterFieldCategory, FilterFieldMemo))
	}
	if strings.TrimSpace(r.Contains) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "filter_rule.contains", r.Contains, nil)
	}
	return nil
}

// reason returns the recorded exclusion reason
func (r *FilterRule) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	return fmt.Sprintf("%s contains %q", r.Field, r.Contains)
}

// matches reports whether the transaction trips this rule
func (r *FilterRule) matches(tx *models.CanonicalTransaction) bool {
	var value string
	switch r.Field {
	case FilterFieldPayee:
		value = tx.Payee
	case FilterFieldCategory:
		value = tx.Category
	case FilterFieldMemo:
		value = tx.Memo
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(r.Contains))
}

// TruthConfig describes the truth platform's ledger export
type TruthConfig struct {
	// RefColumn holds the platform's transaction identifier. Optional.
	RefColumn string `json:"ref_column,omitempty"`
	// DateColumn holds the transaction date
	DateColumn string `json:"date_column"`
	// AmountColumn holds the signed transaction amount
	AmountColumn string `json:"amount_column"`
	// PayeeColumn holds the counterparty name
	PayeeColumn string `json:"payee_column"`
	// CategoryColumn holds the platform's category label. Optional.
	CategoryColumn string `json:"category_column,omitempty"`
	// MemoColumn holds free-form notes. Optional.
	MemoColumn string `json:"memo_column,omitempty"`

	// DateLayouts lists the accepted date formats, tried in order
	DateLayouts []string `json:"date_layouts,omitempty"`
	// HasHeader indicates whether the first row contains column names
	HasHeader bool `json:"has_header"`
	// Delimiter is the field separator (0 means comma)
	Delimiter rune `json:"delimiter,omitempty"`

	// FilterRules marks rows to exclude from matching
	FilterRules []FilterRule `json:"filter_rules,omitempty"`
}

// Validate checks the configured columns and filter rules
func (c *TruthConfig) Validate() error {
	if strings.TrimSpace(c.DateColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "truth.date_column", c.DateColumn, nil)
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "truth.amount_column", c.AmountColumn, nil)
	}
	for i := range c.FilterRules {
		if err := c.FilterRules[i].Validate(); err != nil {
			return errors.WrapIfNeeded(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
				fmt.Sprintf("filter rule %d is invalid", i))
		}
	}
	return nil
}

// RequiredColumns returns the header names the export file must contain
func (c *TruthConfig) RequiredColumns() []string {
	return []string{c.DateColumn, c.AmountColumn}
}

// ReadConfig builds the CSV read settings this export expects
func (c *TruthConfig) ReadConfig() *csvio.ReadConfig {
	config := csvio.DefaultReadConfig()
	config.HasHeader = c.HasHeader
	if c.Delimiter != 0 {
		config.Delimiter = c.Delimiter
	}
	return config
}

// DefaultTruthConfig returns the configuration for the standard truth
// platform export layout. Transfers between accounts are marked excluded
// because they net to zero across the books and would otherwise pair with
// unrelated statement rows.
func DefaultTruthConfig() *TruthConfig {
	return &TruthConfig{
		RefColumn:      "Reference",
		DateColumn:     "Date",
		AmountColumn:   "Amount",
		PayeeColumn:    "Payee",
		CategoryColumn: "Category",
		MemoColumn:     "Notes",
		HasHeader:      true,
		FilterRules: []FilterRule{
			{Field: FilterFieldCategory, Contains: "Transfer", Reason: "internal transfer"},
			{Field: FilterFieldCategory, Contains: "Owner Contribution", Reason: "owner funding, not property activity"},
		},
	}
}

// TruthAdapter converts truth platform export rows into canonical
// transactions and marks rows matched by filter rules
type TruthAdapter struct {
	sourceID string
	config   *TruthConfig
	logger   logger.Logger
}

// NewTruthAdapter creates a truth adapter. A nil config selects
// DefaultTruthConfig.
func NewTruthAdapter(sourceID string, config *TruthConfig) (*TruthAdapter, error) {
	if strings.TrimSpace(sourceID) == "" {
		sourceID = string(models.KindTruthPlatform)
	}
	if config == nil {
		config = DefaultTruthConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TruthAdapter{
		sourceID: sourceID,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("truth_adapter"),
	}, nil
}

// Source returns the adapter's source kind
func (a *TruthAdapter) Source() models.SourceKind {
	return models.KindTruthPlatform
}

// Produce maps ledger rows to canonical transactions. Rows matched by a
// filter rule remain in Transactions and are listed in Excluded so the
// snapshot keeps them while matching skips them.
func (a *TruthAdapter) Produce(rows []csvio.Row) (*ProduceResult, error) {
	result := &ProduceResult{}
	result.Stats.RowsSeen = len(rows)

	for _, row := range rows {
		var memoLines []string
		if a.config.MemoColumn != "" {
			if memo := strings.TrimSpace(row.Get(a.config.MemoColumn)); memo != "" {
				memoLines = append(memoLines, memo)
			}
		}
		tx, err := models.Normalize(models.KindTruthPlatform, models.NormalizeInput{
			SourceID:    a.sourceID,
			ExternalRef: row.Get(a.config.RefColumn),
			Date:        row.Get(a.config.DateColumn),
			Amount:      row.Get(a.config.AmountColumn),
			Payee:       row.Get(a.config.PayeeColumn),
			Category:    strings.TrimSpace(row.Get(a.config.CategoryColumn)),
			MemoLines:   memoLines,
			DateLayouts: a.config.DateLayouts,
		})
		if err != nil {
			result.Rejected = append(result.Rejected, rejectionFor(a.sourceID, row.Line, err))
			result.Stats.Rejected++
			a.logger.WithFields(logger.Fields{
				"line":  row.Line,
				"error": err.Error(),
			}).Debug("Rejected truth platform row")
			continue
		}

		result.Transactions = append(result.Transactions, tx)
		result.Stats.Produced++

		if rule := a.matchingRule(tx); rule != nil {
			result.Excluded = append(result.Excluded, ExcludedRow{
				Line:        row.Line,
				ExternalRef: tx.ExternalRef,
				Payee:       tx.Payee,
				AmountCents: tx.AmountCents,
				Reason:      rule.reason(),
			})
			result.Stats.Excluded++
			a.logger.WithFields(logger.Fields{
				"line":         row.Line,
				"external_ref": tx.ExternalRef,
				"reason":       rule.reason(),
			}).Debug("Marked truth row excluded from matching")
		}
	}

	a.logger.WithFields(logger.Fields{
		"source_id": a.sourceID,
		"rows":      result.Stats.RowsSeen,
		"produced":  result.Stats.Produced,
		"rejected":  result.Stats.Rejected,
		"excluded":  result.Stats.Excluded,
	}).Info("Truth platform rows converted")
	return result, nil
}

// matchingRule returns the first filter rule the transaction trips
func (a *TruthAdapter) matchingRule(tx *models.CanonicalTransaction) *FilterRule {
	for i := range a.config.FilterRules {
		if a.config.FilterRules[i].matches(tx) {
			return &a.config.FilterRules[i]
		}
	}
	return nil
}
