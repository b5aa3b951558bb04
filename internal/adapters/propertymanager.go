package adapters

import (
	"fmt"
	"strings"

	"property-reconciliation-engine/internal/csvio"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// MappingRule assigns a category when any of its keywords appears in the
// row's GL account, payee or memo text. Keywords are matched
// case-insensitively as substrings.
type MappingRule struct {
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
}

// CategoryMapping translates property-manager GL text into report
// categories. Rules are applied in order; the first match wins.
type CategoryMapping struct {
	Rules []MappingRule `json:"rules"`
	// Fallback is assigned when no rule matches. Empty leaves the
	// category unset.
	Fallback string `json:"fallback,omitempty"`
}

// Map returns the category for the given texts
func (m *CategoryMapping) Map(texts ...string) string {
	folded := strings.ToLower(strings.Join(texts, " "))
	for _, rule := range m.Rules {
		for _, keyword := range rule.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(folded, strings.ToLower(keyword)) {
				return rule.Category
			}
		}
	}
	return m.Fallback
}

// Validate checks that every rule carries keywords and a category
func (m *CategoryMapping) Validate() error {
	for i, rule := range m.Rules {
		if len(rule.Keywords) == 0 {
			return errors.ConfigurationError(errors.CodeInvalidConfig,
				fmt.Sprintf("category_mapping.rules[%d].keywords", i), rule.Keywords, nil)
		}
		if strings.TrimSpace(rule.Category) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig,
				fmt.Sprintf("category_mapping.rules[%d].category", i), rule.Category, nil)
		}
	}
	return nil
}

// DefaultCategoryMapping returns the mapping used for property management
// exports. Unmapped rows fall back to "UNCLEAR" so they surface for manual
// review instead of silently landing in a plausible category.
func DefaultCategoryMapping() *CategoryMapping {
	return &CategoryMapping{
		Rules: []MappingRule{
			{Keywords: []string{"rent income", "rent payment", "tenant rent"}, Category: "Rents"},
			{Keywords: []string{"management fee", "mgmt fee"}, Category: "Property Management"},
			{Keywords: []string{"plumbing", "drain", "water heater"}, Category: "Plumbing Repairs"},
			{Keywords: []string{"security deposit"}, Category: "Security Deposits"},
			{Keywords: []string{"late fee"}, Category: "Late Fees"},
			{Keywords: []string{"repair", "maintenance"}, Category: "Repairs"},
		},
		Fallback: "UNCLEAR",
	}
}

// PropertyManagerConfig describes the property manager's transaction export
type PropertyManagerConfig struct {
	// RefColumn holds the manager's transaction identifier. Optional.
	RefColumn string `json:"ref_column,omitempty"`
	// DateColumn holds the transaction date
	DateColumn string `json:"date_column"`
	// AmountColumn holds the transaction amount
	AmountColumn string `json:"amount_column"`
	// PayeeColumn holds the tenant or vendor name
	PayeeColumn string `json:"payee_column"`
	// GLAccountColumn holds the manager's general-ledger account label
	GLAccountColumn string `json:"gl_account_column,omitempty"`
	// MemoColumn holds free-form notes. Optional.
	MemoColumn string `json:"memo_column,omitempty"`

	// DateLayouts lists the accepted date formats, tried in order
	DateLayouts []string `json:"date_layouts,omitempty"`
	// HasHeader indicates whether the first row contains column names
	HasHeader bool `json:"has_header"`
	// Delimiter is the field separator (0 means comma)
	Delimiter rune `json:"delimiter,omitempty"`

	// NegateAmounts flips the sign of every amount. Property management
	// exports are written from the manager's perspective, so owner income
	// appears negative and must be inverted before it can line up with
	// the other sources.
	NegateAmounts bool `json:"negate_amounts"`

	// Mapping assigns categories from GL, payee and memo text
	Mapping *CategoryMapping `json:"mapping,omitempty"`

	// ExcludedGLAccounts drops rows whose GL account contains any of
	// these labels, matched case-insensitively as substrings. Pass-through
	// accounts such as security deposit liabilities never reach matching.
	ExcludedGLAccounts []string `json:"excluded_gl_accounts,omitempty"`
}

// Validate checks the configured columns and mapping
func (c *PropertyManagerConfig) Validate() error {
	if strings.TrimSpace(c.DateColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "property_manager.date_column", c.DateColumn, nil)
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "property_manager.amount_column", c.AmountColumn, nil)
	}
	if c.Mapping != nil {
		if err := c.Mapping.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RequiredColumns returns the header names the export file must contain
func (c *PropertyManagerConfig) RequiredColumns() []string {
	return []string{c.DateColumn, c.AmountColumn}
}

// ReadConfig builds the CSV read settings this export expects
func (c *PropertyManagerConfig) ReadConfig() *csvio.ReadConfig {
	config := csvio.DefaultReadConfig()
	config.HasHeader = c.HasHeader
	if c.Delimiter != 0 {
		config.Delimiter = c.Delimiter
	}
	return config
}

// DefaultPropertyManagerConfig returns the configuration for the standard
// property management export layout
func DefaultPropertyManagerConfig() *PropertyManagerConfig {
	return &PropertyManagerConfig{
		RefColumn:          "Reference",
		DateColumn:         "Date",
		AmountColumn:       "Amount",
		PayeeColumn:        "Name",
		GLAccountColumn:    "GL Account",
		MemoColumn:         "Notes",
		HasHeader:          true,
		NegateAmounts:      true,
		Mapping:            DefaultCategoryMapping(),
		ExcludedGLAccounts: []string{"Security Deposit Liability"},
	}
}

// PropertyManagerAdapter converts property management export rows into
// canonical transactions, assigning categories and filtering excluded
// GL accounts
type PropertyManagerAdapter struct {
	sourceID string
	config   *PropertyManagerConfig
	logger   logger.Logger
}

// NewPropertyManagerAdapter creates a property-manager adapter. A nil
// config selects DefaultPropertyManagerConfig.
func NewPropertyManagerAdapter(sourceID string, config *PropertyManagerConfig) (*PropertyManagerAdapter, error) {
	if strings.TrimSpace(sourceID) == "" {
		sourceID = string(models.KindPropertyManager)
	}
	if config == nil {
		config = DefaultPropertyManagerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &PropertyManagerAdapter{
		sourceID: sourceID,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("property_manager_adapter"),
	}, nil
}

// Source returns the adapter's source kind
func (a *PropertyManagerAdapter) Source() models.SourceKind {
	return models.KindPropertyManager
}

// Produce maps export rows to canonical transactions. Rows on excluded GL
// accounts are dropped and reported; dropping a row never changes the
// amounts of the rows that remain.
func (a *PropertyManagerAdapter) Produce(rows []csvio.Row) (*ProduceResult, error) {
	result := &ProduceResult{}
	result.Stats.RowsSeen = len(rows)

	for _, row := range rows {
		glAccount := strings.TrimSpace(row.Get(a.config.GLAccountColumn))
		if label, excluded := a.excludedBy(glAccount); excluded {
			result.Excluded = append(result.Excluded, ExcludedRow{
				Line:   row.Line,
				Payee:  strings.TrimSpace(row.Get(a.config.PayeeColumn)),
				Reason: fmt.Sprintf("GL account %q matches excluded account %q", glAccount, label),
			})
			result.Stats.Excluded++
			a.logger.WithFields(logger.Fields{
				"line":       row.Line,
				"gl_account": glAccount,
			}).Info("Excluded property manager row")
			continue
		}

		var memoLines []string
		if a.config.MemoColumn != "" {
			if memo := strings.TrimSpace(row.Get(a.config.MemoColumn)); memo != "" {
				memoLines = append(memoLines, memo)
			}
		}
		tx, err := models.Normalize(models.KindPropertyManager, models.NormalizeInput{
			SourceID:     a.sourceID,
			ExternalRef:  row.Get(a.config.RefColumn),
			Date:         row.Get(a.config.DateColumn),
			Amount:       row.Get(a.config.AmountColumn),
			Payee:        row.Get(a.config.PayeeColumn),
			MemoLines:    memoLines,
			DateLayouts:  a.config.DateLayouts,
			NegateAmount: a.config.NegateAmounts,
		})
		if err != nil {
			result.Rejected = append(result.Rejected, rejectionFor(a.sourceID, row.Line, err))
			result.Stats.Rejected++
			a.logger.WithFields(logger.Fields{
				"line":  row.Line,
				"error": err.Error(),
			}).Debug("Rejected property manager row")
			continue
		}

		if a.config.Mapping != nil {
			tx.Category = a.config.Mapping.Map(glAccount, tx.Payee, tx.Memo)
		} else if glAccount != "" {
			tx.Category = glAccount
		}

		result.Transactions = append(result.Transactions, tx)
		result.Stats.Produced++
	}

	a.logger.WithFields(logger.Fields{
		"source_id": a.sourceID,
		"rows":      result.Stats.RowsSeen,
		"produced":  result.Stats.Produced,
		"rejected":  result.Stats.Rejected,
		"excluded":  result.Stats.Excluded,
	}).Info("Property manager rows converted")
	return result, nil
}

// excludedBy reports whether the GL account matches an exclusion entry
func (a *PropertyManagerAdapter) excludedBy(glAccount string) (string, bool) {
	if glAccount == "" {
		return "", false
	}
	folded := strings.ToLower(glAccount)
	for _, label := range a.config.ExcludedGLAccounts {
		if label == "" {
			continue
		}
		if strings.Contains(folded, strings.ToLower(label)) {
			return label, true
		}
	}
	return "", false
}
