package adapters

import (
	"fmt"
	"strings"

	"property-reconciliation-engine/internal/csvio"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// BankFormat describes how one bank lays out its statement export.
// Column names are matched case-insensitively against the file header.
type BankFormat struct {
	// Name identifies the format, e.g. "huntington"
	Name string `json:"name"`
	// RefColumn holds the bank's own transaction identifier. Optional;
	// when empty or blank in a row, a content hash stands in for it.
	RefColumn string `json:"ref_column,omitempty"`
	// DateColumn holds the transaction date
	DateColumn string `json:"date_column"`
	// AmountColumn holds the signed transaction amount
	AmountColumn string `json:"amount_column"`
	// PayeeColumn holds the counterparty description
	PayeeColumn string `json:"payee_column"`
	// MemoColumn holds free-form notes. Optional.
	MemoColumn string `json:"memo_column,omitempty"`

	// PrincipalColumn, InterestColumn and EscrowColumn carry the component
	// breakdown of a mortgage payment. When any of them is non-empty in a
	// row, the row is treated as a composite payment and split.
	PrincipalColumn string `json:"principal_column,omitempty"`
	InterestColumn  string `json:"interest_column,omitempty"`
	EscrowColumn    string `json:"escrow_column,omitempty"`

	// DateLayouts lists the accepted date formats, tried in order.
	// Empty means the shared default layouts.
	DateLayouts []string `json:"date_layouts,omitempty"`
	// HasHeader indicates whether the first row contains column names
	HasHeader bool `json:"has_header"`
	// Delimiter is the field separator (0 means comma)
	Delimiter rune `json:"delimiter,omitempty"`
	// Description is a human-readable summary of the format
	Description string `json:"description,omitempty"`
}

// Validate checks that the format names the columns the adapter depends on
func (f *BankFormat) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "bank_format.name", f.Name, nil)
	}
	if strings.TrimSpace(f.DateColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "bank_format.date_column", f.DateColumn, nil)
	}
	if strings.TrimSpace(f.AmountColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "bank_format.amount_column", f.AmountColumn, nil)
	}
	return nil
}

// RequiredColumns returns the header names the export file must contain
func (f *BankFormat) RequiredColumns() []string {
	return []string{f.DateColumn, f.AmountColumn}
}

// ReadConfig builds the CSV read settings this format expects
func (f *BankFormat) ReadConfig() *csvio.ReadConfig {
	config := csvio.DefaultReadConfig()
	config.HasHeader = f.HasHeader
	if f.Delimiter != 0 {
		config.Delimiter = f.Delimiter
	}
	return config
}

// Predefined bank formats
var (
	// HuntingtonFormat matches Huntington mortgage statement exports,
	// which break each payment into principal, interest and escrow
	HuntingtonFormat = &BankFormat{
		Name:            "huntington",
		RefColumn:       "Reference",
		DateColumn:      "Date",
		AmountColumn:    "Amount",
		PayeeColumn:     "Description",
		MemoColumn:      "Memo",
		PrincipalColumn: "Principal",
		InterestColumn:  "Interest",
		EscrowColumn:    "Escrow",
		DateLayouts:     []string{"01/02/2006", "1/2/2006"},
		HasHeader:       true,
		Description:     "Huntington mortgage statement with payment breakdown columns",
	}

	// PNCFormat matches PNC mortgage statement exports
	PNCFormat = &BankFormat{
		Name:            "pnc",
		RefColumn:       "Transaction ID",
		DateColumn:      "Date",
		AmountColumn:    "Amount",
		PayeeColumn:     "Description",
		PrincipalColumn: "Principal Amount",
		InterestColumn:  "Interest Amount",
		EscrowColumn:    "Escrow Amount",
		DateLayouts:     []string{"2006-01-02", "01/02/2006"},
		HasHeader:       true,
		Description:     "PNC mortgage statement with payment breakdown columns",
	}

	// GenericBankFormat matches plain date/amount/description exports
	// with no composite breakdown
	GenericBankFormat = &BankFormat{
		Name:         "generic",
		DateColumn:   "Date",
		AmountColumn: "Amount",
		PayeeColumn:  "Description",
		HasHeader:    true,
		Description:  "Generic bank export with date, amount and description columns",
	}
)

// bankFormats indexes the predefined formats by name
var bankFormats = map[string]*BankFormat{
	HuntingtonFormat.Name:  HuntingtonFormat,
	PNCFormat.Name:         PNCFormat,
	GenericBankFormat.Name: GenericBankFormat,
}

// BankFormatByName looks up a predefined bank format
func BankFormatByName(name string) (*BankFormat, error) {
	format, ok := bankFormats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "bank_format", name, nil).
			WithSuggestion(fmt.Sprintf("known formats: %s", strings.Join(BankFormatNames(), ", ")))
	}
	return format, nil
}

// BankFormatNames lists the predefined format names in stable order
func BankFormatNames() []string {
	return []string{GenericBankFormat.Name, HuntingtonFormat.Name, PNCFormat.Name}
}

// splitComponent pairs a composite-payment component with its column
type splitComponent struct {
	name   string
	column string
}

// BankAdapter converts bank statement rows into canonical transactions,
// splitting composite mortgage payments into their components
type BankAdapter struct {
	sourceID string
	format   *BankFormat
	logger   logger.Logger
}

// NewBankAdapter creates a bank adapter for the given source and format.
// A nil format selects GenericBankFormat.
func NewBankAdapter(sourceID string, format *BankFormat) (*BankAdapter, error) {
	if strings.TrimSpace(sourceID) == "" {
		sourceID = string(models.KindBankStatement)
	}
	if format == nil {
		format = GenericBankFormat
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &BankAdapter{
		sourceID: sourceID,
		format:   format,
		logger:   logger.GetGlobalLogger().WithComponent("bank_adapter").WithField("format", format.Name),
	}, nil
}

// Source returns the adapter's source kind
func (a *BankAdapter) Source() models.SourceKind {
	return models.KindBankStatement
}

// Format returns the bank format in use
func (a *BankAdapter) Format() *BankFormat {
	return a.format
}

// Produce maps statement rows to canonical transactions. Composite payment
// rows are replaced by their component transactions; a row whose components
// do not sum to its total is rejected and never emitted.
func (a *BankAdapter) Produce(rows []csvio.Row) (*ProduceResult, error) {
	result := &ProduceResult{}
	result.Stats.RowsSeen = len(rows)

	for _, row := range rows {
		tx, err := a.normalizeRow(row)
		if err != nil {
			result.Rejected = append(result.Rejected, rejectionFor(a.sourceID, row.Line, err))
			result.Stats.Rejected++
			a.logger.WithFields(logger.Fields{
				"line":  row.Line,
				"error": err.Error(),
			}).Debug("Rejected bank statement row")
			continue
		}

		components, err := a.parseComponents(row)
		if err != nil {
			result.Rejected = append(result.Rejected, rejectionFor(a.sourceID, row.Line, err))
			result.Stats.Rejected++
			continue
		}
		if len(components) == 0 {
			result.Transactions = append(result.Transactions, tx)
			result.Stats.Produced++
			continue
		}

		children, err := splitComposite(tx, components)
		if err != nil {
			// the row is dropped entirely so a broken breakdown cannot
			// leak a partial payment into matching
			result.Rejected = append(result.Rejected, rejectionFor(a.sourceID, row.Line, err))
			result.Stats.Rejected++
			a.logger.WithFields(logger.Fields{
				"line":         row.Line,
				"external_ref": tx.ExternalRef,
				"error":        err.Error(),
			}).Error("Composite payment components do not sum to the row total")
			continue
		}
		result.Transactions = append(result.Transactions, children...)
		result.Stats.Produced += len(children)
		result.Stats.CompositeSplits++
	}

	a.logger.WithFields(logger.Fields{
		"source_id": a.sourceID,
		"rows":      result.Stats.RowsSeen,
		"produced":  result.Stats.Produced,
		"rejected":  result.Stats.Rejected,
		"splits":    result.Stats.CompositeSplits,
	}).Info("Bank statement rows converted")
	return result, nil
}

// normalizeRow builds the row's canonical transaction before any splitting
func (a *BankAdapter) normalizeRow(row csvio.Row) (*models.CanonicalTransaction, error) {
	var memoLines []string
	if a.format.MemoColumn != "" {
		if memo := strings.TrimSpace(row.Get(a.format.MemoColumn)); memo != "" {
			memoLines = append(memoLines, memo)
		}
	}
	return models.Normalize(models.KindBankStatement, models.NormalizeInput{
		SourceID:    a.sourceID,
		ExternalRef: row.Get(a.format.RefColumn),
		Date:        row.Get(a.format.DateColumn),
		Amount:      row.Get(a.format.AmountColumn),
		Payee:       row.Get(a.format.PayeeColumn),
		MemoLines:   memoLines,
		DateLayouts: a.format.DateLayouts,
	})
}

// parseComponents reads the composite breakdown columns of a row. It
// returns nil when the format has no breakdown columns or the row leaves
// them all blank.
func (a *BankAdapter) parseComponents(row csvio.Row) ([]parsedComponent, error) {
	declared := []splitComponent{
		{name: "principal", column: a.format.PrincipalColumn},
		{name: "interest", column: a.format.InterestColumn},
		{name: "escrow", column: a.format.EscrowColumn},
	}

	var components []parsedComponent
	for _, component := range declared {
		if component.column == "" {
			continue
		}
		value := strings.TrimSpace(row.Get(component.column))
		if value == "" {
			continue
		}
		cents, err := models.ParseAmountCents(value)
		if err != nil {
			return nil, errors.MalformedRecordError(a.sourceID, component.column, value, err.Error())
		}
		components = append(components, parsedComponent{name: component.name, cents: cents})
	}
	return components, nil
}

// parsedComponent is one resolved piece of a composite payment
type parsedComponent struct {
	name  string
	cents int64
}

// splitComposite replaces a composite payment with one transaction per
// non-zero component. The component amounts must sum exactly to the
// parent amount.
func splitComposite(parent *models.CanonicalTransaction, components []parsedComponent) ([]*models.CanonicalTransaction, error) {
	var sum int64
	for _, component := range components {
		sum += component.cents
	}
	if sum != parent.AmountCents {
		return nil, errors.SplitInvariantError(parent.ExternalRef, parent.AmountCents, sum)
	}

	var children []*models.CanonicalTransaction
	for _, component := range components {
		if component.cents == 0 {
			continue
		}
		child := *parent
		child.ExternalRef = parent.ExternalRef + "/" + component.name
		child.AmountCents = component.cents
		if parent.Memo == "" {
			child.Memo = models.FlattenMemo([]string{component.name + " portion"})
		} else {
			child.Memo = models.FlattenMemo(append(models.SplitMemo(parent.Memo), component.name+" portion"))
		}
		children = append(children, &child)
	}
	return children, nil
}
