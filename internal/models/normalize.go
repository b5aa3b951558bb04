package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "property-reconciliation-engine/pkg/errors"
)

// DefaultDateLayouts lists accepted date formats in priority order. Source
// exports carry either ISO dates or US-style slash dates, sometimes with a
// time-of-day component that is discarded.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"Jan 2, 2006",
}

// ParseAmountCents parses a monetary string into signed integer cents.
// Currency symbols and thousand separators are stripped; parentheses denote
// a negative amount. Sub-cent precision is rejected.
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount '%s' has sub-cent precision", s)
	}

	value := cents.IntPart()
	if negative {
		value = -value
	}
	return value, nil
}

// FormatCents renders integer cents as a fixed two-decimal string
func FormatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// ParseDateDaily parses a date string against the given layouts (or
// DefaultDateLayouts when nil) and truncates the result to midnight UTC.
// Statements and exports are daily-granularity; any time component is noise.
func ParseDateDaily(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}

	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DayOf(t), nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DayOf truncates a timestamp to midnight UTC
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute difference between two dates in whole
// calendar days
func DaysBetween(a, b time.Time) int {
	diff := DayOf(a).Sub(DayOf(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// FoldPayee normalizes a payee string for comparison: whitespace collapsed,
// case folded. The stored payee keeps its original casing for display.
func FoldPayee(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// PayeeTokens splits a payee into case-folded comparison tokens
func PayeeTokens(s string) []string {
	return strings.Fields(FoldPayee(s))
}

// Memo flattening. Multi-line memos are carried as a single display-safe
// line: each line has backslashes and pipes escaped, lines are joined with
// " | ", and a "[memo:N]" tag records the original line count so a consumer
// can re-split losslessly. Single-line memos are stored verbatim, untagged.

const memoDelimiter = " | "

// FlattenMemo converts memo lines into the single-line persisted form
func FlattenMemo(lines []string) string {
	switch len(lines) {
	case 0:
		return ""
	case 1:
		return strings.TrimSpace(lines[0])
	}

	escaped := make([]string, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.ReplaceAll(line, `\`, `\\`)
		line = strings.ReplaceAll(line, `|`, `\|`)
		escaped[i] = line
	}
	return fmt.Sprintf("[memo:%d] %s", len(lines), strings.Join(escaped, memoDelimiter))
}

// SplitMemo reverses FlattenMemo. Untagged memos are returned as a single
// line; tagged memos are split on the delimiter and unescaped.
func SplitMemo(memo string) []string {
	if memo == "" {
		return nil
	}
	if !strings.HasPrefix(memo, "[memo:") {
		return []string{memo}
	}

	end := strings.Index(memo, "] ")
	if end < 0 {
		return []string{memo}
	}
	countStr := memo[len("[memo:"):end]
	if _, err := strconv.Atoi(countStr); err != nil {
		return []string{memo}
	}

	body := memo[end+len("] "):]
	parts := strings.Split(body, memoDelimiter)
	lines := make([]string, len(parts))
	for i, part := range parts {
		lines[i] = unescapeMemoLine(part)
	}
	return lines
}

func unescapeMemoLine(s string) string {
	var sb strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	if escaped {
		sb.WriteRune('\\')
	}
	return sb.String()
}

// RowHash derives a stable external reference from row content, for sources
// whose exports carry no native transaction identifier
func RowHash(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// NormalizeInput carries the loosely-typed field values extracted from one
// source row. Dates and amounts arrive as strings; format conventions are
// resolved here, not in the adapters' dispatch logic.
type NormalizeInput struct {
	SourceID     string   // defaults to the source kind when empty
	ExternalRef  string   // a row hash is derived when empty
	Date         string
	Amount       string
	Payee        string
	Category     string
	MemoLines    []string
	DateLayouts  []string // defaults to DefaultDateLayouts when nil
	NegateAmount bool     // sign transform applied at normalization, never later
}

// Normalize converts one raw source row into a CanonicalTransaction. It
// fails with a malformed-record error when the date or amount cannot be
// parsed and otherwise always succeeds; business-level validation (sign,
// ranges, categories) is not its concern.
func Normalize(kind SourceKind, in NormalizeInput) (*CanonicalTransaction, error) {
	sourceID := in.SourceID
	if sourceID == "" {
		sourceID = string(kind)
	}

	date, err := ParseDateDaily(in.Date, in.DateLayouts)
	if err != nil {
		return nil, apperrors.MalformedRecordError(sourceID, "date", in.Date, err.Error())
	}

	cents, err := ParseAmountCents(in.Amount)
	if err != nil {
		return nil, apperrors.MalformedRecordError(sourceID, "amount", in.Amount, err.Error())
	}
	if in.NegateAmount {
		cents = -cents
	}

	payee := strings.Join(strings.Fields(in.Payee), " ")
	memo := FlattenMemo(in.MemoLines)

	ref := strings.TrimSpace(in.ExternalRef)
	if ref == "" {
		ref = RowHash(sourceID, date.Format(DateLayout), strconv.FormatInt(cents, 10), FoldPayee(payee))
	}

	return &CanonicalTransaction{
		SourceID:    sourceID,
		ExternalRef: ref,
		Date:        date,
		AmountCents: cents,
		Payee:       payee,
		Category:    strings.TrimSpace(in.Category),
		Memo:        memo,
	}, nil
}
