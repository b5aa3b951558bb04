package matcher

import (
	"fmt"
	"sort"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/logger"
)

// MatchStats summarizes one matching pass
type MatchStats struct {
	RawCount         int `json:"raw_count"`
	TruthCount       int `json:"truth_count"`
	CandidatePairs   int `json:"candidate_pairs"`
	Matched          int `json:"matched"`
	AmountMismatches int `json:"amount_mismatches"`
	MissingFromTruth int `json:"missing_from_truth"`
	ExtraInTruth     int `json:"extra_in_truth"`
}

// MatchOutcome holds the results of one matching pass. Every raw record
// and every matchable truth record appears in exactly one result.
type MatchOutcome struct {
	Results []*models.MatchResult
	Stats   MatchStats
}

// Matcher pairs raw source records with truth platform records
type Matcher struct {
	config *MatchingConfig
	logger logger.Logger
}

// NewMatcher creates a matcher with the given configuration. A nil config
// selects DefaultMatchingConfig.
func NewMatcher(config *MatchingConfig) (*Matcher, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}, nil
}

// Config returns a copy of the active configuration
func (m *Matcher) Config() *MatchingConfig {
	return m.config.Clone()
}

// rawSide is one raw record with its matching text precomputed
type rawSide struct {
	record *models.RawRecord
	folded string
	tokens []string
}

// candidatePair is one scored raw-truth pairing
type candidatePair struct {
	rawIdx     int
	raw        *models.RawRecord
	entry      *TruthEntry
	score      float64
	payeeScore float64
	reasons    []string
}

// Match pairs the raw records against the truth records. Each raw record
// pairs with at most one truth record and vice versa. Candidates must agree
// on date within the window and on amount within tolerance; payee
// similarity only ranks them. Pairs are accepted greedily in descending
// score order, with exact ties resolved by the configured tie-break policy,
// then by earliest raw ingestion order and earliest truth export order.
//
// Leftover records on either side are probed once more for pairs that
// agree on date and payee but not amount; those become amount mismatches.
// Whatever remains is reported missing-from-truth or extra-in-truth.
//
// Truth records marked excluded are ignored entirely. The same inputs
// always produce the same outcome.
func (m *Matcher) Match(raw []*models.RawRecord, truth []*models.TruthRecord) *MatchOutcome {
	index := NewTruthIndex(truth)

	outcome := &MatchOutcome{}
	outcome.Stats.RawCount = len(raw)
	outcome.Stats.TruthCount = index.Size()

	sides := make([]*rawSide, len(raw))
	for i, record := range raw {
		sides[i] = &rawSide{
			record: record,
			folded: models.FoldPayee(record.Payee),
			tokens: models.PayeeTokens(record.Payee),
		}
	}

	// score every candidate pair that passes the date and amount gates
	var pairs []*candidatePair
	for i, side := range sides {
		for _, entry := range index.WindowCandidates(side.record.Date, m.config.DateToleranceDays) {
			if !m.config.WithinAmountTolerance(side.record.AmountCents, entry.Record.AmountCents) {
				continue
			}
			pairs = append(pairs, m.scorePair(i, side, entry))
		}
	}
	outcome.Stats.CandidatePairs = len(pairs)
	m.sortPairs(pairs)

	rawTaken := make([]bool, len(raw))
	truthTaken := make([]bool, index.Size())

	for _, pair := range pairs {
		if pair.score < m.config.MinConfidenceScore {
			// sorted descending, nothing further can qualify
			break
		}
		if rawTaken[pair.rawIdx] || truthTaken[pair.entry.ord] {
			continue
		}
		rawTaken[pair.rawIdx] = true
		truthTaken[pair.entry.ord] = true
		outcome.Results = append(outcome.Results, &models.MatchResult{
			Raw:            pair.raw,
			Truth:          pair.entry.Record,
			Confidence:     pair.score,
			Classification: models.ClassificationMatched,
			Reasons:        pair.reasons,
		})
		outcome.Stats.Matched++
	}

	// probe leftovers for pairs that agree on everything except amount
	var probes []*candidatePair
	for i, side := range sides {
		if rawTaken[i] {
			continue
		}
		for _, entry := range index.WindowCandidates(side.record.Date, m.config.DateToleranceDays) {
			if truthTaken[entry.ord] {
				continue
			}
			if m.config.WithinAmountTolerance(side.record.AmountCents, entry.Record.AmountCents) {
				// amounts agree, so this pair already had its chance above
				continue
			}
			probes = append(probes, m.scoreProbe(i, side, entry))
		}
	}
	m.sortPairs(probes)

	for _, pair := range probes {
		if pair.score < m.config.MismatchProbeScore {
			break
		}
		// date proximity alone is not evidence of sameness, the payee
		// has to carry some of it
		if pair.payeeScore < m.config.MismatchProbeScore {
			continue
		}
		if rawTaken[pair.rawIdx] || truthTaken[pair.entry.ord] {
			continue
		}
		rawTaken[pair.rawIdx] = true
		truthTaken[pair.entry.ord] = true
		outcome.Results = append(outcome.Results, &models.MatchResult{
			Raw:            pair.raw,
			Truth:          pair.entry.Record,
			Confidence:     pair.score,
			Classification: models.ClassificationAmountMismatch,
			Note: fmt.Sprintf("AMT MISMATCH: %s vs %s",
				models.FormatCents(pair.raw.AmountCents), models.FormatCents(pair.entry.Record.AmountCents)),
			Reasons: pair.reasons,
		})
		outcome.Stats.AmountMismatches++
	}

	for i, side := range sides {
		if rawTaken[i] {
			continue
		}
		outcome.Results = append(outcome.Results, &models.MatchResult{
			Raw:            side.record,
			Classification: models.ClassificationMissingFromTruth,
		})
		outcome.Stats.MissingFromTruth++
	}
	for _, entry := range index.Entries() {
		if truthTaken[entry.ord] {
			continue
		}
		outcome.Results = append(outcome.Results, &models.MatchResult{
			Truth:          entry.Record,
			Classification: models.ClassificationExtraInTruth,
		})
		outcome.Stats.ExtraInTruth++
	}

	m.logger.WithFields(logger.Fields{
		"raw":        outcome.Stats.RawCount,
		"truth":      outcome.Stats.TruthCount,
		"candidates": outcome.Stats.CandidatePairs,
		"matched":    outcome.Stats.Matched,
		"mismatches": outcome.Stats.AmountMismatches,
		"missing":    outcome.Stats.MissingFromTruth,
		"extra":      outcome.Stats.ExtraInTruth,
	}).Info("Matching pass complete")
	return outcome
}

// scorePair scores a candidate pair over amount, date and payee
func (m *Matcher) scorePair(rawIdx int, side *rawSide, entry *TruthEntry) *candidatePair {
	days := models.DaysBetween(side.record.Date, entry.Record.Date)
	dateScore := 1.0 - float64(days)/float64(m.config.DateToleranceDays+1)
	amountScore := m.amountScore(side.record.AmountCents, entry.Record.AmountCents)
	payeeScore := payeeSimilarity(side.folded, side.tokens, entry.folded, entry.tokens)

	weights := m.config.Weights
	score := weights.AmountWeight*amountScore + weights.DateWeight*dateScore + weights.PayeeWeight*payeeScore

	reasons := []string{
		m.amountReason(side.record.AmountCents, entry.Record.AmountCents),
		dateReason(days),
		fmt.Sprintf("payee similarity %.2f", payeeScore),
	}
	return &candidatePair{
		rawIdx:     rawIdx,
		raw:        side.record,
		entry:      entry,
		score:      score,
		payeeScore: payeeScore,
		reasons:    reasons,
	}
}

// scoreProbe scores a leftover pair on date and payee agreement alone,
// normalized so the probe threshold keeps its meaning under any weights
func (m *Matcher) scoreProbe(rawIdx int, side *rawSide, entry *TruthEntry) *candidatePair {
	days := models.DaysBetween(side.record.Date, entry.Record.Date)
	dateScore := 1.0 - float64(days)/float64(m.config.DateToleranceDays+1)
	payeeScore := payeeSimilarity(side.folded, side.tokens, entry.folded, entry.tokens)

	weights := m.config.Weights
	score := 0.0
	if denominator := weights.DateWeight + weights.PayeeWeight; denominator > 0 {
		score = (weights.DateWeight*dateScore + weights.PayeeWeight*payeeScore) / denominator
	}

	reasons := []string{
		dateReason(days),
		fmt.Sprintf("payee similarity %.2f", payeeScore),
		"amounts disagree beyond tolerance",
	}
	return &candidatePair{
		rawIdx:     rawIdx,
		raw:        side.record,
		entry:      entry,
		score:      score,
		payeeScore: payeeScore,
		reasons:    reasons,
	}
}

// amountScore rates amount agreement: exact equality scores 1.0 and a
// difference at the edge of the tolerance band scores 0.5
func (m *Matcher) amountScore(rawCents, truthCents int64) float64 {
	diff := rawCents - truthCents
	if diff < 0 {
		diff = -diff
	}
	if diff == 0 {
		return 1.0
	}
	band := m.config.AmountBandCents(truthCents)
	if band == 0 {
		return 0.0
	}
	return 1.0 - 0.5*float64(diff)/float64(band)
}

func (m *Matcher) amountReason(rawCents, truthCents int64) string {
	if rawCents == truthCents {
		return "amount exact"
	}
	return fmt.Sprintf("amount within tolerance (%s vs %s)",
		models.FormatCents(rawCents), models.FormatCents(truthCents))
}

func dateReason(days int) string {
	switch days {
	case 0:
		return "same day"
	case 1:
		return "date off by 1 day"
	default:
		return fmt.Sprintf("date off by %d days", days)
	}
}

// sortPairs orders pairs by descending score with deterministic ties:
// the configured policy first, then earliest raw ingestion order, then
// earliest truth export order
func (m *Matcher) sortPairs(pairs []*candidatePair) {
	byPayee := m.config.TieBreak == TieBreakPayeeSimilarity
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if byPayee && a.payeeScore != b.payeeScore {
			return a.payeeScore > b.payeeScore
		}
		if a.raw.ID != b.raw.ID {
			return a.raw.ID < b.raw.ID
		}
		return a.entry.Record.Position < b.entry.Record.Position
	})
}

// payeeSimilarity rates two payees as the better of token overlap and
// whole-string edit distance. Token overlap forgives abbreviations that
// keep whole words ("ABC MGMT" vs "ABC Management LLC") while edit
// distance forgives small typos.
func payeeSimilarity(foldedA string, tokensA []string, foldedB string, tokensB []string) float64 {
	overlap := tokenOverlap(tokensA, tokensB)
	ratio := levenshteinRatio(foldedA, foldedB)
	if overlap > ratio {
		return overlap
	}
	return ratio
}

// tokenOverlap is the share of the smaller token set found in the larger
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	setA := make(map[string]struct{}, len(a))
	for _, token := range a {
		setA[token] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, token := range b {
		setB[token] = struct{}{}
	}

	shared := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			shared++
		}
	}
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(shared) / float64(smaller)
}

// levenshteinRatio is edit distance normalized to [0, 1], where 1.0 means
// the strings are identical
func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	runesA, runesB := []rune(a), []rune(b)
	longest := len(runesA)
	if len(runesB) > longest {
		longest = len(runesB)
	}
	distance := levenshtein.DistanceForStrings(runesA, runesB, levenshtein.DefaultOptions)
	return 1.0 - float64(distance)/float64(longest)
}
