package matcher

import (
	"math"
	"strings"
	"testing"
	"time"

	"property-reconciliation-engine/internal/models"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func rawRecord(id uint, day time.Time, cents int64, payee string) *models.RawRecord {
	return &models.RawRecord{
		ID:          id,
		SourceID:    "bank",
		ExternalRef: payee,
		Version:     1,
		Date:        day,
		AmountCents: cents,
		Payee:       payee,
	}
}

func truthRecord(position int, day time.Time, cents int64, payee string) *models.TruthRecord {
	return &models.TruthRecord{
		SnapshotID:  "snap-1",
		Position:    position,
		SourceID:    "stessa",
		ExternalRef: payee,
		Date:        day,
		AmountCents: cents,
		Payee:       payee,
	}
}

func byClassification(outcome *MatchOutcome, classification models.Classification) []*models.MatchResult {
	var results []*models.MatchResult
	for _, result := range outcome.Results {
		if result.Classification == classification {
			results = append(results, result)
		}
	}
	return results
}

func newTestMatcher(t *testing.T, config *MatchingConfig) *Matcher {
	t.Helper()
	m, err := NewMatcher(config)
	if err != nil {
		t.Fatalf("NewMatcher() unexpected error: %v", err)
	}
	return m
}

func TestDefaultMatchingConfig(t *testing.T) {
	config := DefaultMatchingConfig()

	if config.DateToleranceDays != 3 {
		t.Errorf("DateToleranceDays = %d, want 3", config.DateToleranceDays)
	}
	if config.AmountToleranceCents != 1 {
		t.Errorf("AmountToleranceCents = %d, want 1", config.AmountToleranceCents)
	}
	if config.MinConfidenceScore != 0.6 {
		t.Errorf("MinConfidenceScore = %v, want 0.6", config.MinConfidenceScore)
	}
	if config.TieBreak != TieBreakIngestionOrder {
		t.Errorf("TieBreak = %v, want %v", config.TieBreak, TieBreakIngestionOrder)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if err := StrictMatchingConfig().Validate(); err != nil {
		t.Errorf("StrictMatchingConfig().Validate() unexpected error: %v", err)
	}
	if err := RelaxedMatchingConfig().Validate(); err != nil {
		t.Errorf("RelaxedMatchingConfig().Validate() unexpected error: %v", err)
	}
}

func TestMatchingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MatchingConfig)
		wantErr bool
	}{
		{name: "default is valid", mutate: func(c *MatchingConfig) {}, wantErr: false},
		{name: "negative date tolerance", mutate: func(c *MatchingConfig) { c.DateToleranceDays = -1 }, wantErr: true},
		{name: "negative amount tolerance", mutate: func(c *MatchingConfig) { c.AmountToleranceCents = -5 }, wantErr: true},
		{name: "percent above 100", mutate: func(c *MatchingConfig) { c.AmountTolerancePercent = 101 }, wantErr: true},
		{name: "confidence above 1", mutate: func(c *MatchingConfig) { c.MinConfidenceScore = 1.5 }, wantErr: true},
		{name: "probe below 0", mutate: func(c *MatchingConfig) { c.MismatchProbeScore = -0.1 }, wantErr: true},
		{name: "unknown tie break", mutate: func(c *MatchingConfig) { c.TieBreak = "coin-flip" }, wantErr: true},
		{name: "weights sum too low", mutate: func(c *MatchingConfig) {
			c.Weights = MatchingWeights{AmountWeight: 0.2, DateWeight: 0.2, PayeeWeight: 0.2}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMatchingConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAmountBandCents(t *testing.T) {
	config := DefaultMatchingConfig()
	config.AmountToleranceCents = 50
	config.AmountTolerancePercent = 1.0

	// the percentage band wins for large amounts
	if band := config.AmountBandCents(-100000); band != 1000 {
		t.Errorf("AmountBandCents(-100000) = %d, want 1000", band)
	}
	// the absolute band wins for small amounts
	if band := config.AmountBandCents(200); band != 50 {
		t.Errorf("AmountBandCents(200) = %d, want 50", band)
	}

	config.AmountTolerancePercent = 0.0
	if band := config.AmountBandCents(-100000); band != 50 {
		t.Errorf("AmountBandCents without percent = %d, want 50", band)
	}
}

func TestWithinDateTolerance(t *testing.T) {
	config := DefaultMatchingConfig()

	a := date(2025, time.March, 1)
	if !config.WithinDateTolerance(a, date(2025, time.March, 4)) {
		t.Error("WithinDateTolerance() = false for 3 days, want true")
	}
	if config.WithinDateTolerance(a, date(2025, time.March, 5)) {
		t.Error("WithinDateTolerance() = true for 4 days, want false")
	}
}

func TestTruthIndex(t *testing.T) {
	excluded := truthRecord(1, date(2025, time.March, 2), -5000, "Transfer")
	excluded.Excluded = true

	index := NewTruthIndex([]*models.TruthRecord{
		truthRecord(0, date(2025, time.March, 1), -150000, "ABC Management LLC"),
		excluded,
		truthRecord(2, date(2025, time.March, 3), 95000, "Unit 2 Tenant"),
	})

	if index.Size() != 2 {
		t.Fatalf("Size() = %d, want excluded record left out", index.Size())
	}

	window := index.WindowCandidates(date(2025, time.March, 2), 1)
	if len(window) != 2 {
		t.Fatalf("WindowCandidates() = %d entries, want 2", len(window))
	}
	if window[0].Record.Position != 0 || window[1].Record.Position != 2 {
		t.Errorf("WindowCandidates() order = %d,%d, want day order 0,2",
			window[0].Record.Position, window[1].Record.Position)
	}

	narrow := index.WindowCandidates(date(2025, time.March, 1), 0)
	if len(narrow) != 1 || narrow[0].Record.Position != 0 {
		t.Errorf("WindowCandidates() narrow = %v, want only the same-day record", narrow)
	}
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{name: "identical", a: "abc management llc", b: "abc management llc", want: 1.0},
		{name: "abbreviation keeps one token", a: "abc mgmt", b: "abc management llc", want: 0.5},
		{name: "disjoint", a: "utility co", b: "abc management", want: 0.0},
		{name: "subset", a: "abc", b: "abc management llc", want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenOverlap(models.PayeeTokens(tt.a), models.PayeeTokens(tt.b))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("tokenOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestLevenshteinRatio(t *testing.T) {
	if got := levenshteinRatio("abc", "abc"); got != 1.0 {
		t.Errorf("levenshteinRatio(identical) = %v, want 1.0", got)
	}
	if got := levenshteinRatio("", ""); got != 1.0 {
		t.Errorf("levenshteinRatio(empty) = %v, want 1.0", got)
	}
	// one substitution over four runes
	if got := levenshteinRatio("rent", "rant"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("levenshteinRatio(rent, rant) = %v, want 0.75", got)
	}
	if got := levenshteinRatio("abc", "xyz"); got != 0.0 {
		t.Errorf("levenshteinRatio(disjoint) = %v, want 0.0", got)
	}
}

func TestMatch_ExactPair(t *testing.T) {
	m := newTestMatcher(t, nil)

	outcome := m.Match(
		[]*models.RawRecord{rawRecord(1, date(2025, time.March, 1), -150000, "ABC Management LLC")},
		[]*models.TruthRecord{truthRecord(0, date(2025, time.March, 1), -150000, "ABC Management LLC")},
	)

	matched := byClassification(outcome, models.ClassificationMatched)
	if len(matched) != 1 {
		t.Fatalf("matched = %d, want 1", len(matched))
	}
	if math.Abs(matched[0].Confidence-1.0) > 1e-9 {
		t.Errorf("Confidence = %v, want 1.0 for an identical pair", matched[0].Confidence)
	}
	if outcome.Stats.Matched != 1 || outcome.Stats.MissingFromTruth != 0 || outcome.Stats.ExtraInTruth != 0 {
		t.Errorf("Stats = %+v, want a single clean match", outcome.Stats)
	}
}

func TestMatch_DriftedDateAndAbbreviatedPayee(t *testing.T) {
	m := newTestMatcher(t, nil)

	// bank posts on the 1st, the books record settlement on the 2nd, and
	// the payee is abbreviated on the bank side
	outcome := m.Match(
		[]*models.RawRecord{rawRecord(1, date(2025, time.March, 1), -150000, "ABC MGMT")},
		[]*models.TruthRecord{truthRecord(0, date(2025, time.March, 2), -150000, "ABC Management LLC")},
	)

	matched := byClassification(outcome, models.ClassificationMatched)
	if len(matched) != 1 {
		t.Fatalf("matched = %d, want 1 despite drift and abbreviation", len(matched))
	}

	// amount exact (0.4) + one day of drift (0.3 * 0.75) + half the payee
	// tokens shared (0.3 * 0.5)
	if math.Abs(matched[0].Confidence-0.775) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.775", matched[0].Confidence)
	}
	if len(matched[0].Reasons) == 0 {
		t.Error("Reasons is empty, want scoring breakdown")
	}
}

func TestMatch_DateWindowGates(t *testing.T) {
	m := newTestMatcher(t, nil)

	// identical amount and payee, but four days apart with a three-day
	// window: similarity never rescues a pair outside the window
	outcome := m.Match(
		[]*models.RawRecord{rawRecord(1, date(2025, time.March, 1), -150000, "ABC Management LLC")},
		[]*models.TruthRecord{truthRecord(0, date(2025, time.March, 5), -150000, "ABC Management LLC")},
	)

	if got := len(byClassification(outcome, models.ClassificationMatched)); got != 0 {
		t.Errorf("matched = %d, want 0 outside the date window", got)
	}
	if got := len(byClassification(outcome, models.ClassificationMissingFromTruth)); got != 1 {
		t.Errorf("missing = %d, want 1", got)
	}
	if got := len(byClassification(outcome, models.ClassificationExtraInTruth)); got != 1 {
		t.Errorf("extra = %d, want 1", got)
	}
}

func TestMatch_AmountMismatchProbe(t *testing.T) {
	m := newTestMatcher(t, nil)

	// same day and same payee but the amounts disagree well beyond
	// tolerance: reported as one mismatch, not as missing plus extra
	outcome := m.Match(
		[]*models.RawRecord{rawRecord(1, date(2025, time.March, 1), -150000, "ABC Management LLC")},
		[]*models.TruthRecord{truthRecord(0, date(2025, time.March, 1), -160000, "ABC Management LLC")},
	)

	mismatches := byClassification(outcome, models.ClassificationAmountMismatch)
	if len(mismatches) != 1 {
		t.Fatalf("mismatches = %d, want 1", len(mismatches))
	}
	if !strings.Contains(mismatches[0].Note, "AMT MISMATCH") {
		t.Errorf("Note = %q, want mismatch note", mismatches[0].Note)
	}
	if !strings.Contains(mismatches[0].Note, "-1500.00") || !strings.Contains(mismatches[0].Note, "-1600.00") {
		t.Errorf("Note = %q, want both amounts", mismatches[0].Note)
	}
	if outcome.Stats.MissingFromTruth != 0 || outcome.Stats.ExtraInTruth != 0 {
		t.Errorf("Stats = %+v, want no unmatched leftovers", outcome.Stats)
	}
}

func TestMatch_ProbeRequiresPayeeEvidence(t *testing.T) {
	m := newTestMatcher(t, nil)

	// same day, different amounts, unrelated payees: two strangers, not
	// an amount mismatch
	outcome := m.Match(
		[]*models.RawRecord{rawRecord(1, date(2025, time.March, 1), -150000, "Utility Co")},
		[]*models.TruthRecord{truthRecord(0, date(2025, time.March, 1), -90000, "ABC Management LLC")},
	)

	if got := len(byClassification(outcome, models.ClassificationAmountMismatch)); got != 0 {
		t.Errorf("mismatches = %d, want 0 without payee evidence", got)
	}
	if outcome.Stats.MissingFromTruth != 1 || outcome.Stats.ExtraInTruth != 1 {
		t.Errorf("Stats = %+v, want one missing and one extra", outcome.Stats)
	}
}

func TestMatch_GreedyPrefersCloserDate(t *testing.T) {
	m := newTestMatcher(t, nil)

	outcome := m.Match(
		[]*models.RawRecord{
			rawRecord(1, date(2025, time.March, 6), -95000, "Unit 2 Tenant"),
			rawRecord(2, date(2025, time.March, 5), -95000, "Unit 2 Tenant"),
		},
		[]*models.TruthRecord{truthRecord(0, date(2025, time.March, 5), -95000, "Unit 2 Tenant")},
	)

	matched := byClassification(outcome, models.ClassificationMatched)
	if len(matched) != 1 {
		t.Fatalf("matched = %d, want 1", len(matched))
	}
	if matched[0].Raw.ID != 2 {
		t.Errorf("matched raw ID = %d, want the same-day record 2", matched[0].Raw.ID)
	}

	missing := byClassification(outcome, models.ClassificationMissingFromTruth)
	if len(missing) != 1 || missing[0].Raw.ID != 1 {
		t.Errorf("missing = %v, want the drifted record 1", missing)
	}
}

func TestMatch_TieFallsToIngestionOrder(t *testing.T) {
	m := newTestMatcher(t, nil)

	// identical candidates; the earlier-ingested raw record wins
	outcome := m.Match(
		[]*models.RawRecord{
			rawRecord(7, date(2025, time.March, 5), -95000, "Unit 2 Tenant"),
			rawRecord(3, date(2025, time.March, 5), -95000, "Unit 2 Tenant"),
		},
		[]*models.TruthRecord{truthRecord(0, date(2025, time.March, 5), -95000, "Unit 2 Tenant")},
	)

	matched := byClassification(outcome, models.ClassificationMatched)
	if len(matched) != 1 {
		t.Fatalf("matched = %d, want 1", len(matched))
	}
	if matched[0].Raw.ID != 3 {
		t.Errorf("matched raw ID = %d, want earliest-ingested 3", matched[0].Raw.ID)
	}
}

func TestSortPairs_TieBreakPolicies(t *testing.T) {
	rawA := rawRecord(1, date(2025, time.March, 1), -100, "a")
	rawB := rawRecord(2, date(2025, time.March, 1), -100, "b")
	truthA := truthRecord(0, date(2025, time.March, 1), -100, "a")
	truthB := truthRecord(1, date(2025, time.March, 1), -100, "b")

	build := func() []*candidatePair {
		return []*candidatePair{
			{raw: rawB, entry: &TruthEntry{Record: truthB}, score: 0.8, payeeScore: 0.9},
			{raw: rawA, entry: &TruthEntry{Record: truthA}, score: 0.8, payeeScore: 0.4},
		}
	}

	ingestion := newTestMatcher(t, nil)
	pairs := build()
	ingestion.sortPairs(pairs)
	if pairs[0].raw.ID != 1 {
		t.Errorf("ingestion-order tie: first raw ID = %d, want 1", pairs[0].raw.ID)
	}

	config := DefaultMatchingConfig()
	config.TieBreak = TieBreakPayeeSimilarity
	payee := newTestMatcher(t, config)
	pairs = build()
	payee.sortPairs(pairs)
	if pairs[0].payeeScore != 0.9 {
		t.Errorf("payee-similarity tie: first payee score = %v, want 0.9", pairs[0].payeeScore)
	}
}

func TestMatch_ExcludedTruthIgnored(t *testing.T) {
	m := newTestMatcher(t, nil)

	excluded := truthRecord(0, date(2025, time.March, 1), -150000, "ABC Management LLC")
	excluded.Excluded = true
	excluded.ExcludeReason = "internal transfer"

	outcome := m.Match(
		[]*models.RawRecord{rawRecord(1, date(2025, time.March, 1), -150000, "ABC Management LLC")},
		[]*models.TruthRecord{excluded},
	)

	if outcome.Stats.TruthCount != 0 {
		t.Errorf("TruthCount = %d, want excluded records uncounted", outcome.Stats.TruthCount)
	}
	if got := len(byClassification(outcome, models.ClassificationMissingFromTruth)); got != 1 {
		t.Errorf("missing = %d, want the raw record unmatched", got)
	}
	if got := len(byClassification(outcome, models.ClassificationExtraInTruth)); got != 0 {
		t.Errorf("extra = %d, want excluded record never reported", got)
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := newTestMatcher(t, nil)

	outcome := m.Match(nil, nil)
	if len(outcome.Results) != 0 {
		t.Errorf("Results = %d, want none for empty inputs", len(outcome.Results))
	}

	outcome = m.Match(
		[]*models.RawRecord{rawRecord(1, date(2025, time.March, 1), -100, "Someone")},
		nil,
	)
	if got := len(byClassification(outcome, models.ClassificationMissingFromTruth)); got != 1 {
		t.Errorf("missing = %d, want 1 with an empty truth side", got)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	m := newTestMatcher(t, nil)

	raw := []*models.RawRecord{
		rawRecord(1, date(2025, time.March, 1), -150000, "ABC MGMT"),
		rawRecord(2, date(2025, time.March, 3), -95000, "Unit 2 Tenant"),
		rawRecord(3, date(2025, time.March, 4), -4200, "Water Works"),
	}
	truth := []*models.TruthRecord{
		truthRecord(0, date(2025, time.March, 2), -150000, "ABC Management LLC"),
		truthRecord(1, date(2025, time.March, 3), -95000, "Unit 2 Tenant"),
		truthRecord(2, date(2025, time.March, 6), -777700, "Roofer"),
	}

	first := m.Match(raw, truth)
	second := m.Match(raw, truth)

	if len(first.Results) != len(second.Results) {
		t.Fatalf("result counts differ: %d vs %d", len(first.Results), len(second.Results))
	}
	for i := range first.Results {
		a, b := first.Results[i], second.Results[i]
		if a.Classification != b.Classification || a.Confidence != b.Confidence {
			t.Errorf("result %d differs between runs: %v vs %v", i, a, b)
		}
		if (a.Raw == nil) != (b.Raw == nil) || (a.Truth == nil) != (b.Truth == nil) {
			t.Errorf("result %d sides differ between runs", i)
		}
	}
	if first.Stats != second.Stats {
		t.Errorf("stats differ: %+v vs %+v", first.Stats, second.Stats)
	}
}
