package reconciler

import (
	"encoding/json"
	"testing"
	"time"

	"property-reconciliation-engine/internal/matcher"
	"property-reconciliation-engine/internal/models"
)

func date(day int) time.Time {
	return time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC)
}

func rawRecord(id uint, day int, cents int64, payee string) *models.RawRecord {
	return &models.RawRecord{
		ID:          id,
		SourceID:    "huntington-checking",
		ExternalRef: payee + "-raw",
		Version:     1,
		Date:        date(day),
		AmountCents: cents,
		Payee:       payee,
	}
}

func truthRecord(id uint, position, day int, cents int64, payee string) *models.TruthRecord {
	return &models.TruthRecord{
		ID:          id,
		SnapshotID:  "snap-1",
		Position:    position,
		SourceID:    "stessa",
		ExternalRef: payee + "-truth",
		Date:        date(day),
		AmountCents: cents,
		Payee:       payee,
	}
}

// testInput covers all four classifications in one window:
// raw 1 matches truth position 0 exactly, raw 2 pairs with truth
// position 1 on date and payee but disagrees on amount, raw 3 has no
// truth counterpart, and truth position 2 has no raw counterpart.
func testInput() Input {
	return Input{
		Raw: []*models.RawRecord{
			rawRecord(1, 5, -150000, "Huntington Mortgage"),
			rawRecord(2, 12, -42000, "City Water Utility"),
			rawRecord(3, 20, 95000, "ABC Management"),
		},
		Truth: []*models.TruthRecord{
			truthRecord(11, 0, 5, -150000, "Huntington Mortgage"),
			truthRecord(12, 1, 12, -40000, "City Water Utility"),
			truthRecord(13, 2, 27, -8500, "Joe's Plumbing"),
		},
		WindowStart: date(1),
		WindowEnd:   date(31),
		SnapshotID:  "snap-1",
	}
}

func TestReconcile_GroupsFollowFixedOrder(t *testing.T) {
	report, err := Reconcile(testInput(), matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if len(report.Groups) != len(GroupOrder) {
		t.Fatalf("len(Groups) = %d, want %d", len(report.Groups), len(GroupOrder))
	}
	for i, classification := range GroupOrder {
		if report.Groups[i].Classification != classification {
			t.Errorf("Groups[%d].Classification = %s, want %s",
				i, report.Groups[i].Classification, classification)
		}
	}

	wantCounts := map[models.Classification]int{
		models.ClassificationMatched:          1,
		models.ClassificationAmountMismatch:   1,
		models.ClassificationMissingFromTruth: 1,
		models.ClassificationExtraInTruth:     1,
	}
	for classification, want := range wantCounts {
		if got := len(report.ResultsFor(classification)); got != want {
			t.Errorf("ResultsFor(%s) returned %d results, want %d", classification, got, want)
		}
	}

	matched := report.ResultsFor(models.ClassificationMatched)
	if matched[0].Raw.ID != 1 || matched[0].Truth.ID != 11 {
		t.Errorf("matched pair = raw %d / truth %d, want raw 1 / truth 11",
			matched[0].Raw.ID, matched[0].Truth.ID)
	}
	mismatched := report.ResultsFor(models.ClassificationAmountMismatch)
	if mismatched[0].Raw.ID != 2 || mismatched[0].Truth.ID != 12 {
		t.Errorf("mismatch pair = raw %d / truth %d, want raw 2 / truth 12",
			mismatched[0].Raw.ID, mismatched[0].Truth.ID)
	}
	if mismatched[0].Note == "" {
		t.Error("amount mismatch result has no note")
	}
}

func TestReconcile_ChronologicalWithinGroup(t *testing.T) {
	// Three raw records with no truth at all, deliberately out of date
	// order, two of them on the same day.
	input := Input{
		Raw: []*models.RawRecord{
			rawRecord(7, 25, -5000, "Handyman Services"),
			rawRecord(8, 3, -7500, "Hardware Store"),
			rawRecord(9, 25, -2500, "Paint Supply"),
		},
		WindowStart: date(1),
		WindowEnd:   date(31),
	}

	report, err := Reconcile(input, matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	missing := report.ResultsFor(models.ClassificationMissingFromTruth)
	if len(missing) != 3 {
		t.Fatalf("got %d missing-from-truth results, want 3", len(missing))
	}
	gotIDs := []uint{missing[0].Raw.ID, missing[1].Raw.ID, missing[2].Raw.ID}
	// Day 3 first, then the two day-25 records in ingestion order.
	wantIDs := []uint{8, 7, 9}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("missing-from-truth order = %v, want %v", gotIDs, wantIDs)
		}
	}
}

func TestReconcile_Summary(t *testing.T) {
	input := testInput()
	input.Rejected = []models.RejectedRow{
		{SourceID: "huntington-checking", Line: 14, Field: "amount", Value: "12,34", Reason: "unparseable amount"},
	}

	report, err := Reconcile(input, matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	s := report.Summary
	if s.RawCount != 3 || s.TruthCount != 3 {
		t.Errorf("counts = %d raw / %d truth, want 3 / 3", s.RawCount, s.TruthCount)
	}
	if s.Matched != 1 || s.AmountMismatches != 1 || s.MissingFromTruth != 1 || s.ExtraInTruth != 1 {
		t.Errorf("classification counts = %d/%d/%d/%d, want 1/1/1/1",
			s.Matched, s.AmountMismatches, s.MissingFromTruth, s.ExtraInTruth)
	}
	if s.RejectedRows != 1 {
		t.Errorf("RejectedRows = %d, want 1", s.RejectedRows)
	}
	if s.Discrepancies() != 3 {
		t.Errorf("Discrepancies() = %d, want 3", s.Discrepancies())
	}

	wantRate := 1.0 / 3.0
	if diff := s.MatchRate - wantRate; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("MatchRate = %f, want %f", s.MatchRate, wantRate)
	}

	wantRaw := int64(-150000 - 42000 + 95000)
	wantTruth := int64(-150000 - 40000 - 8500)
	if s.NetRawCents != wantRaw {
		t.Errorf("NetRawCents = %d, want %d", s.NetRawCents, wantRaw)
	}
	if s.NetTruthCents != wantTruth {
		t.Errorf("NetTruthCents = %d, want %d", s.NetTruthCents, wantTruth)
	}
	if s.NetDifferenceCents != wantRaw-wantTruth {
		t.Errorf("NetDifferenceCents = %d, want %d", s.NetDifferenceCents, wantRaw-wantTruth)
	}
}

func TestReconcile_ExcludedTruthOutsideNetTotal(t *testing.T) {
	excluded := truthRecord(14, 1, 10, -999900, "Transfer to Reserve")
	excluded.Excluded = true
	excluded.ExcludeReason = "internal transfer"

	input := Input{
		Truth:       []*models.TruthRecord{truthRecord(11, 0, 5, -150000, "Huntington Mortgage"), excluded},
		WindowStart: date(1),
		WindowEnd:   date(31),
	}

	report, err := Reconcile(input, matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if report.Summary.NetTruthCents != -150000 {
		t.Errorf("NetTruthCents = %d, want -150000", report.Summary.NetTruthCents)
	}
	// The excluded record must not surface as extra-in-truth either.
	if got := len(report.ResultsFor(models.ClassificationExtraInTruth)); got != 1 {
		t.Errorf("got %d extra-in-truth results, want 1", got)
	}
}

func TestReconcile_RejectedRowsPassThrough(t *testing.T) {
	input := testInput()
	input.Rejected = []models.RejectedRow{
		{SourceID: "huntington-checking", Line: 9, Reason: "missing date"},
		{SourceID: "pm-export", Line: 22, Field: "amount", Value: "abc", Reason: "unparseable amount"},
	}

	report, err := Reconcile(input, matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if len(report.Rejected) != 2 {
		t.Fatalf("len(Rejected) = %d, want 2", len(report.Rejected))
	}
	if report.Rejected[0].Line != 9 || report.Rejected[1].Line != 22 {
		t.Errorf("rejected lines = %d, %d, want 9, 22", report.Rejected[0].Line, report.Rejected[1].Line)
	}
}

func TestReconcile_ReversedWindowRejected(t *testing.T) {
	input := testInput()
	input.WindowStart, input.WindowEnd = input.WindowEnd, input.WindowStart

	if _, err := Reconcile(input, matcher.DefaultMatchingConfig()); err == nil {
		t.Fatal("Reconcile() accepted a window that ends before it starts")
	}
}

func TestReconcile_DoesNotMutateTruth(t *testing.T) {
	input := testInput()
	before := make([]models.TruthRecord, len(input.Truth))
	for i, record := range input.Truth {
		before[i] = *record
	}

	if _, err := Reconcile(input, matcher.DefaultMatchingConfig()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	for i, record := range input.Truth {
		if *record != before[i] {
			t.Errorf("truth record %d modified during reconciliation: %+v", record.ID, *record)
		}
	}
}

func TestReconcile_Deterministic(t *testing.T) {
	first, err := Reconcile(testInput(), matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	second, err := Reconcile(testInput(), matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if first.Summary != second.Summary {
		t.Fatalf("summaries differ between runs: %+v vs %+v", first.Summary, second.Summary)
	}
	for g := range first.Groups {
		a, b := first.Groups[g], second.Groups[g]
		if len(a.Results) != len(b.Results) {
			t.Fatalf("group %s sizes differ: %d vs %d", a.Classification, len(a.Results), len(b.Results))
		}
		for i := range a.Results {
			if a.Results[i].String() != b.Results[i].String() {
				t.Errorf("group %s result %d differs: %s vs %s",
					a.Classification, i, a.Results[i], b.Results[i])
			}
		}
	}
}

func TestReconcile_EmptyInputs(t *testing.T) {
	report, err := Reconcile(Input{WindowStart: date(1), WindowEnd: date(31)}, nil)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if len(report.Groups) != len(GroupOrder) {
		t.Fatalf("len(Groups) = %d, want %d", len(report.Groups), len(GroupOrder))
	}
	for _, group := range report.Groups {
		if len(group.Results) != 0 {
			t.Errorf("group %s has %d results, want 0", group.Classification, len(group.Results))
		}
	}
	if report.Summary.MatchRate != 0 {
		t.Errorf("MatchRate = %f, want 0", report.Summary.MatchRate)
	}
	if report.Config == nil {
		t.Error("nil config was not replaced with the default")
	}
}

func TestReport_RunRecords(t *testing.T) {
	report, err := Reconcile(testInput(), matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	started := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Second)
	run, records := report.RunRecords("run-123", started, completed)

	if run.RunID != "run-123" {
		t.Errorf("RunID = %s, want run-123", run.RunID)
	}
	if !run.WindowStart.Equal(date(1)) || !run.WindowEnd.Equal(date(31)) {
		t.Errorf("window = %s..%s, want %s..%s", run.WindowStart, run.WindowEnd, date(1), date(31))
	}
	if run.SnapshotID != "snap-1" {
		t.Errorf("SnapshotID = %s, want snap-1", run.SnapshotID)
	}
	if run.MatchedCount != 1 || run.MismatchCount != 1 || run.MissingCount != 1 || run.ExtraCount != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 1/1/1/1",
			run.MatchedCount, run.MismatchCount, run.MissingCount, run.ExtraCount)
	}
	if !run.StartedAt.Equal(started) || !run.CompletedAt.Equal(completed) {
		t.Errorf("timestamps = %s / %s, want %s / %s", run.StartedAt, run.CompletedAt, started, completed)
	}

	var echoed matcher.MatchingConfig
	if err := json.Unmarshal([]byte(run.ConfigJSON), &echoed); err != nil {
		t.Fatalf("ConfigJSON does not unmarshal: %v", err)
	}
	if echoed.DateToleranceDays != report.Config.DateToleranceDays {
		t.Errorf("echoed DateToleranceDays = %d, want %d",
			echoed.DateToleranceDays, report.Config.DateToleranceDays)
	}

	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want 4", len(records))
	}
	for _, record := range records {
		if record.RunID != "run-123" {
			t.Errorf("match record RunID = %s, want run-123", record.RunID)
		}
	}

	byClass := make(map[string]*models.MatchRecord)
	for _, record := range records {
		byClass[record.Classification] = record
	}
	matched := byClass[string(models.ClassificationMatched)]
	if matched.RawRecordID == nil || *matched.RawRecordID != 1 {
		t.Errorf("matched RawRecordID = %v, want 1", matched.RawRecordID)
	}
	if matched.TruthRecordID == nil || *matched.TruthRecordID != 11 {
		t.Errorf("matched TruthRecordID = %v, want 11", matched.TruthRecordID)
	}
	missing := byClass[string(models.ClassificationMissingFromTruth)]
	if missing.TruthRecordID != nil {
		t.Errorf("missing-from-truth TruthRecordID = %v, want nil", missing.TruthRecordID)
	}
	extra := byClass[string(models.ClassificationExtraInTruth)]
	if extra.RawRecordID != nil {
		t.Errorf("extra-in-truth RawRecordID = %v, want nil", extra.RawRecordID)
	}
}
