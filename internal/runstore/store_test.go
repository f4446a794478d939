package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sigilum/internal/engine"
	"sigilum/internal/leaderboard"
	"sigilum/internal/scoring"
	"sigilum/internal/stagecache"
	"sigilum/internal/trials"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger", "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func clockAt(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func trialRecord(idx int, score float64) engine.TrialRecord {
	return engine.TrialRecord{
		Trial: trials.Trial{Index: idx, Signature: "sig000000000"},
		Result: &scoring.Result{
			Best:       &scoring.Comparison{Reference: "a.png", Score: score},
			Exhaustive: true,
		},
		Ms: 2.5,
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if err := store.Begin(ctx, RunInfo{RunID: "r1", ChequeName: "c.png", Mode: "both", RunDir: "/runs/x"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	run, err := store.GetRun(ctx, "r1")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != StatusRunning || run.AccountID != "" || run.BestTrial != nil {
		t.Fatalf("unexpected fresh run %+v", run)
	}

	for _, rec := range []engine.TrialRecord{trialRecord(1, 0.6), trialRecord(2, 0.9)} {
		if err := store.RecordTrial(ctx, "r1", rec); err != nil {
			t.Fatalf("RecordTrial: %v", err)
		}
	}
	failed := engine.TrialRecord{
		Trial:   trials.Trial{Index: 3, Signature: "sig111111111"},
		Failure: &engine.Failure{TrialIndex: 3, Kind: "computation", Message: "nan"},
	}
	if err := store.RecordTrial(ctx, "r1", failed); err != nil {
		t.Fatalf("RecordTrial failed trial: %v", err)
	}
	// Re-recording a trial replaces it.
	if err := store.RecordTrial(ctx, "r1", trialRecord(1, 0.7)); err != nil {
		t.Fatalf("RecordTrial upsert: %v", err)
	}

	best := leaderboard.Entry{TrialIndex: 2, Signature: "sig000000000", BestScore: 0.9, BestReference: "a.png"}
	margin := 0.2
	report := &engine.Report{
		RunID:    "r1",
		Trials:   3,
		Verdict:  leaderboard.Verdict{Status: leaderboard.StatusAccepted, Best: &best, Margin: &margin},
		Failures: []engine.Failure{*failed.Failure},
		Timings:  engine.Timings{TotalMs: 12, Cache: stagecache.Counters{Hits: 4, Misses: 2}},
	}
	if err := store.RecordReport(ctx, report); err != nil {
		t.Fatalf("RecordReport: %v", err)
	}

	run, err = store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != "ACCEPTED" || run.BestTrial == nil || *run.BestTrial != 2 {
		t.Fatalf("unexpected finished run %+v", run)
	}
	if run.Failed != 1 || run.CacheHits != 4 || run.Margin == nil || *run.Margin != 0.2 {
		t.Fatalf("unexpected counters %+v", run)
	}

	rows, err := store.Trials(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 trials, got %d", len(rows))
	}
	if rows[0].TrialIndex != 2 || rows[1].TrialIndex != 1 || *rows[1].BestScore != 0.7 {
		t.Fatalf("unexpected order %+v", rows)
	}
	if rows[2].BestScore != nil || rows[2].FailureKind != "computation" {
		t.Fatalf("failed trial row = %+v", rows[2])
	}

	h, err := store.LookupSignature(ctx, "sig000000000")
	if err != nil {
		t.Fatal(err)
	}
	if h.Runs != 1 || h.BestScore == nil || *h.BestScore != 0.9 {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		store.now = clockAt(base.Add(time.Duration(i) * time.Minute))
		if err := store.Begin(ctx, RunInfo{RunID: id, ChequeName: id + ".png", Mode: "absolute"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Fail(ctx, "b", errors.New("cancelled")); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if runs[1].Status != StatusFailed || runs[1].ErrorMessage != "cancelled" {
		t.Fatalf("unexpected failed run %+v", runs[1])
	}
	if !runs[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("created_at = %v", runs[0].CreatedAt)
	}

	missing, err := store.GetRun(ctx, "zzz")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing run, got %v %v", missing, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Begin(ctx, RunInfo{RunID: "keep", ChequeName: "c.png", Mode: "early"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	run, err := store.GetRun(ctx, "keep")
	if err != nil || run == nil {
		t.Fatalf("run lost after reopen: %v", err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
