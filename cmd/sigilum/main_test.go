package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sigilum/internal/faults"
	"sigilum/internal/rundir"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{faults.Configf("bad"), 2},
		{faults.Wrap(faults.ErrLookup, "c", "op", "", nil), 2},
		{faults.Wrap(faults.ErrComputation, "c", "op", "", nil), 3},
		{faults.Wrap(faults.ErrStorage, "c", "op", "", nil), 4},
		{errors.New("plain"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRunReportAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "--cheque", env.chequePath, "--references", env.refsDir, "--account", "acct-1"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Status:   Accepted")
	requireContains(t, out, "Best:     trial 0001 score 1.0000 vs a.png")
	requireContains(t, out, "Trials:   2 (0 failed)")

	runDir, err := rundir.Latest(env.runsDir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	for _, rel := range []string{
		"run.json",
		"input/cheque.png",
		"input/firmas/a.png",
		"configs/pipeline.yaml",
		"trials/trial_0001/summary.json",
		"trials/trial_0002/stages/final.png",
		"trials/trial_0001/overlays/overlay_a.png",
		"trials/trial_0001/pairs/pair_a.png",
		"aggregate/leaderboard.json",
		"aggregate/timings.json",
		"aggregate/trials_summary.csv",
		"logs/run.log",
	} {
		if _, err := os.Stat(filepath.Join(runDir, rel)); err != nil {
			t.Fatalf("expected %s in run dir: %v", rel, err)
		}
	}

	out, _, err = runCLI(t, []string{"report", "--latest", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var report reportOutput
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Meta.AccountID != "acct-1" || len(report.Leaderboard) != 2 || report.Leaderboard[0].TrialIndex != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "cheque.png")
	requireContains(t, out, "Accepted")

	// A second run over the same inputs is served from the stage cache.
	out, _, err = runCLI(t, []string{"run", "--cheque", env.chequePath, "--references", env.refsDir, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	var second runOutput
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatalf("decode run output: %v\n%s", err, out)
	}
	if second.Report.Timings.Cache.Misses != 0 || second.Report.Timings.Cache.Hits != 2 {
		t.Fatalf("expected all cache hits, got %+v", second.Report.Timings.Cache)
	}
}

func TestAbortedRunIsMarkedFailed(t *testing.T) {
	env := setupCLITestEnv(t)
	writeFile(t, filepath.Join(env.baseDir, "search.yaml"), "Threshold:\n  level: [128, 300]\n")

	_, _, err := runCLI(t, []string{"run", "--cheque", env.chequePath, "--references", env.refsDir, "--fail-fast"}, env.configPath)
	if err == nil {
		t.Fatal("expected fail-fast run to abort")
	}
	if code := exitCode(err); code != 3 {
		t.Fatalf("exit code = %d, want 3 (%v)", code, err)
	}
	runDir, err := rundir.Latest(env.runsDir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	meta, err := rundir.LoadMeta(runDir)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if meta.Status != rundir.StatusFailed || meta.Error == "" || meta.FinishedAt == nil {
		t.Fatalf("unexpected run.json %+v", meta)
	}

	out, _, err := runCLI(t, []string{"report", "--latest"}, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "Error:")
	requireContains(t, out, "Leaderboard: empty")
}

func TestRunRejectsUnknownPhase(t *testing.T) {
	env := setupCLITestEnv(t)
	writeFile(t, filepath.Join(env.baseDir, "pipeline.yaml"), "pipeline:\n  - phase: Sharpen\n")

	_, _, err := runCLI(t, []string{"run", "--cheque", env.chequePath, "--references", env.refsDir}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown phase")
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2 (%v)", code, err)
	}
	if _, err := rundir.Latest(env.runsDir); !errors.Is(err, rundir.ErrNoRuns) {
		t.Fatalf("expected no run directory, got %v", err)
	}
}

func TestTrialsPreview(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"trials"}, env.configPath)
	if err != nil {
		t.Fatalf("trials: %v", err)
	}
	requireContains(t, out, "Trials: 2 (2 unique signatures)")
	requireContains(t, out, "Threshold(invert=true, level=128)")
}

func TestRegistryListsBuiltins(t *testing.T) {
	out, _, err := runCLI(t, []string{"registry"}, "")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	requireContains(t, out, "AutoCrop")
	requireContains(t, out, "ink_iou")
	requireContains(t, out, "ssim")
	requireContains(t, out, "weighted_sum")
}

func TestConfigInitShowAndCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config exists")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.runsDir)

	out, _, err = runCLI(t, []string{"config", "check"}, env.configPath)
	if err != nil {
		t.Fatalf("config check: %v\n%s", err, out)
	}
	requireContains(t, out, "Configuration valid")
}

func TestCacheStatsAndPrune(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"run", "--cheque", env.chequePath, "--references", env.refsDir}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, _, err := runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Entries: 2")

	out, _, err = runCLI(t, []string{"cache", "prune", "--max-mib", "0"}, env.configPath)
	if err == nil {
		t.Fatalf("expected error for zero limit, got %s", out)
	}
}
