package rundir

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"sigilum/internal/engine"
	"sigilum/internal/faults"
	"sigilum/internal/fileutil"
	"sigilum/internal/leaderboard"
)

const (
	trialsSummaryCSV  = "trials_summary.csv"
	trialsSummaryJSON = "trials_summary.json"
)

// ErrNoRuns is returned by Latest when the runs root holds no run directory.
var ErrNoRuns = errors.New("no runs found")

// LoadMeta reads run.json from a run directory.
func LoadMeta(runDir string) (Meta, error) {
	var meta Meta
	if err := fileutil.ReadJSON(filepath.Join(runDir, runFile), &meta); err != nil {
		return Meta{}, faults.Wrap(faults.ErrLookup, "rundir", "load meta", runDir, err)
	}
	return meta, nil
}

// LoadLeaderboard reads aggregate/leaderboard.json.
func LoadLeaderboard(runDir string) (leaderboard.Board, leaderboard.Summary, error) {
	var doc leaderboardDoc
	if err := fileutil.ReadJSON(filepath.Join(runDir, aggregateDir, leaderboardFile), &doc); err != nil {
		return nil, leaderboard.Summary{}, faults.Wrap(faults.ErrLookup, "rundir", "load leaderboard", runDir, err)
	}
	return doc.Leaderboard, doc.Summary, nil
}

// LoadTimings reads aggregate/timings.json.
func LoadTimings(runDir string) (engine.Timings, error) {
	var timings engine.Timings
	if err := fileutil.ReadJSON(filepath.Join(runDir, aggregateDir, timingsFile), &timings); err != nil {
		return engine.Timings{}, faults.Wrap(faults.ErrLookup, "rundir", "load timings", runDir, err)
	}
	return timings, nil
}

// Run is a run directory found under a runs root.
type Run struct {
	Dir     string
	ModTime time.Time
}

// List returns run directories (those holding run.json), newest first.
func List(runsRoot string) ([]Run, error) {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []Run
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(runsRoot, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, runFile)); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, Run{Dir: dir, ModTime: info.ModTime()})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].ModTime.Equal(runs[j].ModTime) {
			return runs[i].Dir > runs[j].Dir
		}
		return runs[i].ModTime.After(runs[j].ModTime)
	})
	return runs, nil
}

// Latest returns the most recently modified run directory.
func Latest(runsRoot string) (string, error) {
	runs, err := List(runsRoot)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%s: %w", runsRoot, ErrNoRuns)
	}
	return runs[0].Dir, nil
}

// TrialRow is one line of the trials summary.
type TrialRow struct {
	TrialIndex    int                `json:"trial_idx"`
	Signature     string             `json:"signature"`
	BestScore     *float64           `json:"best_score"`
	BestReference string             `json:"best_firma"`
	TimeMs        float64            `json:"time_ms"`
	SummaryPath   string             `json:"summary_path"`
	ChainPath     string             `json:"phases_chain_path"`
	PerMetric     map[string]float64 `json:"per_metric,omitempty"`
	Failure       string             `json:"failure,omitempty"`
}

// CollectTrials reads every trial summary of a run, ordered by best score
// descending then trial index ascending. Failed trials sort last.
func CollectTrials(runDir string) ([]TrialRow, error) {
	matches, err := filepath.Glob(filepath.Join(runDir, trialsDir, "trial_*", summaryFile))
	if err != nil {
		return nil, err
	}
	rows := make([]TrialRow, 0, len(matches))
	for _, path := range matches {
		var summary TrialSummary
		if err := fileutil.ReadJSON(path, &summary); err != nil {
			return nil, faults.Wrap(faults.ErrStorage, "rundir", "collect trials", path, err)
		}
		dir := filepath.Dir(path)
		row := TrialRow{
			TrialIndex:  summary.TrialIndex,
			Signature:   summary.Signature,
			TimeMs:      summary.Ms,
			SummaryPath: relative(runDir, path),
			ChainPath:   relative(runDir, filepath.Join(dir, chainFile)),
		}
		if summary.Best != nil {
			score := summary.Best.Score
			row.BestScore = &score
			row.BestReference = summary.Best.Reference
			row.PerMetric = summary.Best.PerMetric
		}
		if summary.Failure != nil {
			row.Failure = summary.Failure.Kind + ": " + summary.Failure.Message
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.BestScore == nil && b.BestScore == nil:
		case a.BestScore == nil:
			return false
		case b.BestScore == nil:
			return true
		case *a.BestScore != *b.BestScore:
			return *a.BestScore > *b.BestScore
		}
		return a.TrialIndex < b.TrialIndex
	})
	return rows, nil
}

// WriteTrialsSummary writes aggregate/trials_summary.csv and .json. Metric
// columns are named m_<metric> in sorted order.
func WriteTrialsSummary(runDir string, rows []TrialRow) error {
	metrics := metricNames(rows)
	header := []string{"trial_idx", "signature", "best_score", "best_firma", "time_ms", "summary_path", "phases_chain_path"}
	for _, name := range metrics {
		header = append(header, "m_"+name)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.Itoa(row.TrialIndex),
			row.Signature,
			formatOptional(row.BestScore),
			row.BestReference,
			strconv.FormatFloat(row.TimeMs, 'f', -1, 64),
			row.SummaryPath,
			row.ChainPath,
		}
		for _, name := range metrics {
			if v, ok := row.PerMetric[name]; ok {
				record = append(record, strconv.FormatFloat(v, 'f', 6, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	dir := filepath.Join(runDir, aggregateDir)
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, trialsSummaryCSV), []byte(sb.String())); err != nil {
		return err
	}
	if rows == nil {
		rows = []TrialRow{}
	}
	return fileutil.WriteJSON(filepath.Join(dir, trialsSummaryJSON), rows)
}

func metricNames(rows []TrialRow) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for name := range row.PerMetric {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func relative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
