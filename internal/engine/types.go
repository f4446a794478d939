package engine

import (
	"context"
	"errors"
	"image"

	"sigilum/internal/leaderboard"
	"sigilum/internal/pipeline"
	"sigilum/internal/recipe"
	"sigilum/internal/scoring"
	"sigilum/internal/stagecache"
	"sigilum/internal/trials"
)

// Request describes one run.
type Request struct {
	RunID      string
	ChequeName string
	Cheque     *image.Gray
	References []scoring.Reference
	Pipeline   recipe.Definition
	Space      trials.SearchSpace
	MaxTrials  int
	Profile    scoring.Profile
	// Mode is absolute, early or both; early stopping is allowed for early
	// and both.
	Mode     string
	Workers  int
	FailFast bool
	UseCache bool
}

// Failure describes a trial that did not produce a result.
type Failure struct {
	TrialIndex int    `json:"trial_idx"`
	Signature  string `json:"signature"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// TrialRecord is the full outcome of one trial. Exactly one of Result and
// Failure is set.
type TrialRecord struct {
	Trial   trials.Trial
	Output  *image.Gray
	Trace   []pipeline.TraceStep
	Result  *scoring.Result
	Failure *Failure
	Ms      float64
}

// Entry converts a successful record into a leaderboard entry.
func (r TrialRecord) Entry() (leaderboard.Entry, bool) {
	if r.Result == nil {
		return leaderboard.Entry{}, false
	}
	e := leaderboard.Entry{
		TrialIndex: r.Trial.Index,
		Signature:  r.Trial.Signature,
		BestScore:  r.Result.BestScore(),
		Exhaustive: r.Result.Exhaustive,
	}
	if r.Result.Best != nil {
		e.BestReference = r.Result.Best.Reference
	}
	return e, true
}

// TrialTiming is the wall time of one trial.
type TrialTiming struct {
	TrialIndex int     `json:"trial_idx"`
	Ms         float64 `json:"ms"`
}

// Timings aggregates run timing and cache effectiveness.
type Timings struct {
	Trials  []TrialTiming       `json:"trials"`
	TotalMs float64             `json:"total_ms"`
	Cache   stagecache.Counters `json:"cache"`
}

// Report is the aggregate outcome of a run.
type Report struct {
	RunID       string              `json:"run_id"`
	ChequeName  string              `json:"cheque_name"`
	Mode        string              `json:"mode"`
	Trials      int                 `json:"n_trials"`
	MaxTrials   int                 `json:"max_trials,omitempty"`
	TargetSize  scoring.Size        `json:"target_size"`
	Leaderboard leaderboard.Board   `json:"leaderboard"`
	Verdict     leaderboard.Verdict `json:"verdict"`
	Summary     leaderboard.Summary `json:"summary"`
	Failures    []Failure           `json:"failures"`
	Timings     Timings             `json:"timings"`
}

// Recorder persists run progress. RecordTrial is called once per finished
// trial, never concurrently; RecordReport once at the end of a completed run.
type Recorder interface {
	RecordTrial(ctx context.Context, runID string, rec TrialRecord) error
	RecordReport(ctx context.Context, report *Report) error
}

// MultiRecorder fans out to several recorders, joining their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) RecordTrial(ctx context.Context, runID string, rec TrialRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordTrial(ctx, runID, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) RecordReport(ctx context.Context, report *Report) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordReport(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
