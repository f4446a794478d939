package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sigilum/internal/config"
	"sigilum/internal/faults"
	"sigilum/internal/leaderboard"
	"sigilum/internal/logging"
	"sigilum/internal/metric"
	"sigilum/internal/phase"
	"sigilum/internal/pipeline"
	"sigilum/internal/scoring"
	"sigilum/internal/stagecache"
	"sigilum/internal/trials"
)

// previewTrials is how many trials are logged with their varying parameters.
const previewTrials = 10

// Engine runs trials against explicit phase and metric registries.
type Engine struct {
	phases   *phase.Registry
	metrics  *metric.Registry
	cache    *stagecache.Cache
	runner   *pipeline.Runner
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder attaches a recorder for trial and report persistence.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine. cache may be nil.
func New(phases *phase.Registry, metrics *metric.Registry, cache *stagecache.Cache, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		phases:  phases,
		metrics: metrics,
		cache:   cache,
		runner:  pipeline.NewRunner(phases, cache, logger),
		logger:  logging.NewComponentLogger(logger, "engine"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AllowsEarlyStop reports whether mode permits stopping a reference scan early.
func AllowsEarlyStop(mode string) bool {
	return mode == config.ModeEarly || mode == config.ModeBoth
}

// Validate checks req against the registries without running anything.
func (e *Engine) Validate(req Request) error {
	switch req.Mode {
	case config.ModeAbsolute, config.ModeEarly, config.ModeBoth:
	default:
		return faults.Configf("mode must be one of absolute, early, both (got %q)", req.Mode)
	}
	if req.Cheque == nil {
		return faults.Configf("cheque image is required")
	}
	if len(req.References) == 0 {
		return faults.Configf("no reference signatures to compare against")
	}
	if req.MaxTrials < 0 {
		return faults.Configf("max trials must be >= 0")
	}
	for i, step := range req.Pipeline {
		if _, err := e.phases.Lookup(step.Phase); err != nil {
			return fmt.Errorf("pipeline[%d]: %w", i, err)
		}
	}
	if err := trials.Validate(req.Space); err != nil {
		return err
	}
	return req.Profile.Validate(e.metrics)
}

// Plan validates req and returns the trial sequence it would run, falling
// back to the base pipeline when expansion yields nothing.
func (e *Engine) Plan(req Request) ([]trials.Trial, error) {
	seq, err := trials.NewSequence(req.Pipeline, req.Space, req.MaxTrials)
	if err != nil {
		return nil, err
	}
	if seq.Len() == 0 {
		single, err := trials.Single(req.Pipeline)
		if err != nil {
			return nil, err
		}
		return []trials.Trial{single}, nil
	}
	out := make([]trials.Trial, 0, seq.Len())
	for _, trial := range seq.All() {
		out = append(out, trial)
	}
	if len(out) != seq.Len() {
		return nil, faults.Configf("could not sign every trial")
	}
	return out, nil
}

// Run executes req end to end.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	start := e.now()
	if strings.TrimSpace(req.RunID) != "" {
		ctx = logging.WithRunID(ctx, req.RunID)
	}
	logger := logging.WithContext(ctx, e.logger)

	if err := e.Validate(req); err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(e.metrics, req.Profile, req.References, AllowsEarlyStop(req.Mode), e.logger)
	if err != nil {
		return nil, err
	}
	planned, err := e.Plan(req)
	if err != nil {
		return nil, err
	}
	th := req.Profile.Thresholds
	logger.Info("run configured",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", req.Mode),
		logging.Float64("accept", th.Accept),
		logging.Float64("early_stop", th.EarlyStop),
		logging.Float64("min_margin", th.MinMargin),
		logging.String("target_size", fmt.Sprintf("%dx%d", req.Profile.TargetSize.Width, req.Profile.TargetSize.Height)),
		logging.Int("references", len(req.References)),
	)
	e.logPlan(logger, req, planned)

	before := e.cache.Counters()
	records := make([]TrialRecord, len(planned))
	if err := e.runTrials(ctx, req, scorer, planned, records); err != nil {
		return nil, err
	}
	after := e.cache.Counters()

	report := e.aggregate(req, planned, records)
	report.Timings.Cache = stagecache.Counters{Hits: after.Hits - before.Hits, Misses: after.Misses - before.Misses}
	report.Timings.TotalMs = roundMs(e.now().Sub(start))

	best := "none"
	if report.Verdict.Best != nil {
		best = fmt.Sprintf("trial %04d score=%.4f", report.Verdict.Best.TrialIndex, report.Verdict.Best.BestScore)
	}
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(report.Verdict.Status)),
		logging.String("best", best),
		logging.Int("trials", report.Trials),
		logging.Int("failed", len(report.Failures)),
		logging.Int64("cache_hits", report.Timings.Cache.Hits),
		logging.Int64("cache_misses", report.Timings.Cache.Misses),
		logging.Float64("total_ms", report.Timings.TotalMs),
	)
	if e.recorder != nil {
		if err := e.recorder.RecordReport(ctx, report); err != nil {
			return report, faults.Wrap(faults.ErrStorage, "engine", "record report", req.RunID, err)
		}
	}
	return report, nil
}

func (e *Engine) logPlan(logger *slog.Logger, req Request, planned []trials.Trial) {
	unique := make(map[string]struct{}, len(planned))
	for i, trial := range planned {
		unique[trial.Signature] = struct{}{}
		if i < previewTrials {
			logger.Info("trial planned",
				logging.Int(logging.FieldTrial, trial.Index),
				logging.String(logging.FieldSignature, trial.Signature),
				logging.Any("varying", trials.Varying(trial.Steps, req.Space)),
			)
		}
	}
	limit := "unlimited"
	if req.MaxTrials > 0 {
		limit = fmt.Sprint(req.MaxTrials)
	}
	logger.Info("trials generated",
		logging.Int("trials", len(planned)),
		logging.Int("unique_signatures", len(unique)),
		logging.String("max_trials", limit),
	)
	if len(unique) == 1 && len(planned) > 1 {
		logging.WarnWithContext(logger, "all trials share one signature", "trials_identical",
			logging.String(logging.FieldErrorHint, "check search space phase names and parameters"),
			logging.String(logging.FieldImpact, "every trial repeats the same pipeline"),
		)
	}
	if unused := trials.UnusedPhases(req.Pipeline, req.Space); len(unused) > 0 {
		logging.WarnWithContext(logger, "search space phases missing from pipeline", "search_space_unused",
			logging.String("phases", strings.Join(unused, ", ")),
			logging.String(logging.FieldErrorHint, "add the phase to the pipeline profile or drop it from the search space"),
			logging.String(logging.FieldImpact, "those parameters are never varied"),
		)
	}
}

// runTrials fills records by index. Trial failures are recorded unless
// FailFast is set; cancellation and fatal errors abort.
func (e *Engine) runTrials(ctx context.Context, req Request, scorer *scoring.Scorer, planned []trials.Trial, records []TrialRecord) error {
	var recordMu sync.Mutex
	finish := func(ctx context.Context, pos int, rec TrialRecord) error {
		recordMu.Lock()
		defer recordMu.Unlock()
		records[pos] = rec
		if e.recorder != nil {
			if err := e.recorder.RecordTrial(ctx, req.RunID, rec); err != nil {
				return faults.Wrap(faults.ErrStorage, "engine", "record trial", fmt.Sprintf("trial %04d", rec.Trial.Index), err)
			}
		}
		return nil
	}
	runOne := func(ctx context.Context, pos int) error {
		rec, err := e.runTrial(ctx, req, scorer, planned[pos])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if req.FailFast || faults.IsFatal(err) {
				_ = finish(ctx, pos, rec)
				return fmt.Errorf("trial %04d: %w", planned[pos].Index, err)
			}
		}
		return finish(ctx, pos, rec)
	}

	workers := req.Workers
	if workers <= 1 {
		for pos := range planned {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := runOne(ctx, pos); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for pos := range planned {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return runOne(gctx, pos) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runTrial executes one trial. A returned error is also reflected in the
// record's Failure.
func (e *Engine) runTrial(ctx context.Context, req Request, scorer *scoring.Scorer, trial trials.Trial) (TrialRecord, error) {
	ctx = logging.WithTrial(ctx, trial.Index)
	logger := logging.WithContext(ctx, e.logger)
	start := e.now()
	rec := TrialRecord{Trial: trial}

	logger.Info("trial start",
		logging.String(logging.FieldEventType, "trial_start"),
		logging.Int("phases", len(trial.Steps)),
		logging.String(logging.FieldSignature, trial.Signature),
	)

	out, trace, err := e.runner.Run(ctx, req.Cheque, trial.Steps, req.UseCache)
	rec.Trace = trace
	if err == nil {
		rec.Output = out
		var res scoring.Result
		res, err = scorer.Score(ctx, out)
		if err == nil {
			rec.Result = &res
		}
	}
	rec.Ms = roundMs(e.now().Sub(start))

	if err != nil {
		rec.Failure = &Failure{
			TrialIndex: trial.Index,
			Signature:  trial.Signature,
			Kind:       faults.Kind(err),
			Message:    err.Error(),
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			rec.Failure.Kind = "cancelled"
		}
		logger.Error("trial failed",
			logging.String(logging.FieldEventType, "trial_failure"),
			logging.String("kind", rec.Failure.Kind),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the failing phase parameters"),
			logging.String(logging.FieldImpact, "trial excluded from the leaderboard"),
		)
		return rec, err
	}

	logger.Info("trial end",
		logging.String(logging.FieldEventType, "trial_complete"),
		logging.Float64("score", rec.Result.BestScore()),
		logging.Bool("exhaustive", rec.Result.Exhaustive),
		logging.Float64("ms", rec.Ms),
	)
	return rec, nil
}

func (e *Engine) aggregate(req Request, planned []trials.Trial, records []TrialRecord) *Report {
	entries := make([]leaderboard.Entry, 0, len(records))
	failures := make([]Failure, 0)
	timings := make([]TrialTiming, 0, len(records))
	for _, rec := range records {
		timings = append(timings, TrialTiming{TrialIndex: rec.Trial.Index, Ms: rec.Ms})
		if entry, ok := rec.Entry(); ok {
			entries = append(entries, entry)
		}
		if rec.Failure != nil {
			failures = append(failures, *rec.Failure)
		}
	}
	board := leaderboard.Build(entries)
	summary, err := leaderboard.Summarize(board)
	if err != nil {
		logging.WarnWithContext(e.logger, "score summary unavailable", "summary_failed", logging.Error(err))
	}
	return &Report{
		RunID:       req.RunID,
		ChequeName:  req.ChequeName,
		Mode:        req.Mode,
		Trials:      len(planned),
		MaxTrials:   req.MaxTrials,
		TargetSize:  req.Profile.TargetSize,
		Leaderboard: board,
		Verdict:     leaderboard.Decide(board, req.Profile.Thresholds),
		Summary:     summary,
		Failures:    failures,
		Timings:     Timings{Trials: timings},
	}
}

func roundMs(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/100) / 10
}
