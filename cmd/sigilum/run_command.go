package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sigilum/internal/config"
	"sigilum/internal/engine"
	"sigilum/internal/faults"
	"sigilum/internal/imageio"
	"sigilum/internal/logging"
	"sigilum/internal/preflight"
	"sigilum/internal/rundir"
	"sigilum/internal/runstore"
	"sigilum/internal/scoring"
	"sigilum/internal/stagecache"
)

type runOptions struct {
	cheque     string
	account    string
	references string
	mode       string
	workers    int
	maxTrials  int
	noCache    bool
	failFast   bool
	top        int
	jsonOut    bool
	profiles   profileFlags
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search preprocessing trials for a cheque against reference signatures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrialsCommand(cmd, ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.cheque, "cheque", "", "Cheque image to preprocess (required)")
	cmd.Flags().StringVar(&opts.account, "account", "", "Account identifier recorded with the run")
	cmd.Flags().StringVar(&opts.references, "references", "", "Directory of reference signature images (required)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Scoring mode: absolute, early or both (overrides run.mode)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent trials (overrides run.workers)")
	cmd.Flags().IntVar(&opts.maxTrials, "max-trials", -1, "Trial limit; 0 means unlimited (overrides the search profile)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Recompute every stage instead of reading the stage cache")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Abort the run on the first failing trial")
	cmd.Flags().IntVar(&opts.top, "top", 10, "Leaderboard rows to print")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the run report as JSON")
	opts.profiles.register(cmd)
	_ = cmd.MarkFlagRequired("cheque")
	_ = cmd.MarkFlagRequired("references")
	return cmd
}

type runOutput struct {
	RunDir string         `json:"run_dir"`
	Report *engine.Report `json:"report"`
}

func runTrialsCommand(cmd *cobra.Command, ctx *commandContext, opts *runOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	if failed := preflight.Failed(preflight.RunAll(runCtx, cfg, logger)); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, r := range failed {
			parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return faults.Configf("preflight failed: %s", strings.Join(parts, "; "))
	}

	bundle, err := opts.profiles.load(cfg)
	if err != nil {
		return err
	}
	chequePath, err := config.ExpandPath(opts.cheque)
	if err != nil {
		return err
	}
	cheque, err := imageio.Load(chequePath)
	if err != nil {
		return faults.Wrap(faults.ErrConfiguration, "cli", "load cheque", chequePath, err)
	}
	refsDir, err := config.ExpandPath(opts.references)
	if err != nil {
		return err
	}
	refs, err := scoring.LoadReferences(refsDir)
	if err != nil {
		return err
	}

	req := engine.Request{
		RunID:      uuid.NewString(),
		ChequeName: filepath.Base(chequePath),
		Cheque:     cheque,
		References: refs,
		Pipeline:   bundle.Pipeline,
		Space:      bundle.Search.Space,
		MaxTrials:  bundle.Search.MaxTrials,
		Profile:    bundle.Metrics,
		Mode:       pick(opts.mode, cfg.Run.Mode),
		Workers:    cfg.Run.Workers,
		FailFast:   cfg.Run.FailFast || opts.failFast,
		UseCache:   cfg.Run.UseCache && !opts.noCache,
	}
	if opts.workers > 0 {
		req.Workers = opts.workers
	}
	if opts.maxTrials >= 0 {
		req.MaxTrials = opts.maxTrials
	}

	if len(refs) == 0 {
		return faults.Configf("no reference images found in %s", refsDir)
	}
	phases, metrics := registries()
	// Validate before creating a run directory so bad profiles leave nothing behind.
	if err := engine.New(phases, metrics, nil, logging.NewNop()).Validate(req); err != nil {
		return err
	}

	thresholds := req.Profile.Thresholds
	writer, err := rundir.Create(cfg.Paths.RunsDir, rundir.Meta{
		RunID:      req.RunID,
		AccountID:  strings.TrimSpace(opts.account),
		ChequeName: req.ChequeName,
		CreatedAt:  time.Now(),
		Mode:       req.Mode,
		Thresholds: &thresholds,
	}, logger)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "cli", "create run directory", cfg.Paths.RunsDir, err)
	}
	writer.SetComparisonImages(refs, req.Profile.TargetSize)
	refPaths := make([]string, len(refs))
	for i, ref := range refs {
		refPaths[i] = ref.Path
	}
	if err := writer.CopyInputs(chequePath, refPaths); err != nil {
		return faults.Wrap(faults.ErrStorage, "cli", "copy inputs", writer.Root(), err)
	}
	if err := writer.CopyConfigs(bundle.Paths()...); err != nil {
		return faults.Wrap(faults.ErrStorage, "cli", "copy configs", writer.Root(), err)
	}

	runLogger, err := logging.TeeToFile(logger, writer.LogPath(), cfg.Logging.Level)
	if err != nil {
		return err
	}

	backend, err := stagecache.OpenBackend(runCtx, cfg, runLogger)
	if err != nil {
		return err
	}
	cache := stagecache.New(backend, runLogger)

	recorders := engine.MultiRecorder{writer}
	var store *runstore.Store
	if cfg.Store.Enabled {
		store, err = runstore.Open(runCtx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Begin(runCtx, runstore.RunInfo{
			RunID:      req.RunID,
			ChequeName: req.ChequeName,
			AccountID:  strings.TrimSpace(opts.account),
			Mode:       req.Mode,
			RunDir:     writer.Root(),
		}); err != nil {
			return err
		}
		recorders = append(recorders, store)
	}

	eng := engine.New(phases, metrics, cache, runLogger, engine.WithRecorder(recorders))
	runLogger.Info("run started",
		logging.String(logging.FieldEventType, "run_dir_created"),
		logging.String("run_dir", writer.Root()),
		logging.String("cheque", req.ChequeName),
		logging.String("pipeline", req.Pipeline.String()),
	)
	report, runErr := eng.Run(runCtx, req)
	if runErr != nil && report == nil {
		if err := writer.Fail(runErr); err != nil {
			runLogger.Warn("record run failure", logging.Error(err))
		}
		if store != nil {
			// The run context may already be cancelled; record the failure regardless.
			if err := store.Fail(context.WithoutCancel(runCtx), req.RunID, runErr); err != nil {
				runLogger.Warn("record run failure", logging.Error(err))
			}
		}
		return runErr
	}

	pruneCache(runCtx, cfg, backend, runLogger)

	if opts.jsonOut {
		if err := writeJSON(cmd, runOutput{RunDir: writer.Root(), Report: report}); err != nil {
			return err
		}
	} else {
		printRunReport(cmd.OutOrStdout(), writer.Root(), report, opts.top)
	}
	return runErr
}

// pruneCache trims a directory cache back under cache.max_mib.
func pruneCache(ctx context.Context, cfg *config.Config, backend stagecache.Backend, logger *slog.Logger) {
	dir, ok := backend.(*stagecache.DirBackend)
	if !ok || cfg.CacheMaxBytes() <= 0 {
		return
	}
	if _, err := dir.Prune(ctx, cfg.CacheMaxBytes()); err != nil {
		logging.WarnWithContext(logger, "stage cache prune failed", "cache_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cache may exceed cache.max_mib until the next prune"),
		)
	}
}

func printRunReport(out io.Writer, runDir string, report *engine.Report, top int) {
	v := report.Verdict
	fmt.Fprintf(out, "Run:      %s\n", report.RunID)
	fmt.Fprintf(out, "Dir:      %s\n", runDir)
	fmt.Fprintf(out, "Status:   %s\n", statusLabel(string(v.Status)))
	if v.Best != nil {
		fmt.Fprintf(out, "Best:     trial %04d score %s vs %s\n", v.Best.TrialIndex, formatScore(v.Best.BestScore), v.Best.BestReference)
	} else {
		fmt.Fprintln(out, "Best:     none")
	}
	if v.Margin != nil {
		fmt.Fprintf(out, "Margin:   %s (min %s)\n", formatScore(*v.Margin), formatScore(v.Thresholds.MinMargin))
	}
	fmt.Fprintf(out, "Trials:   %d (%d failed)\n", report.Trials, len(report.Failures))
	fmt.Fprintf(out, "Cache:    %d hits / %d misses\n", report.Timings.Cache.Hits, report.Timings.Cache.Misses)
	fmt.Fprintf(out, "Elapsed:  %s\n", formatMs(report.Timings.TotalMs))
	if len(report.Leaderboard) > 0 {
		fmt.Fprintln(out, renderLeaderboard(out, report.Leaderboard.Top(top)))
	}
	for _, f := range report.Failures {
		fmt.Fprintf(out, "Failed trial %04d (%s): %s\n", f.TrialIndex, f.Kind, f.Message)
	}
}
