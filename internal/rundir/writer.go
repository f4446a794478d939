package rundir

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigilum/internal/engine"
	"sigilum/internal/fileutil"
	"sigilum/internal/imageio"
	"sigilum/internal/leaderboard"
	"sigilum/internal/logging"
	"sigilum/internal/pipeline"
	"sigilum/internal/recipe"
	"sigilum/internal/scoring"
)

const (
	runFile         = "run.json"
	inputDir        = "input"
	referencesDir   = "firmas"
	configsDir      = "configs"
	trialsDir       = "trials"
	aggregateDir    = "aggregate"
	logsDir         = "logs"
	summaryFile     = "summary.json"
	chainFile       = "phases_chain.json"
	finalImage      = "final.png"
	overlaysDir     = "overlays"
	pairsDir        = "pairs"
	leaderboardFile = "leaderboard.json"
	timingsFile     = "timings.json"
	failuresFile    = "failures.json"
	logFile         = "run.log"
	timestampLayout = "20060102_150405"

	// Sobel magnitude marking reference edges in overlays.
	overlayEdgeLevel = 160
)

// StatusFailed marks a run that aborted before producing a report.
const StatusFailed leaderboard.Status = "FAILED"

// Meta is the content of run.json.
type Meta struct {
	RunID      string              `json:"run_id"`
	Dir        string              `json:"dir_name"`
	AccountID  string              `json:"cuenta_id"`
	ChequeName string              `json:"cheque_name"`
	CreatedAt  time.Time           `json:"created_at"`
	Inputs     map[string]string   `json:"input_sha256,omitempty"`
	Mode       string              `json:"mode,omitempty"`
	Status     leaderboard.Status  `json:"status,omitempty"`
	BestTrial  *leaderboard.Entry  `json:"best_trial,omitempty"`
	Trials     int                 `json:"n_trials,omitempty"`
	Failed     int                 `json:"n_failed,omitempty"`
	TargetSize []int               `json:"target_size,omitempty"`
	MaxTrials  int                 `json:"max_trials,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	TotalMs    float64             `json:"total_ms,omitempty"`
	Thresholds *scoring.Thresholds `json:"thresholds,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Writer owns one run directory.
type Writer struct {
	root   string
	meta   Meta
	logger *slog.Logger
	now    func() time.Time
	refs   map[string]*image.Gray
	size   scoring.Size
}

// Create makes a fresh run directory under runsRoot named after the creation
// time and the cheque file stem, then writes run.json.
func Create(runsRoot string, meta Meta, logger *slog.Logger) (*Writer, error) {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	stem := strings.TrimSuffix(filepath.Base(meta.ChequeName), filepath.Ext(meta.ChequeName))
	name := fmt.Sprintf("%s__%s", meta.CreatedAt.Format(timestampLayout), sanitize(stem))
	root := filepath.Join(runsRoot, name)
	for n := 2; ; n++ {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			break
		}
		root = filepath.Join(runsRoot, fmt.Sprintf("%s_%d", name, n))
	}
	for _, dir := range []string{
		filepath.Join(root, inputDir, referencesDir),
		filepath.Join(root, configsDir),
		filepath.Join(root, trialsDir),
		filepath.Join(root, aggregateDir),
		filepath.Join(root, logsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
	}
	meta.Dir = filepath.Base(root)
	w := &Writer{
		root:   root,
		meta:   meta,
		logger: logging.NewComponentLogger(logger, "rundir"),
		now:    time.Now,
	}
	if err := w.writeMeta(); err != nil {
		return nil, err
	}
	return w, nil
}

// Root returns the run directory.
func (w *Writer) Root() string { return w.root }

// LogPath is where the per-run log file lives.
func (w *Writer) LogPath() string { return filepath.Join(w.root, logsDir, logFile) }

// Meta returns the current run.json content.
func (w *Writer) Meta() Meta { return w.meta }

// CopyInputs copies the cheque and the reference images into input/,
// recording their SHA-256 digests in run.json.
func (w *Writer) CopyInputs(chequePath string, referencePaths []string) error {
	if w.meta.Inputs == nil {
		w.meta.Inputs = make(map[string]string, len(referencePaths)+1)
	}
	digest, err := fileutil.CopyFileVerified(chequePath, filepath.Join(w.root, inputDir, filepath.Base(chequePath)))
	if err != nil {
		return fmt.Errorf("copy cheque: %w", err)
	}
	w.meta.Inputs[filepath.ToSlash(filepath.Join(inputDir, filepath.Base(chequePath)))] = digest
	for _, ref := range referencePaths {
		rel := filepath.Join(inputDir, referencesDir, filepath.Base(ref))
		digest, err := fileutil.CopyFileVerified(ref, filepath.Join(w.root, rel))
		if err != nil {
			return fmt.Errorf("copy reference %s: %w", filepath.Base(ref), err)
		}
		w.meta.Inputs[filepath.ToSlash(rel)] = digest
	}
	return w.writeMeta()
}

// CopyConfigs copies profile files into configs/.
func (w *Writer) CopyConfigs(paths ...string) error {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := fileutil.CopyFile(path, filepath.Join(w.root, configsDir, filepath.Base(path))); err != nil {
			return fmt.Errorf("copy config %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// SetComparisonImages enables overlays/ and pairs/ images for every
// reference a trial compares against, rendered at size.
func (w *Writer) SetComparisonImages(refs []scoring.Reference, size scoring.Size) {
	w.refs = make(map[string]*image.Gray, len(refs))
	for _, ref := range refs {
		if ref.Image != nil {
			w.refs[ref.ID] = imageio.Resize(ref.Image, size.Width, size.Height)
		}
	}
	w.size = size
}

// TrialSummary is trials/trial_NNNN/summary.json.
type TrialSummary struct {
	TrialIndex  int                  `json:"trial_idx"`
	Signature   string               `json:"signature"`
	Best        *scoring.Comparison  `json:"best"`
	Thresholds  scoring.Thresholds   `json:"thresholds"`
	Comparisons []scoring.Comparison `json:"comparisons,omitempty"`
	Exhaustive  bool                 `json:"exhaustive"`
	Skipped     int                  `json:"skipped,omitempty"`
	Failure     *engine.Failure      `json:"failure,omitempty"`
	Ms          float64              `json:"ms"`
}

// PhasesChain is trials/trial_NNNN/phases_chain.json.
type PhasesChain struct {
	Steps     []pipeline.TraceStep `json:"steps"`
	StepsDef  recipe.Definition    `json:"steps_def"`
	Signature string               `json:"signature"`
}

// TrialDir returns the directory of a trial.
func (w *Writer) TrialDir(index int) string {
	return filepath.Join(w.root, trialsDir, fmt.Sprintf("trial_%04d", index))
}

// RecordTrial writes a trial's summary, its phase chain and final image.
func (w *Writer) RecordTrial(_ context.Context, _ string, rec engine.TrialRecord) error {
	dir := w.TrialDir(rec.Trial.Index)
	if rec.Output != nil {
		if err := imageio.WritePNG(filepath.Join(dir, "stages", finalImage), rec.Output); err != nil {
			return err
		}
	}
	chain := PhasesChain{Steps: rec.Trace, StepsDef: rec.Trial.Steps, Signature: rec.Trial.Signature}
	if chain.Steps == nil {
		chain.Steps = []pipeline.TraceStep{}
	}
	if err := fileutil.WriteJSON(filepath.Join(dir, chainFile), chain); err != nil {
		return err
	}
	summary := TrialSummary{
		TrialIndex: rec.Trial.Index,
		Signature:  rec.Trial.Signature,
		Thresholds: scoring.DefaultThresholds(),
		Failure:    rec.Failure,
		Ms:         rec.Ms,
	}
	if w.meta.Thresholds != nil {
		summary.Thresholds = *w.meta.Thresholds
	}
	if rec.Result != nil {
		summary.Best = rec.Result.Best
		summary.Comparisons = rec.Result.Comparisons
		summary.Exhaustive = rec.Result.Exhaustive
		summary.Skipped = rec.Result.Skipped
		if err := w.writeComparisonImages(dir, rec.Output, rec.Result.Comparisons); err != nil {
			return err
		}
	}
	return fileutil.WriteJSON(filepath.Join(dir, summaryFile), summary)
}

// writeComparisonImages renders, per compared reference, the reference edges
// over the trial output and the two images side by side.
func (w *Writer) writeComparisonImages(dir string, output *image.Gray, comparisons []scoring.Comparison) error {
	if output == nil || len(w.refs) == 0 || w.size.Width <= 0 || w.size.Height <= 0 {
		return nil
	}
	for _, c := range comparisons {
		ref, ok := w.refs[c.Reference]
		if !ok {
			continue
		}
		stem := strings.TrimSuffix(c.Reference, filepath.Ext(c.Reference))
		overlay := imageio.Overlay(output, ref, w.size.Width, w.size.Height, overlayEdgeLevel)
		if err := imageio.WritePNG(filepath.Join(dir, overlaysDir, "overlay_"+stem+".png"), overlay); err != nil {
			return err
		}
		pair := imageio.SideBySide(output, ref, w.size.Width, w.size.Height)
		if err := imageio.WritePNG(filepath.Join(dir, pairsDir, "pair_"+stem+".png"), pair); err != nil {
			return err
		}
	}
	return nil
}

type leaderboardDoc struct {
	Leaderboard leaderboard.Board   `json:"leaderboard"`
	Summary     leaderboard.Summary `json:"summary"`
}

// RecordReport writes the aggregate documents and finalizes run.json.
func (w *Writer) RecordReport(_ context.Context, report *engine.Report) error {
	board := report.Leaderboard
	if board == nil {
		board = leaderboard.Board{}
	}
	if err := fileutil.WriteJSON(filepath.Join(w.root, aggregateDir, leaderboardFile), leaderboardDoc{Leaderboard: board, Summary: report.Summary}); err != nil {
		return err
	}
	if err := fileutil.WriteJSON(filepath.Join(w.root, aggregateDir, timingsFile), report.Timings); err != nil {
		return err
	}
	failures := report.Failures
	if failures == nil {
		failures = []engine.Failure{}
	}
	if err := fileutil.WriteJSON(filepath.Join(w.root, aggregateDir, failuresFile), map[string]any{"failures": failures}); err != nil {
		return err
	}

	finished := w.now()
	th := report.Verdict.Thresholds
	w.meta.Mode = report.Mode
	w.meta.Status = report.Verdict.Status
	w.meta.BestTrial = report.Verdict.Best
	w.meta.Trials = report.Trials
	w.meta.Failed = len(report.Failures)
	w.meta.TargetSize = report.TargetSize.Pair()
	w.meta.MaxTrials = report.MaxTrials
	w.meta.FinishedAt = &finished
	w.meta.TotalMs = report.Timings.TotalMs
	w.meta.Thresholds = &th
	if err := w.writeMeta(); err != nil {
		return err
	}

	rows, err := CollectTrials(w.root)
	if err != nil {
		return err
	}
	if err := WriteTrialsSummary(w.root, rows); err != nil {
		return err
	}
	w.logger.Debug("run artifacts written", logging.String("run_dir", w.root))
	return nil
}

// Fail finalizes run.json for a run that aborted before producing a report.
func (w *Writer) Fail(cause error) error {
	finished := w.now()
	w.meta.Status = StatusFailed
	w.meta.FinishedAt = &finished
	if cause != nil {
		w.meta.Error = cause.Error()
	}
	return w.writeMeta()
}

func (w *Writer) writeMeta() error {
	return fileutil.WriteJSON(filepath.Join(w.root, runFile), w.meta)
}

func sanitize(value string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_", ":", "-")
	value = strings.Trim(replacer.Replace(strings.TrimSpace(value)), "-_.")
	if value == "" {
		return "cheque"
	}
	return value
}
