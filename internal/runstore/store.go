package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sigilum/internal/engine"
	"sigilum/internal/faults"
)

// Run statuses stored alongside the verdict statuses.
const (
	StatusRunning = "RUNNING"
	StatusFailed  = "FAILED"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store is the SQLite run ledger.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or connects to the ledger at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, faults.Configf("store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "runstore", "open", "create directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// RunInfo registers a run before its trials execute.
type RunInfo struct {
	RunID      string
	ChequeName string
	AccountID  string
	Mode       string
	RunDir     string
}

// Begin inserts a RUNNING row for the run.
func (s *Store) Begin(ctx context.Context, info RunInfo) error {
	ts := s.timestamp()
	err := s.exec(ctx,
		`INSERT INTO runs (run_id, cheque_name, account_id, mode, run_dir, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.RunID, info.ChequeName, nullableString(info.AccountID), info.Mode,
		nullableString(info.RunDir), StatusRunning, ts, ts,
	)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "runstore", "begin", info.RunID, err)
	}
	return nil
}

// RecordTrial upserts the trial outcome.
func (s *Store) RecordTrial(ctx context.Context, runID string, rec engine.TrialRecord) error {
	var (
		score      sql.NullFloat64
		firma      sql.NullString
		exhaustive int
		kind       sql.NullString
		message    sql.NullString
	)
	if rec.Result != nil {
		if rec.Result.Best != nil {
			score = sql.NullFloat64{Float64: rec.Result.Best.Score, Valid: true}
			firma = sql.NullString{String: rec.Result.Best.Reference, Valid: true}
		}
		if rec.Result.Exhaustive {
			exhaustive = 1
		}
	}
	if rec.Failure != nil {
		kind = sql.NullString{String: rec.Failure.Kind, Valid: true}
		message = sql.NullString{String: rec.Failure.Message, Valid: true}
	}
	err := s.exec(ctx,
		`INSERT INTO trials (run_id, trial_idx, signature, best_score, best_firma, exhaustive, failure_kind, failure_message, ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(run_id, trial_idx) DO UPDATE SET
             signature = excluded.signature,
             best_score = excluded.best_score,
             best_firma = excluded.best_firma,
             exhaustive = excluded.exhaustive,
             failure_kind = excluded.failure_kind,
             failure_message = excluded.failure_message,
             ms = excluded.ms`,
		runID, rec.Trial.Index, rec.Trial.Signature, score, firma, exhaustive, kind, message, rec.Ms,
	)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "runstore", "record trial", fmt.Sprintf("%s trial %d", runID, rec.Trial.Index), err)
	}
	return nil
}

// RecordReport stores the verdict and aggregate counters.
func (s *Store) RecordReport(ctx context.Context, report *engine.Report) error {
	var (
		bestIdx   sql.NullInt64
		bestScore sql.NullFloat64
		bestFirma sql.NullString
		margin    sql.NullFloat64
	)
	if best := report.Verdict.Best; best != nil {
		bestIdx = sql.NullInt64{Int64: int64(best.TrialIndex), Valid: true}
		bestScore = sql.NullFloat64{Float64: best.BestScore, Valid: true}
		bestFirma = sql.NullString{String: best.BestReference, Valid: true}
	}
	if report.Verdict.Margin != nil {
		margin = sql.NullFloat64{Float64: *report.Verdict.Margin, Valid: true}
	}
	err := s.exec(ctx,
		`UPDATE runs SET status = ?, best_trial_idx = ?, best_score = ?, best_firma = ?, margin = ?,
             n_trials = ?, n_failed = ?, total_ms = ?, cache_hits = ?, cache_misses = ?, updated_at = ?
         WHERE run_id = ?`,
		string(report.Verdict.Status), bestIdx, bestScore, bestFirma, margin,
		report.Trials, len(report.Failures), report.Timings.TotalMs,
		report.Timings.Cache.Hits, report.Timings.Cache.Misses, s.timestamp(),
		report.RunID,
	)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "runstore", "record report", report.RunID, err)
	}
	return nil
}

// Fail marks a run that aborted before producing a report.
func (s *Store) Fail(ctx context.Context, runID string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ? WHERE run_id = ?`,
		StatusFailed, nullableString(message), s.timestamp(), runID,
	)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "runstore", "fail", runID, err)
	}
	return nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
