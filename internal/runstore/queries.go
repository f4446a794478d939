package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sigilum/internal/faults"
)

// RunRow is a ledger entry for one run.
type RunRow struct {
	RunID        string
	ChequeName   string
	AccountID    string
	Mode         string
	RunDir       string
	Status       string
	BestTrial    *int
	BestScore    *float64
	BestFirma    string
	Margin       *float64
	Trials       int
	Failed       int
	TotalMs      float64
	CacheHits    int64
	CacheMisses  int64
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TrialRow is a ledger entry for one trial.
type TrialRow struct {
	RunID          string
	TrialIndex     int
	Signature      string
	BestScore      *float64
	BestFirma      string
	Exhaustive     bool
	FailureKind    string
	FailureMessage string
	Ms             float64
}

const runColumns = "run_id, cheque_name, account_id, mode, run_dir, status, best_trial_idx, best_score, best_firma, margin, n_trials, n_failed, total_ms, cache_hits, cache_misses, error_message, created_at, updated_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*RunRow, error) {
	var (
		row                            RunRow
		account, runDir, firma, errMsg sql.NullString
		bestIdx                        sql.NullInt64
		bestScore, margin, totalMs     sql.NullFloat64
		createdRaw, updatedRaw         string
	)
	if err := scanner.Scan(
		&row.RunID, &row.ChequeName, &account, &row.Mode, &runDir, &row.Status,
		&bestIdx, &bestScore, &firma, &margin, &row.Trials, &row.Failed, &totalMs,
		&row.CacheHits, &row.CacheMisses, &errMsg, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	row.AccountID = account.String
	row.RunDir = runDir.String
	row.BestFirma = firma.String
	row.ErrorMessage = errMsg.String
	row.TotalMs = totalMs.Float64
	if bestIdx.Valid {
		idx := int(bestIdx.Int64)
		row.BestTrial = &idx
	}
	if bestScore.Valid {
		v := bestScore.Float64
		row.BestScore = &v
	}
	if margin.Valid {
		v := margin.Float64
		row.Margin = &v
	}
	row.CreatedAt = parseTime(createdRaw)
	row.UpdatedAt = parseTime(updatedRaw)
	return &row, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, run_id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "runstore", "list runs", "query", err)
	}
	defer rows.Close()

	var out []*RunRow
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun returns the run or nil when it is not in the ledger.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRow, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "runstore", "get run", runID, err)
	}
	return run, nil
}

// Trials returns a run's trials ordered by best score descending then index.
// Failed trials sort last.
func (s *Store) Trials(ctx context.Context, runID string) ([]TrialRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, trial_idx, signature, best_score, best_firma, exhaustive, failure_kind, failure_message, ms
         FROM trials WHERE run_id = ?
         ORDER BY best_score IS NULL, best_score DESC, trial_idx ASC`, runID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "runstore", "trials", runID, err)
	}
	defer rows.Close()

	var out []TrialRow
	for rows.Next() {
		var (
			tr                   TrialRow
			score                sql.NullFloat64
			firma, kind, message sql.NullString
			exhaustive           int
		)
		if err := rows.Scan(&tr.RunID, &tr.TrialIndex, &tr.Signature, &score, &firma, &exhaustive, &kind, &message, &tr.Ms); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if score.Valid {
			v := score.Float64
			tr.BestScore = &v
		}
		tr.BestFirma = firma.String
		tr.Exhaustive = exhaustive != 0
		tr.FailureKind = kind.String
		tr.FailureMessage = message.String
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SignatureHistory reports how often a pipeline signature has been tried
// across runs and its best score so far.
type SignatureHistory struct {
	Signature string
	Runs      int
	BestScore *float64
}

// LookupSignature summarizes past trials that used signature.
func (s *Store) LookupSignature(ctx context.Context, signature string) (SignatureHistory, error) {
	h := SignatureHistory{Signature: signature}
	var best sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT run_id), MAX(best_score) FROM trials WHERE signature = ?`, signature,
	).Scan(&h.Runs, &best)
	if err != nil {
		return h, faults.Wrap(faults.ErrStorage, "runstore", "lookup signature", signature, err)
	}
	if best.Valid {
		v := best.Float64
		h.BestScore = &v
	}
	return h, nil
}
