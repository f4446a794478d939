// Package leaderboard ranks trial results and decides the run verdict.
//
// The board is ordered by best score descending with ties broken by trial
// index ascending. The verdict is ACCEPTED when the best score clears the
// accept threshold and, when there is a runner-up, beats it by at least the
// minimum margin. Everything else is REVIEW.
package leaderboard

import (
	"cmp"
	"slices"

	"github.com/montanaflynn/stats"

	"sigilum/internal/scoring"
)

// Status is the run verdict.
type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusReview   Status = "REVIEW"
)

// Entry is one ranked trial.
type Entry struct {
	TrialIndex    int     `json:"trial_idx"`
	Signature     string  `json:"signature"`
	BestScore     float64 `json:"best_score"`
	BestReference string  `json:"best_firma"`
	Exhaustive    bool    `json:"exhaustive"`
}

// Board is a sorted list of entries.
type Board []Entry

// Build returns a sorted copy of entries.
func Build(entries []Entry) Board {
	board := slices.Clone(entries)
	slices.SortStableFunc(board, func(a, b Entry) int {
		if c := cmp.Compare(b.BestScore, a.BestScore); c != 0 {
			return c
		}
		return cmp.Compare(a.TrialIndex, b.TrialIndex)
	})
	return Board(board)
}

// Top returns at most n leading entries; n <= 0 returns the whole board.
func (b Board) Top(n int) Board {
	if n <= 0 || n >= len(b) {
		return b
	}
	return b[:n]
}

// Verdict is the run-level decision.
type Verdict struct {
	Status     Status             `json:"status"`
	Best       *Entry             `json:"best_trial"`
	Margin     *float64           `json:"margin,omitempty"`
	Thresholds scoring.Thresholds `json:"thresholds"`
}

// Decide applies the accept threshold and the margin guard.
func Decide(board Board, th scoring.Thresholds) Verdict {
	v := Verdict{Status: StatusReview, Thresholds: th}
	if len(board) == 0 {
		return v
	}
	best := board[0]
	v.Best = &best
	if len(board) > 1 {
		margin := best.BestScore - board[1].BestScore
		v.Margin = &margin
	}
	if best.BestScore < th.Accept {
		return v
	}
	if v.Margin == nil || *v.Margin >= th.MinMargin {
		v.Status = StatusAccepted
	}
	return v
}

// Summary describes the distribution of best scores across trials.
type Summary struct {
	Trials int     `json:"trials"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	P90    float64 `json:"p90"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes score statistics. An empty board yields a zero Summary.
func Summarize(board Board) (Summary, error) {
	if len(board) == 0 {
		return Summary{}, nil
	}
	data := make(stats.Float64Data, len(board))
	for i, e := range board {
		data[i] = e.BestScore
	}
	s := Summary{Trials: len(board)}
	var err error
	if s.Mean, err = stats.Mean(data); err != nil {
		return Summary{}, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return Summary{}, err
	}
	if s.StdDev, err = stats.StandardDeviation(data); err != nil {
		return Summary{}, err
	}
	if s.P90, err = stats.Percentile(data, 90); err != nil {
		return Summary{}, err
	}
	if s.Min, err = stats.Min(data); err != nil {
		return Summary{}, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return Summary{}, err
	}
	return s, nil
}
