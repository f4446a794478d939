package leaderboard

import (
	"math"
	"testing"

	"sigilum/internal/scoring"
)

func TestBuildSortsByScoreThenIndex(t *testing.T) {
	board := Build([]Entry{
		{TrialIndex: 1, BestScore: 0.5},
		{TrialIndex: 3, BestScore: 0.9},
		{TrialIndex: 2, BestScore: 0.9},
		{TrialIndex: 4, BestScore: 0.7},
	})
	want := []int{2, 3, 4, 1}
	for i, idx := range want {
		if board[i].TrialIndex != idx {
			t.Fatalf("position %d: got trial %d, want %d (board %+v)", i, board[i].TrialIndex, idx, board)
		}
	}
}

func TestBuildIsPureAndStable(t *testing.T) {
	input := []Entry{{TrialIndex: 2, BestScore: 0.1}, {TrialIndex: 1, BestScore: 0.2}}
	first := Build(input)
	if input[0].TrialIndex != 2 {
		t.Fatal("Build must not reorder its input")
	}
	reversed := Build([]Entry{input[1], input[0]})
	for i := range first {
		if first[i] != reversed[i] {
			t.Fatal("board depends on input order")
		}
	}
}

func TestDecide(t *testing.T) {
	th := scoring.DefaultThresholds()
	cases := []struct {
		name   string
		scores []float64
		want   Status
	}{
		{"clear margin", []float64{0.90, 0.83}, StatusAccepted},
		{"margin too small", []float64{0.90, 0.87}, StatusReview},
		{"single trial above accept", []float64{0.81}, StatusAccepted},
		{"below accept", []float64{0.79, 0.10}, StatusReview},
		{"exact accept and margin", []float64{0.80, 0.70}, StatusAccepted},
		{"empty", nil, StatusReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries := make([]Entry, len(tc.scores))
			for i, s := range tc.scores {
				entries[i] = Entry{TrialIndex: i + 1, BestScore: s}
			}
			v := Decide(Build(entries), th)
			if v.Status != tc.want {
				t.Fatalf("got %s, want %s", v.Status, tc.want)
			}
			if len(tc.scores) == 0 && v.Best != nil {
				t.Fatal("empty board must not report a best trial")
			}
			if len(tc.scores) > 0 && v.Best.BestScore != tc.scores[0] {
				t.Fatalf("unexpected best %+v", v.Best)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	board := Build([]Entry{{TrialIndex: 1, BestScore: 0.2}, {TrialIndex: 2, BestScore: 0.4}, {TrialIndex: 3, BestScore: 0.6}})
	s, err := Summarize(board)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Trials != 3 || math.Abs(s.Mean-0.4) > 1e-12 || math.Abs(s.Median-0.4) > 1e-12 || s.Max != 0.6 || s.Min != 0.2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if empty, err := Summarize(nil); err != nil || empty.Trials != 0 {
		t.Fatalf("empty summary: %+v %v", empty, err)
	}
}

func TestTop(t *testing.T) {
	board := Build([]Entry{{TrialIndex: 1}, {TrialIndex: 2}, {TrialIndex: 3}})
	if len(board.Top(2)) != 2 || len(board.Top(0)) != 3 || len(board.Top(10)) != 3 {
		t.Fatal("unexpected Top lengths")
	}
}
