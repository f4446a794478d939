package scoring

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"sigilum/internal/faults"
	"sigilum/internal/imageio"
	"sigilum/internal/logging"
	"sigilum/internal/metric"
)

// Reference is one gallery signature.
type Reference struct {
	ID    string
	Path  string
	Image *image.Gray
}

// Comparison is the outcome of scoring one reference.
type Comparison struct {
	Reference string             `json:"firma"`
	Score     float64            `json:"score"`
	PerMetric map[string]float64 `json:"per_metric"`
	Path      string             `json:"path,omitempty"`
}

// Result summarizes one trial's reference scan.
type Result struct {
	Best        *Comparison  `json:"best"`
	Comparisons []Comparison `json:"comparisons"`
	// Exhaustive is false when early stop skipped references.
	Exhaustive bool `json:"exhaustive"`
	Skipped    int  `json:"skipped"`
}

// BestScore returns the best combined score, or -1 when nothing was scored.
func (r Result) BestScore() float64 {
	if r.Best == nil {
		return -1
	}
	return r.Best.Score
}

type preparedRef struct {
	Reference
	resized *image.Gray
}

// Scorer scores trial outputs against a fixed reference set.
type Scorer struct {
	profile   Profile
	metrics   []metric.Metric
	refs      []preparedRef
	earlyStop bool
	logger    *slog.Logger
}

// NewScorer validates profile, resolves its metrics, and resizes the
// references to the target size once. References are ordered by ID.
func NewScorer(registry *metric.Registry, profile Profile, refs []Reference, earlyStop bool, logger *slog.Logger) (*Scorer, error) {
	if err := profile.Validate(registry); err != nil {
		return nil, err
	}
	resolved := make([]metric.Metric, len(profile.Metrics))
	for i, spec := range profile.Metrics {
		m, err := registry.Lookup(spec.Name)
		if err != nil {
			return nil, err
		}
		resolved[i] = m
	}
	ordered := slices.Clone(refs)
	slices.SortStableFunc(ordered, func(a, b Reference) int { return strings.Compare(a.ID, b.ID) })
	prepared := make([]preparedRef, len(ordered))
	for i, ref := range ordered {
		if ref.Image == nil {
			return nil, faults.Configf("reference %q has no image", ref.ID)
		}
		prepared[i] = preparedRef{
			Reference: ref,
			resized:   imageio.Resize(ref.Image, profile.TargetSize.Width, profile.TargetSize.Height),
		}
	}
	return &Scorer{
		profile:   profile,
		metrics:   resolved,
		refs:      prepared,
		earlyStop: earlyStop,
		logger:    logging.NewComponentLogger(logger, "scoring"),
	}, nil
}

// Profile returns the validated profile.
func (s *Scorer) Profile() Profile { return s.profile }

// References returns reference identifiers in scan order.
func (s *Scorer) References() []string {
	out := make([]string, len(s.refs))
	for i, ref := range s.refs {
		out[i] = ref.ID
	}
	return out
}

// Score compares output against every reference in order, stopping early when
// enabled and a combined score reaches the early-stop threshold.
func (s *Scorer) Score(ctx context.Context, output *image.Gray) (Result, error) {
	res := Result{Exhaustive: true, Comparisons: make([]Comparison, 0, len(s.refs))}
	if output == nil {
		return res, faults.Wrap(faults.ErrComputation, "scoring", "score", "trial produced no image", nil)
	}
	logger := logging.WithContext(ctx, s.logger)
	target := imageio.Resize(output, s.profile.TargetSize.Width, s.profile.TargetSize.Height)

	for i, ref := range s.refs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		perMetric := make(map[string]float64, len(s.metrics))
		for j, m := range s.metrics {
			v, err := m.Score(target, ref.resized, s.profile.Metrics[j].Params)
			if err != nil {
				return res, faults.Wrap(faults.ErrComputation, "scoring", "metric "+m.Name(), ref.ID, err)
			}
			if math.IsNaN(v) || v < 0 || v > 1 {
				return res, faults.Wrap(faults.ErrComputation, "scoring", "metric "+m.Name(),
					fmt.Sprintf("%s: score %v outside [0,1]", ref.ID, v), nil)
			}
			perMetric[m.Name()] = v
		}
		combined, err := s.profile.Combine(perMetric)
		if err != nil {
			return res, err
		}
		cmp := Comparison{Reference: ref.ID, Score: combined, PerMetric: perMetric, Path: ref.Path}
		res.Comparisons = append(res.Comparisons, cmp)
		if res.Best == nil || combined > res.Best.Score {
			best := cmp
			res.Best = &best
		}
		if s.earlyStop && combined >= s.profile.Thresholds.EarlyStop {
			res.Skipped = len(s.refs) - i - 1
			res.Exhaustive = res.Skipped == 0
			logger.Info("early stop",
				logging.String("reference", ref.ID),
				logging.Float64("score", combined),
				logging.Float64("early_stop", s.profile.Thresholds.EarlyStop),
				logging.Int("skipped", res.Skipped),
			)
			break
		}
	}
	return res, nil
}

// ReferenceID derives a reference identifier from a file path.
func ReferenceID(path string) string {
	return filepath.Base(path)
}
