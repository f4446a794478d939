package scoring

import (
	"math"
	"slices"
	"strings"

	"sigilum/internal/faults"
	"sigilum/internal/metric"
	"sigilum/internal/recipe"
)

const (
	CombinerWeightedSum = "weighted_sum"

	DefaultAccept    = 0.80
	DefaultEarlyStop = 0.88
	DefaultMinMargin = 0.05
	DefaultSize      = 256
)

// MetricSpec selects a metric with its weight and parameters.
type MetricSpec struct {
	Name   string        `json:"name" yaml:"name"`
	Weight *float64      `json:"weight,omitempty" yaml:"weight,omitempty"`
	Params recipe.Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// EffectiveWeight returns the configured weight or 1.
func (m MetricSpec) EffectiveWeight() float64 {
	if m.Weight == nil {
		return 1
	}
	return *m.Weight
}

// Thresholds drive early stopping and the run verdict.
type Thresholds struct {
	Accept    float64 `json:"accept" yaml:"accept"`
	EarlyStop float64 `json:"early_stop" yaml:"early_stop"`
	MinMargin float64 `json:"min_margin" yaml:"min_margin"`
}

// DefaultThresholds returns accept 0.80, early_stop 0.88, min_margin 0.05.
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: DefaultAccept, EarlyStop: DefaultEarlyStop, MinMargin: DefaultMinMargin}
}

// Size is a width x height pair.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Pair renders the size as [width, height].
func (s Size) Pair() []int { return []int{s.Width, s.Height} }

// Profile configures how outputs are compared against references.
type Profile struct {
	Metrics    []MetricSpec `json:"metrics"`
	Combiner   string       `json:"combiner"`
	Thresholds Thresholds   `json:"thresholds"`
	TargetSize Size         `json:"target_size"`
}

// Validate checks the profile eagerly: the combiner must be known, every
// metric registered, weights finite and non-negative, thresholds in [0,1]
// and the target size positive.
func (p Profile) Validate(metrics *metric.Registry) error {
	if len(p.Metrics) == 0 {
		return faults.Configf("metrics profile lists no metrics")
	}
	if _, ok := combiners[p.combinerName()]; !ok {
		return faults.Configf("unknown combiner %q (known: %s)", p.Combiner, strings.Join(CombinerNames(), ", "))
	}
	seen := make(map[string]struct{}, len(p.Metrics))
	for _, spec := range p.Metrics {
		if _, dup := seen[spec.Name]; dup {
			return faults.Configf("metric %q listed twice", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		if _, err := metrics.Lookup(spec.Name); err != nil {
			return err
		}
		if w := spec.EffectiveWeight(); math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return faults.Configf("metric %q has invalid weight %v", spec.Name, w)
		}
	}
	for name, v := range map[string]float64{
		"accept":     p.Thresholds.Accept,
		"early_stop": p.Thresholds.EarlyStop,
		"min_margin": p.Thresholds.MinMargin,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return faults.Configf("threshold %s=%v outside [0,1]", name, v)
		}
	}
	if p.TargetSize.Width <= 0 || p.TargetSize.Height <= 0 {
		return faults.Configf("target_size must be positive, got %dx%d", p.TargetSize.Width, p.TargetSize.Height)
	}
	return nil
}

func (p Profile) combinerName() string {
	if strings.TrimSpace(p.Combiner) == "" {
		return CombinerWeightedSum
	}
	return p.Combiner
}

// Combine reduces per-metric scores with the profile's combiner.
func (p Profile) Combine(perMetric map[string]float64) (float64, error) {
	fn, ok := combiners[p.combinerName()]
	if !ok {
		return 0, faults.Configf("unknown combiner %q", p.Combiner)
	}
	weights := make(map[string]float64, len(p.Metrics))
	for _, spec := range p.Metrics {
		weights[spec.Name] = spec.EffectiveWeight()
	}
	return fn(perMetric, weights), nil
}

// combinerFunc folds scores with per-metric weights; metrics missing from
// weights count with weight 1.
type combinerFunc func(scores, weights map[string]float64) float64

var combiners = map[string]combinerFunc{
	CombinerWeightedSum: weightedSum,
}

// CombinerNames lists known combiners.
func CombinerNames() []string {
	names := make([]string, 0, len(combiners))
	for name := range combiners {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func weightedSum(scores, weights map[string]float64) float64 {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	slices.Sort(names)
	var num, den float64
	for _, name := range names {
		w, ok := weights[name]
		if !ok {
			w = 1
		}
		num += scores[name] * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}
