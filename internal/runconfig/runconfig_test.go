package runconfig

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"sigilum/internal/faults"
	"sigilum/internal/scoring"
)

func TestParsePipeline(t *testing.T) {
	def, err := ParsePipeline([]byte(`
pipeline:
  - phase: BoxBlur
    params: {radius: 2}
  - phase: Invert
`))
	if err != nil {
		t.Fatalf("ParsePipeline: %v", err)
	}
	if len(def) != 2 || def[0].Params["radius"] != 2 || def[1].Params == nil {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestParsePipelineErrors(t *testing.T) {
	cases := map[string]string{
		"missing list":  "steps: []\n",
		"missing phase": "pipeline:\n  - params: {a: 1}\n",
		"not a list":    "pipeline: Invert\n",
		"empty doc":     "",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePipeline([]byte(doc)); !errors.Is(err, faults.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestParseSearch(t *testing.T) {
	s, err := ParseSearch([]byte(`
Threshold:
  level: [100, 128]
  invert: false
BoxBlur:
  radius: [0, 1, 2]
trials:
  max_combinations: 4
`))
	if err != nil {
		t.Fatalf("ParseSearch: %v", err)
	}
	if s.MaxTrials != 4 || len(s.Space) != 2 {
		t.Fatalf("unexpected search %+v", s)
	}
	threshold := s.Space["Threshold"]
	if len(threshold) != 2 || threshold[0].Name != "level" || threshold[1].Name != "invert" {
		t.Fatalf("unexpected Threshold space %v", threshold)
	}
	if levels, ok := threshold[0].Values.([]any); !ok || len(levels) != 2 {
		t.Fatalf("unexpected Threshold levels %v", threshold[0].Values)
	}
}

func TestParseSearchKeepsParameterOrder(t *testing.T) {
	s, err := ParseSearch([]byte("Bin: {window: [21, 29], C: [3, 5], alpha: 1}
"))
	if err != nil {
		t.Fatalf("ParseSearch: %v", err)
	}
	var names []string
	for _, param := range s.Space["Bin"] {
		names = append(names, param.Name)
	}
	if !reflect.DeepEqual(names, []string{"window", "C", "alpha"}) {
		t.Fatalf("parameter order = %v", names)
	}
}

func TestParseSearchEmptyProfile(t *testing.T) {
	for _, doc := range []string{"", "~\n", "Threshold:\n"} {
		s, err := ParseSearch([]byte(doc))
		if err != nil {
			t.Fatalf("ParseSearch(%q): %v", doc, err)
		}
		if params, ok := s.Space["Threshold"]; ok && len(params) != 0 {
			t.Fatalf("unexpected params %v", params)
		}
	}
}

func TestParseSearchTopLevelLimitWins(t *testing.T) {
	s, err := ParseSearch([]byte("max_combinations: 2\ntrials: {max_combinations: 9}\n"))
	if err != nil || s.MaxTrials != 2 {
		t.Fatalf("expected 2, got %d err=%v", s.MaxTrials, err)
	}
	s, err = ParseSearch([]byte("max_combinations: 0\ntrials: {max_combinations: 9}\n"))
	if err != nil || s.MaxTrials != 9 {
		t.Fatalf("expected 9, got %d err=%v", s.MaxTrials, err)
	}
}

func TestParseSearchErrors(t *testing.T) {
	cases := map[string]string{
		"phase not a map":  "Threshold: [1, 2]\n",
		"nested candidate": "Threshold:\n  level: {a: 1}\n",
		"empty candidates": "Threshold:\n  level: []\n",
		"negative limit":   "max_combinations: -1\n",
		"duplicate param":  "Threshold:\n  level: 1\n  level: 2\n",
		"not a mapping":    "- Threshold\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSearch([]byte(doc)); !errors.Is(err, faults.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestParseMetricsDefaults(t *testing.T) {
	p, err := ParseMetrics([]byte(`
metrics:
  - name: ncc
    weight: 2
  - name: mse
thresholds:
  accept: 0.75
`))
	if err != nil {
		t.Fatalf("ParseMetrics: %v", err)
	}
	if p.Combiner != scoring.CombinerWeightedSum {
		t.Fatalf("expected default combiner, got %q", p.Combiner)
	}
	if p.Thresholds.Accept != 0.75 || p.Thresholds.EarlyStop != scoring.DefaultEarlyStop || p.Thresholds.MinMargin != scoring.DefaultMinMargin {
		t.Fatalf("unexpected thresholds %+v", p.Thresholds)
	}
	if p.TargetSize != (scoring.Size{Width: 256, Height: 256}) {
		t.Fatalf("unexpected target size %+v", p.TargetSize)
	}
	if p.Metrics[0].EffectiveWeight() != 2 || p.Metrics[1].EffectiveWeight() != 1 {
		t.Fatalf("unexpected weights %+v", p.Metrics)
	}
}

func TestParseMetricsErrors(t *testing.T) {
	cases := map[string]string{
		"missing metrics": "combiner: weighted_sum\n",
		"bad target size": "metrics: [{name: ncc}]\ntarget_size: [1]\n",
		"unknown field":   "metrics: [{name: ncc}]\nweights: 1\n",
		"unnamed metric":  "metrics: [{weight: 1}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseMetrics([]byte(doc)); !errors.Is(err, faults.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}
	pipe := write("pipeline.yaml", "pipeline:\n  - phase: Invert\n")
	metrics := write("metrics.yaml", "metrics: [{name: ncc}]\n")

	b, err := Load(pipe, "", metrics)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(b.Pipeline) != 1 || len(b.Search.Space) != 0 || len(b.Paths()) != 2 {
		t.Fatalf("unexpected bundle %+v", b)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml"), "", metrics); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}
}
