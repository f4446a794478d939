package runconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sigilum/internal/faults"
	"sigilum/internal/recipe"
	"sigilum/internal/scoring"
	"sigilum/internal/trials"
)

// Reserved search-profile keys that are not phases.
const (
	keyMaxCombinations = "max_combinations"
	keyTrials          = "trials"
)

// Search is a parsed search profile.
type Search struct {
	Space     trials.SearchSpace
	MaxTrials int
}

// Bundle holds the three profiles of a run and the files they came from.
type Bundle struct {
	Pipeline     recipe.Definition
	Search       Search
	Metrics      scoring.Profile
	PipelinePath string
	SearchPath   string
	MetricsPath  string
}

// Paths lists the non-empty source files.
func (b Bundle) Paths() []string {
	var out []string
	for _, p := range []string{b.PipelinePath, b.SearchPath, b.MetricsPath} {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads all three profiles. An empty searchPath means no search space.
func Load(pipelinePath, searchPath, metricsPath string) (Bundle, error) {
	b := Bundle{PipelinePath: pipelinePath, SearchPath: searchPath, MetricsPath: metricsPath}
	var err error
	if b.Pipeline, err = LoadPipeline(pipelinePath); err != nil {
		return Bundle{}, err
	}
	if strings.TrimSpace(searchPath) != "" {
		if b.Search, err = LoadSearch(searchPath); err != nil {
			return Bundle{}, err
		}
	}
	if b.Metrics, err = LoadMetrics(metricsPath); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

func readProfile(kind, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "runconfig", "read "+kind+" profile", path, err)
	}
	return data, nil
}

// LoadPipeline reads a pipeline profile.
func LoadPipeline(path string) (recipe.Definition, error) {
	data, err := readProfile("pipeline", path)
	if err != nil {
		return nil, err
	}
	def, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadSearch reads a search profile.
func LoadSearch(path string) (Search, error) {
	data, err := readProfile("search", path)
	if err != nil {
		return Search{}, err
	}
	s, err := ParseSearch(data)
	if err != nil {
		return Search{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadMetrics reads a metrics profile.
func LoadMetrics(path string) (scoring.Profile, error) {
	data, err := readProfile("metrics", path)
	if err != nil {
		return scoring.Profile{}, err
	}
	p, err := ParseMetrics(data)
	if err != nil {
		return scoring.Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

type pipelineDoc struct {
	Pipeline *[]stepDoc `yaml:"pipeline"`
}

type stepDoc struct {
	Phase  string         `yaml:"phase"`
	Params map[string]any `yaml:"params"`
}

// ParsePipeline decodes `pipeline: [{phase, params}]`.
func ParsePipeline(data []byte) (recipe.Definition, error) {
	var doc pipelineDoc
	if err := decodeStrict(data, &doc); err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "runconfig", "decode pipeline", "", err)
	}
	if doc.Pipeline == nil {
		return nil, faults.Configf("pipeline profile must contain a 'pipeline' list")
	}
	def := make(recipe.Definition, 0, len(*doc.Pipeline))
	for i, step := range *doc.Pipeline {
		phase := strings.TrimSpace(step.Phase)
		if phase == "" {
			return nil, faults.Configf("pipeline[%d].phase is required", i)
		}
		def = append(def, recipe.Step{Phase: phase, Params: recipe.Params(step.Params).Clone()})
	}
	return def, nil
}

// ParseSearch decodes a search profile: phase → param → candidates, with an
// optional max_combinations either at the top level or under trials.
// Parameters keep the order the profile lists them in.
func ParseSearch(data []byte) (Search, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Search{}, faults.Wrap(faults.ErrConfiguration, "runconfig", "decode search", "", err)
	}
	s := Search{Space: trials.SearchSpace{}}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == 0 || isNull(root) {
		return s, nil
	}
	if root.Kind != yaml.MappingNode {
		return Search{}, faults.Configf("search profile must be a mapping")
	}
	var topLimit, nestedLimit int
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, node := root.Content[i].Value, root.Content[i+1]
		switch key {
		case keyMaxCombinations:
			var value any
			if err := node.Decode(&value); err != nil {
				return Search{}, faults.Wrap(faults.ErrConfiguration, "runconfig", "decode search", key, err)
			}
			n, err := nonNegativeInt(key, value)
			if err != nil {
				return Search{}, err
			}
			topLimit = n
		case keyTrials:
			var section map[string]any
			if err := node.Decode(&section); err != nil {
				return Search{}, faults.Configf("search.trials must be a mapping")
			}
			n, err := nonNegativeInt("trials."+keyMaxCombinations, section[keyMaxCombinations])
			if err != nil {
				return Search{}, err
			}
			nestedLimit = n
		default:
			if _, dup := s.Space[key]; dup {
				return Search{}, faults.Configf("search.%s listed twice", key)
			}
			params, err := parsePhaseSpace(key, node)
			if err != nil {
				return Search{}, err
			}
			s.Space[key] = params
		}
	}
	s.MaxTrials = topLimit
	if s.MaxTrials == 0 {
		s.MaxTrials = nestedLimit
	}
	if err := trials.Validate(s.Space); err != nil {
		return Search{}, err
	}
	return s, nil
}

func parsePhaseSpace(phase string, node *yaml.Node) (trials.PhaseSpace, error) {
	if isNull(node) {
		return trials.PhaseSpace{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, faults.Configf("search.%s must map parameters to candidates", phase)
	}
	params := make(trials.PhaseSpace, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return nil, faults.Wrap(faults.ErrConfiguration, "runconfig", "decode search", phase+"."+node.Content[i].Value, err)
		}
		params = append(params, trials.ParamCandidates{Name: node.Content[i].Value, Values: value})
	}
	return params, nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

func nonNegativeInt(key string, value any) (int, error) {
	switch n := value.(type) {
	case nil:
		return 0, nil
	case int:
		if n < 0 {
			return 0, faults.Configf("search.%s must be >= 0", key)
		}
		return n, nil
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, faults.Configf("search.%s must be a non-negative integer", key)
		}
		return int(n), nil
	default:
		return 0, faults.Configf("search.%s must be an integer, got %T", key, value)
	}
}

type metricsDoc struct {
	Metrics    *[]scoring.MetricSpec `yaml:"metrics"`
	Combiner   string                `yaml:"combiner"`
	Thresholds *thresholdsDoc        `yaml:"thresholds"`
	TargetSize []int                 `yaml:"target_size"`
}

type thresholdsDoc struct {
	Accept    *float64 `yaml:"accept"`
	EarlyStop *float64 `yaml:"early_stop"`
	MinMargin *float64 `yaml:"min_margin"`
}

// ParseMetrics decodes a metrics profile, filling defaults for the combiner
// (weighted_sum), each missing threshold, and target_size (256x256).
func ParseMetrics(data []byte) (scoring.Profile, error) {
	var doc metricsDoc
	if err := decodeStrict(data, &doc); err != nil {
		return scoring.Profile{}, faults.Wrap(faults.ErrConfiguration, "runconfig", "decode metrics", "", err)
	}
	if doc.Metrics == nil {
		return scoring.Profile{}, faults.Configf("metrics profile must contain 'metrics'")
	}
	p := scoring.Profile{
		Metrics:    *doc.Metrics,
		Combiner:   strings.TrimSpace(doc.Combiner),
		Thresholds: scoring.DefaultThresholds(),
		TargetSize: scoring.Size{Width: scoring.DefaultSize, Height: scoring.DefaultSize},
	}
	for i := range p.Metrics {
		p.Metrics[i].Name = strings.TrimSpace(p.Metrics[i].Name)
		if p.Metrics[i].Name == "" {
			return scoring.Profile{}, faults.Configf("metrics[%d].name is required", i)
		}
	}
	if p.Combiner == "" {
		p.Combiner = scoring.CombinerWeightedSum
	}
	if t := doc.Thresholds; t != nil {
		if t.Accept != nil {
			p.Thresholds.Accept = *t.Accept
		}
		if t.EarlyStop != nil {
			p.Thresholds.EarlyStop = *t.EarlyStop
		}
		if t.MinMargin != nil {
			p.Thresholds.MinMargin = *t.MinMargin
		}
	}
	if doc.TargetSize != nil {
		if len(doc.TargetSize) != 2 {
			return scoring.Profile{}, faults.Configf("target_size must be [width, height]")
		}
		p.TargetSize = scoring.Size{Width: doc.TargetSize[0], Height: doc.TargetSize[1]}
	}
	return p, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
