package trials

import (
	"fmt"
	"iter"
	"math"
	"reflect"
	"slices"

	"sigilum/internal/faults"
	"sigilum/internal/fingerprint"
	"sigilum/internal/recipe"
)

// ParamCandidates is one searched parameter: a scalar or a list of scalars.
type ParamCandidates struct {
	Name   string
	Values any
}

// PhaseSpace lists a phase's searched parameters in profile order. The last
// parameter varies fastest.
type PhaseSpace []ParamCandidates

// SearchSpace maps phase → its searched parameters.
type SearchSpace map[string]PhaseSpace

// Trial is one concrete pipeline with its stable signature.
type Trial struct {
	Index     int               `json:"trial_idx"`
	Steps     recipe.Definition `json:"steps"`
	Signature string            `json:"signature"`
}

// Sequence enumerates trials lazily.
type Sequence struct {
	base     recipe.Definition
	variants [][]recipe.Params
	total    int
}

// NewSequence validates the search space and prepares enumeration. maxTrials
// <= 0 means no limit.
func NewSequence(base recipe.Definition, space SearchSpace, maxTrials int) (*Sequence, error) {
	if err := Validate(space); err != nil {
		return nil, err
	}
	seq := &Sequence{base: base.Clone(), variants: make([][]recipe.Params, len(base))}
	total := 1
	for i, step := range base {
		combos := []recipe.Params{{}}
		if phaseSpace, ok := space[step.Phase]; ok {
			combos = product(phaseSpace)
		}
		variants := make([]recipe.Params, len(combos))
		for j, combo := range combos {
			variants[j] = step.Params.Merge(combo)
		}
		seq.variants[i] = variants
		if total > math.MaxInt/len(variants) {
			return nil, faults.Configf("search space too large to enumerate")
		}
		total *= len(variants)
	}
	if len(base) == 0 {
		total = 0
	}
	if maxTrials > 0 && maxTrials < total {
		total = maxTrials
	}
	seq.total = total
	return seq, nil
}

// Len is the number of trials the sequence yields.
func (s *Sequence) Len() int { return s.total }

// At materializes the trial at 0-based position pos.
func (s *Sequence) At(pos int) (Trial, error) {
	if pos < 0 || pos >= s.total {
		return Trial{}, fmt.Errorf("trial position %d out of range [0,%d)", pos, s.total)
	}
	steps := make(recipe.Definition, len(s.base))
	rem := pos
	for i := len(s.base) - 1; i >= 0; i-- {
		n := len(s.variants[i])
		steps[i] = recipe.Step{Phase: s.base[i].Phase, Params: s.variants[i][rem%n].Clone()}
		rem /= n
	}
	sig, err := Signature(steps)
	if err != nil {
		return Trial{}, err
	}
	return Trial{Index: pos + 1, Steps: steps, Signature: sig}, nil
}

// All yields (position, trial) pairs in order. It stops early if a trial
// cannot be signed.
func (s *Sequence) All() iter.Seq2[int, Trial] {
	return func(yield func(int, Trial) bool) {
		for pos := range s.total {
			trial, err := s.At(pos)
			if err != nil {
				return
			}
			if !yield(pos, trial) {
				return
			}
		}
	}
}

// Expand materializes every trial of the sequence.
func Expand(base recipe.Definition, space SearchSpace, maxTrials int) ([]Trial, error) {
	seq, err := NewSequence(base, space, maxTrials)
	if err != nil {
		return nil, err
	}
	out := make([]Trial, 0, seq.Len())
	for pos := range seq.Len() {
		trial, err := seq.At(pos)
		if err != nil {
			return nil, err
		}
		out = append(out, trial)
	}
	return out, nil
}

// Single wraps steps as the only trial, used when expansion yields nothing.
func Single(steps recipe.Definition) (Trial, error) {
	steps = steps.Clone()
	for i := range steps {
		if steps[i].Params == nil {
			steps[i].Params = recipe.Params{}
		}
	}
	sig, err := Signature(steps)
	if err != nil {
		return Trial{}, err
	}
	return Trial{Index: 1, Steps: steps, Signature: sig}, nil
}

// Signature fingerprints a resolved step list.
func Signature(steps recipe.Definition) (string, error) {
	return fingerprint.Of(steps)
}

// Validate checks that parameter names are unique within a phase and every
// candidate is a scalar or a non-empty list of scalars.
func Validate(space SearchSpace) error {
	for phaseName, params := range space {
		seen := make(map[string]struct{}, len(params))
		for _, param := range params {
			if param.Name == "" {
				return faults.Configf("search space %s: parameter name is empty", phaseName)
			}
			if _, dup := seen[param.Name]; dup {
				return faults.Configf("search space %s.%s listed twice", phaseName, param.Name)
			}
			seen[param.Name] = struct{}{}
			if _, err := candidates(param.Values); err != nil {
				return faults.Configf("search space %s.%s: %v", phaseName, param.Name, err)
			}
		}
	}
	return nil
}

// candidates normalizes a search-space value to its list of candidates.
func candidates(value any) ([]any, error) {
	if recipe.IsScalar(value) {
		return []any{value}, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected scalar or list of scalars, got %T", value)
	}
	if rv.Len() == 0 {
		return nil, fmt.Errorf("candidate list is empty")
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		item := rv.Index(i).Interface()
		if !recipe.IsScalar(item) {
			return nil, fmt.Errorf("candidate %d: expected scalar, got %T", i, item)
		}
		out[i] = item
	}
	return out, nil
}

// product expands one phase's parameter space in profile order with the last
// parameter varying fastest. Callers validate the space first.
func product(space PhaseSpace) []recipe.Params {
	lists := make([][]any, len(space))
	total := 1
	for i, param := range space {
		lists[i], _ = candidates(param.Values)
		total *= len(lists[i])
	}
	out := make([]recipe.Params, total)
	for pos := range total {
		combo := make(recipe.Params, len(space))
		rem := pos
		for i := len(space) - 1; i >= 0; i-- {
			n := len(lists[i])
			combo[space[i].Name] = lists[i][rem%n]
			rem /= n
		}
		out[pos] = combo
	}
	return out
}

// Varying returns the resolved parameters of the steps whose phase is in the
// search space, keyed by phase.
func Varying(steps recipe.Definition, space SearchSpace) map[string]recipe.Params {
	out := make(map[string]recipe.Params)
	for _, step := range steps {
		if _, ok := space[step.Phase]; ok {
			out[step.Phase] = step.Params.Clone()
		}
	}
	return out
}

// UnusedPhases lists search-space phases that never occur in base, sorted.
func UnusedPhases(base recipe.Definition, space SearchSpace) []string {
	used := make(map[string]struct{}, len(base))
	for _, step := range base {
		used[step.Phase] = struct{}{}
	}
	var out []string
	for name := range space {
		if _, ok := used[name]; !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
