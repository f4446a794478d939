// Package recipe holds the pipeline vocabulary shared by the trial generator,
// the pipeline runner, and the phase registry: parameter maps, steps, and
// ordered pipeline definitions.
package recipe

import (
	"fmt"
	"maps"
	"math"
	"strings"
)

// Params maps parameter names to scalar or list-valued configuration.
type Params map[string]any

// Clone returns a shallow copy; nil becomes an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Merge returns a copy of p with override applied on top (override wins).
func (p Params) Merge(override Params) Params {
	out := p.Clone()
	maps.Copy(out, override)
	return out
}

// Int reads an integer parameter. Float values with no fractional part are
// accepted because YAML and JSON decoding may produce either.
func (p Params) Int(key string, fallback int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("param %s: %v is not an integer", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("param %s: expected integer, got %T", key, v)
	}
}

// Float reads a numeric parameter.
func (p Params) Float(key string, fallback float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("param %s: expected number, got %T", key, v)
	}
}

// Bool reads a boolean parameter.
func (p Params) Bool(key string, fallback bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param %s: expected bool, got %T", key, v)
	}
	return b, nil
}

// String reads a string parameter.
func (p Params) String(key string, fallback string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %s: expected string, got %T", key, v)
	}
	return s, nil
}

// Step is one phase invocation with its resolved parameters.
type Step struct {
	Phase  string `json:"phase" yaml:"phase"`
	Params Params `json:"params" yaml:"params"`
}

// Definition is an ordered pipeline; order is execution order.
type Definition []Step

// Clone deep-copies the step list and each step's parameter map.
func (d Definition) Clone() Definition {
	out := make(Definition, len(d))
	for i, step := range d {
		out[i] = Step{Phase: step.Phase, Params: step.Params.Clone()}
	}
	return out
}

// Phases lists the phase identifiers in execution order.
func (d Definition) Phases() []string {
	out := make([]string, len(d))
	for i, step := range d {
		out[i] = step.Phase
	}
	return out
}

// String renders a compact "A → B → C" chain for logs.
func (d Definition) String() string {
	return strings.Join(d.Phases(), " → ")
}

// IsScalar reports whether v is a value a parameter may hold directly.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
