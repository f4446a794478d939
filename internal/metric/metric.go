// Package metric defines pixel-similarity metrics and their registry. Every
// metric returns a score in [0, 1] where 1 means identical.
package metric

import (
	"fmt"
	"image"
	"slices"
	"sync"

	"sigilum/internal/faults"
	"sigilum/internal/recipe"
)

// Metric compares two same-sized grayscale images.
type Metric interface {
	Name() string
	Score(a, b *image.Gray, params recipe.Params) (float64, error)
}

// Func adapts a function into a Metric.
type Func struct {
	ID string
	Fn func(a, b *image.Gray, params recipe.Params) (float64, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Score(a, b *image.Gray, params recipe.Params) (float64, error) {
	return f.Fn(a, b, params)
}

// Registry maps metric names to implementations.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

func (r *Registry) Register(m Metric) error {
	if m == nil || m.Name() == "" {
		return faults.Configf("metric must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[m.Name()]; exists {
		return faults.Configf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	return nil
}

func (r *Registry) MustRegister(metrics ...Metric) *Registry {
	for _, m := range metrics {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Lookup(name string) (Metric, error) {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: metric %q is not registered", faults.ErrLookup, name)
	}
	return m, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
