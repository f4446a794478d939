package phase

import (
	"fmt"
	"image"
	"regexp"
	"slices"
	"sync"

	"sigilum/internal/faults"
	"sigilum/internal/recipe"
)

// Phase is a named, parameterized, pure image transform.
type Phase interface {
	Name() string
	Apply(img *image.Gray, params recipe.Params) (*image.Gray, error)
}

// Func adapts a function into a Phase.
type Func struct {
	ID string
	Fn func(img *image.Gray, params recipe.Params) (*image.Gray, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Apply(img *image.Gray, params recipe.Params) (*image.Gray, error) {
	return f.Fn(img, params)
}

// Phase identifiers appear in cache keys and entry names.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Registry maps phase identifiers to implementations.
type Registry struct {
	mu     sync.RWMutex
	phases map[string]Phase
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{phases: make(map[string]Phase)}
}

// Register adds p under its name. Names are limited to [A-Za-z0-9_.-] and
// duplicates are rejected.
func (r *Registry) Register(p Phase) error {
	if p == nil || p.Name() == "" {
		return faults.Configf("phase must have a name")
	}
	if !identifierPattern.MatchString(p.Name()) {
		return faults.Configf("phase name %q may only contain letters, digits, '_', '.' and '-'", p.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.phases[p.Name()]; exists {
		return faults.Configf("phase %q already registered", p.Name())
	}
	r.phases[p.Name()] = p
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(phases ...Phase) *Registry {
	for _, p := range phases {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup resolves a phase by identifier.
func (r *Registry) Lookup(name string) (Phase, error) {
	r.mu.RLock()
	p, ok := r.phases[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: phase %q is not registered", faults.ErrLookup, name)
	}
	return p, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.phases[name]
	return ok
}

// Names returns registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.phases))
	for name := range r.phases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
