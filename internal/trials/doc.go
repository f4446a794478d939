// Package trials expands a base pipeline and a per-phase search space into the
// ordered sequence of concrete pipelines (trials) a run evaluates.
//
// For every step whose phase appears in the search space, the Cartesian
// product of that phase's candidate values is merged over the step's base
// parameters; other steps contribute their base parameters unchanged. The
// outer product runs across steps in step order with the last step varying
// fastest, and within a phase the parameter names are iterated in sorted
// order with the last name varying fastest.
//
// Enumeration is index based. A Sequence knows its length up front and can
// materialize any trial by position, so callers can stream trials without
// holding the full product in memory.
package trials
