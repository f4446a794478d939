// Package runconfig loads the YAML run profiles: the base pipeline, the
// per-phase search space, and the metrics profile with thresholds.
//
// Parsing is strict about shape and eager about errors so a malformed profile
// fails before any trial runs. Registry checks (are the named phases and
// metrics known) happen in the engine, which owns the registries.
package runconfig
