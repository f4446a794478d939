// Package engine orchestrates a run: it validates the run profiles against the
// phase and metric registries, expands the trials, runs each trial's pipeline
// and reference scan, and aggregates the outcomes into a leaderboard and a
// verdict.
//
// A trial that fails during computation becomes a failure outcome and is left
// off the leaderboard while the remaining trials continue. Configuration and
// lookup problems are detected before the first trial and abort the run.
// FailFast turns the first trial failure into a run error instead.
//
// With Workers > 1 trials run concurrently. Outcomes are stored by trial
// index, so the report does not depend on scheduling, and the stage cache
// guarantees a shared stage is computed at most once at a time.
package engine
