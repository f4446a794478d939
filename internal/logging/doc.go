// Package logging assembles structured slog loggers and formatting helpers used
// across Sigilum.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so engine code can tag log lines with run IDs,
// trial indexes, and phase names. Each run additionally tees its output into a
// run-local log file through TeeLogger. A no-op logger is provided for tests and
// wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
