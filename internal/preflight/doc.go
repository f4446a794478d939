// Package preflight provides readiness checks for the filesystem paths,
// profile files and cache backend that a run depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before creating a run directory. If any
//     check fails the run is refused rather than failing halfway through.
//   - The "sigilum config check" command prints every result.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
