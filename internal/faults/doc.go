// Package faults defines the error taxonomy shared by the trial engine.
//
// Errors are tagged with one of the exported sentinel markers so callers can
// classify a failure with errors.Is without parsing messages:
//
//   - ErrConfiguration: invalid pipeline, search-space or metrics profile.
//   - ErrLookup: a phase or metric identifier that is not registered.
//   - ErrComputation: a phase transform or metric failed while running.
//   - ErrStorage: cache or artifact persistence failed.
//
// Configuration and lookup errors are detected before any trial runs.
package faults
