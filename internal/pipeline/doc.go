// Package pipeline executes an ordered list of phase invocations over an input
// image, consulting and populating the stage cache at every step, and returns
// the final image with a per-step trace.
//
// A phase failure aborts the pipeline. There is no partial recovery inside a
// pipeline; isolation happens one level up, per trial.
package pipeline
