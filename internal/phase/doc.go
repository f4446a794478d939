// Package phase defines the image-transform capability the pipeline runner
// invokes and an explicit registry mapping phase identifiers to
// implementations.
//
// Phases are pure: the output depends only on the input pixels and the
// resolved parameters, and the input image is never mutated. The cache relies
// on this to memoize stage outputs.
package phase
