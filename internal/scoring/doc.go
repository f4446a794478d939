// Package scoring compares a trial's output image against the reference
// gallery. Each reference is scored by every configured metric, the metric
// scores are reduced to one number by the profile's combiner, and the running
// best is tracked with optional early stopping.
//
// References are visited in lexicographic order of their identifiers, so the
// scan and its early-stop point are reproducible. A later reference replaces
// the best only when strictly greater; ties keep the earlier one.
package scoring
