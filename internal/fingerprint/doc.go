// Package fingerprint provides the deterministic digests every other layer keys
// on: Of hashes a canonical JSON rendering of a parameter structure, and
// ContentHash hashes the raw pixels of a grayscale image.
//
// Canonical form means map keys sorted lexicographically and no insignificant
// whitespace, so two structurally equal values digest identically no matter how
// they were built. Sequence order is significant.
package fingerprint
