// Package stagecache memoizes pipeline stage outputs by content address.
//
// A key combines the phase identifier, the fingerprint of its resolved
// parameters, and a prefix of the content hash of the stage's input pixels.
// Entries are never logically invalidated: the value under a key is a pure
// function of the key's inputs, so overwriting an entry with a recomputed
// result is harmless.
//
// # Backends
//
// DirBackend stores PNG files under a local directory with atomic temp+rename
// writes. MinioBackend stores the same bytes in an S3-compatible bucket.
//
// # Size Management
//
// Growth is unbounded by default. When cache.max_mib is set, DirBackend.Prune
// removes the least recently used entries until the budget is met. Pruning
// holds a file lock in the cache directory so concurrent processes cannot
// prune the same tree at once. Use `sigilum cache stats` to inspect usage.
package stagecache
