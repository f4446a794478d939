// Package config loads, normalizes, and validates Sigilum configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for object
// storage credentials. The Config type centralizes the knobs the CLI and the
// trial engine need: run and cache directories, profile locations, run mode,
// cache backend selection, the SQLite run ledger, and logging.
//
// The pipeline, search-space, and metrics profiles themselves are YAML
// documents handled by internal/runconfig; this package only records where
// they live.
package config
