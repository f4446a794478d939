// Package main hosts the Sigilum CLI entrypoint and command graph.
//
// The Cobra-based command tree loads the TOML configuration, resolves the
// YAML run profiles, and drives the trial engine. Results land in a run
// directory and, when enabled, in the SQLite run ledger; the report and
// history commands read them back.
//
// Keep this package lean: add new functionality in the internal packages
// first, then surface it through dedicated commands or flags here.
package main
