// Package runstore keeps a SQLite ledger of runs and their trials so past
// runs can be listed and compared without walking run directories.
//
// The store implements engine.Recorder. Begin registers a run before trials
// start; RecordTrial and RecordReport fill it in as the engine progresses;
// Fail marks runs that aborted.
package runstore
