// Package rundir writes and reads the on-disk record of a run:
//
//	<runs>/<YYYYMMDD_HHMMSS>__<cheque stem>/
//	  run.json
//	  input/<cheque>, input/firmas/<reference>...
//	  configs/<profile files>
//	  trials/trial_NNNN/{summary.json, phases_chain.json, stages/final.png}
//	  aggregate/{leaderboard.json, timings.json, failures.json, trials_summary.csv, trials_summary.json}
//	  logs/run.log
//
// Writer implements engine.Recorder so the engine can stream trial artifacts
// as trials finish. The read side backs the report command.
package rundir
