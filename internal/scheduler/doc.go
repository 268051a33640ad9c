// Package scheduler drives a built plan stage by stage.
//
// # How It Works
//
// Initialize runs once per invocation, fresh or restarted. It walks the plan
// and brings every stage directory into a known state: interrupted stages
// are wiped, completed stages get their cleanup hook and republish the
// metadata table they produced, every other stage checks its dependencies.
//
// Execute then runs the remaining stages strictly one after another:
//
//  1. Mark the stage started.
//  2. Republish the metadata table from the previous stage's output.
//  3. Run the stage's work hook.
//  4. If the hook left a MAIN_ script, launch it and wait on the monitor.
//  5. Republish the metadata table from the stage's own output.
//  6. Run the cleanup hook and mark the stage complete.
//
// Sequential execution is what keeps the shared metadata table consistent;
// nothing else guards it.
//
// # Failure
//
// The first error aborts the run. The scheduler logs the summary, marks the
// pipeline failed, gives the notification stage (or the configured notifier)
// one attempt to report it and returns the original error as a *StageError.
package scheduler
