// Package monitor waits for a generated script batch to finish.
//
// A batch is the MAIN_ script of a stage plus the worker scripts it
// launches. The monitor never talks to the processes; it only counts the
// marker files the scripts leave next to themselves and decides from those
// whether the batch is done, still running or failed. Polls happen on a
// ticker obtained from a Clock so tests can drive time by hand.
//
// The per-stage timeout only stops the waiting. Processes that were already
// launched keep running and must be cleaned up by whoever owns them.
package monitor
