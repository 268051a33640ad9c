// Package stage defines the contract between the pipeline core and the
// individual processing steps it runs.
//
// A Stage never sees the plan or the scheduler. It is handed a Context that
// names its own directories, the files it should read, the shared metadata
// table and its configured properties, and it reports problems by returning
// errors from one of its three hooks.
package stage
