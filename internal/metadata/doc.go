// Package metadata tracks the pipeline's shared sample metadata table.
//
// The table is a single tab-separated file whose first column holds sample
// identifiers. Only one stage writes a new version at a time, by dropping a
// file with the same base name into its own output directory; the scheduler
// republishes that file as the current version before and after each stage.
// No locking is done beyond guarding the in-process path pointer, because
// stages never run concurrently.
package metadata
