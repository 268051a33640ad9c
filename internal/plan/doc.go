// Package plan turns the configured list of stage identifiers into the
// ordered, duplicate-free Plan the scheduler executes.
//
// Construction runs in passes. Implicit stages owned by the system are put in
// front; every configured stage then pulls in its prerequisite closure before
// itself and its postrequisite closure after itself; newly discovered stages
// are gathered in a branch buffer that is flushed whenever a second
// classifier stage shows up; finally a read-count validator and a gunzip step
// are inserted when the input calls for them. Each Build gets its own
// construction state, so a Builder can be reused and two builds over the
// same input produce the same plan.
//
// Requisite resolution tracks the identifiers on the current resolution path
// and fails with ErrCycle when one reappears. A max-depth counter, reset per
// configured stage, stays as a second guard.
package plan
