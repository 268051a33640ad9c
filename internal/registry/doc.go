// Package registry provides the central "glue" for the stage system.
//
// The Registry maps the string identifiers used in pipeline configuration
// (e.g. "RdpClassifier") to the constructors of compiled Go stages, together
// with the tags plan construction needs: branch type, whether the system owns
// the stage as an implicit step, and whether it counts reads or processes
// sequences. Stage packages populate it at startup through the Module
// interface; duplicate registrations are programmer errors and panic.
package registry
