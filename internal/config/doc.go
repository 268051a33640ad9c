// Package config defines the format-agnostic pipeline configuration model and
// the Loader interface that fills it.
//
// The `config.Model` is the single source of truth for the plan builder and
// the scheduler. Concrete loaders, such as the HCL one, live in separate
// packages.
package config
