// Package hcl provides the concrete HCL implementation of config.Loader. It
// is responsible for file discovery, HCL decoding and the translation of
// the decoded blocks into the format-agnostic config.Model.
//
// Expressions are evaluated with a single variable, env, holding the
// process environment, so a file may say input_dirs = [env.DATA_DIR].
package hcl
