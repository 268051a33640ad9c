package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	invalidHCL := `
		pipeline {
			name = "gut"
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(invalidHCL), 0600), "failed to set up test file")
	args := []string{"-projects", filepath.Join(tempDir, "projects"), filePath}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")
	var exitErr *cli.ExitError
	require.True(t, errors.As(runErr, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, runErr.Error(), "application startup panicked")
	require.Contains(t, runErr.Error(), "failed to parse")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_PipelineFailureIsNotAUsageError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	cfg := filepath.Join(dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(cfg, []byte(`
pipeline {
  name       = "gut"
  input_dirs = ["`+filepath.Join(dir, "missing")+`"]
}
stage "JsonReport" {}
`), 0600))
	args := []string{"-projects", filepath.Join(dir, "projects"), "-log-format", "text", cfg}

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, args)

	// --- Assert ---
	require.ErrorContains(t, err, "failed to collect input files")
	var exitErr *cli.ExitError
	require.False(t, errors.As(err, &exitErr))
}
