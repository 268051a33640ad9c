package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/biolockgo/internal/status"
	"github.com/stretchr/testify/require"
)

// DefaultPollInterval keeps the script monitor fast in tests.
const DefaultPollInterval = 20 * time.Millisecond

// AssertStageComplete checks the completion marker of the stage directory
// dirName, e.g. "02_RdpClassifier", and that no started marker is left.
func AssertStageComplete(t *testing.T, root, dirName string) {
	t.Helper()
	dir := filepath.Join(root, dirName)
	require.FileExists(t, filepath.Join(dir, status.CompleteMarker), "stage %s is not complete", dirName)
	require.NoFileExists(t, filepath.Join(dir, status.StartedMarker), "stage %s still carries its started marker", dirName)
}

// AssertPipelineMarker checks the marker file at the pipeline root.
func AssertPipelineMarker(t *testing.T, root, marker string) {
	t.Helper()
	require.FileExists(t, filepath.Join(root, marker))
}

// StageDirs lists the stage directory names under root in plan order.
func StageDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), "_") {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}
