package status

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newDescriptor(t *testing.T) stage.Descriptor {
	t.Helper()
	return stage.Descriptor{ID: "RdpClassifier", Ordinal: 1, Dir: filepath.Join(t.TempDir(), "1_RdpClassifier")}
}

func TestFS_StageLifecycle(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testContext()
	s := NewFS()
	d := newDescriptor(t)

	// --- Act / Assert ---
	st, err := s.StageState(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, Absent, st)

	require.NoError(t, s.EnsureStageDir(ctx, d))
	assert.DirExists(t, d.OutputDir())
	assert.DirExists(t, d.TempDir())

	require.NoError(t, s.MarkStageStarted(ctx, d))
	st, _ = s.StageState(ctx, d)
	assert.Equal(t, Started, st)

	require.NoError(t, s.MarkStageComplete(ctx, d))
	st, _ = s.StageState(ctx, d)
	assert.Equal(t, Complete, st)
	assert.NoFileExists(t, filepath.Join(d.Dir, StartedMarker), "completion drops the started marker")
}

func TestFS_ResetStageRecreatesEmptyDirectory(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testContext()
	s := NewFS(WithRetryDelay(time.Millisecond))
	d := newDescriptor(t)
	require.NoError(t, s.EnsureStageDir(ctx, d))
	require.NoError(t, s.MarkStageStarted(ctx, d))
	require.NoError(t, os.WriteFile(filepath.Join(d.OutputDir(), "partial.tsv"), []byte("x"), 0o644))

	// --- Act ---
	err := s.ResetStage(ctx, d)

	// --- Assert ---
	require.NoError(t, err)
	st, _ := s.StageState(ctx, d)
	assert.Equal(t, Absent, st)
	assert.NoFileExists(t, filepath.Join(d.OutputDir(), "partial.tsv"))
	assert.DirExists(t, d.OutputDir())
}

func TestFS_ResetStageRetriesThenFallsBackToEntries(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testContext()
	s := NewFS(WithRetryDelay(time.Millisecond))
	d := newDescriptor(t)
	require.NoError(t, s.EnsureStageDir(ctx, d))
	require.NoError(t, os.WriteFile(filepath.Join(d.Dir, "stale"), []byte("x"), 0o644))

	dirAttempts := 0
	s.removeAll = func(path string) error {
		if path == d.Dir {
			dirAttempts++
			return errors.New("device busy")
		}
		return os.RemoveAll(path)
	}

	// --- Act ---
	err := s.ResetStage(ctx, d)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 10, dirAttempts)
	entries, err := os.ReadDir(d.Dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{stage.OutputDirName, stage.TempDirName}, names)
}

func TestFS_ResetStageFailsWhenEntriesSurvive(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testContext()
	s := NewFS(WithRetryDelay(time.Millisecond))
	d := newDescriptor(t)
	require.NoError(t, s.EnsureStageDir(ctx, d))

	entryAttempts := 0
	s.removeAll = func(path string) error {
		if path != d.Dir {
			entryAttempts++
		}
		return errors.New("permission denied")
	}

	// --- Act ---
	err := s.ResetStage(ctx, d)

	// --- Assert ---
	require.ErrorIs(t, err, ErrResetFailed)
	assert.Equal(t, 2*5, entryAttempts, "each of output and temp gets five attempts")
}

func TestFS_PipelineMarkers(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	s := NewFS()
	root := t.TempDir()

	st, err := s.PipelineState(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, Absent, st)

	require.NoError(t, s.MarkPipeline(ctx, root, Failed))
	st, _ = s.PipelineState(ctx, root)
	assert.Equal(t, Failed, st)

	require.NoError(t, s.MarkPipeline(ctx, root, Complete))
	st, _ = s.PipelineState(ctx, root)
	assert.Equal(t, Complete, st)
	assert.NoFileExists(t, filepath.Join(root, FailedMarker))

	require.Error(t, s.MarkPipeline(ctx, root, Started))
}

func TestFS_ScriptMarkers(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testContext()
	s := NewFS()
	d := newDescriptor(t)
	dir := d.ScriptDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{
		"MAIN_1_RdpClassifier.sh",
		"1.0_RdpClassifier.sh",
		"1.1_RdpClassifier.sh",
		"1.0_RdpClassifier.sh_Started",
		"1.0_RdpClassifier.sh_Success",
		"1.1_RdpClassifier.sh_Started",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.1_RdpClassifier.sh_Failures"),
		[]byte("line 3: java: command not found\n\n"), 0o644))

	// --- Act ---
	names, err := s.Scripts(ctx, dir)
	require.NoError(t, err)
	states, err := s.ScriptStates(ctx, dir)
	require.NoError(t, err)
	errs, err := s.ScriptErrors(ctx, dir)
	require.NoError(t, err)
	main, ok, err := MainScript(ctx, s, d)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, []string{"1.0_RdpClassifier.sh", "1.1_RdpClassifier.sh", "MAIN_1_RdpClassifier.sh"}, names)
	assert.Equal(t, ScriptState{Started: true, Success: true}, states["1.0_RdpClassifier.sh"])
	assert.Equal(t, ScriptState{Started: true, Failed: true}, states["1.1_RdpClassifier.sh"])
	assert.Equal(t, map[string][]string{"1.1_RdpClassifier.sh": {"line 3: java: command not found"}}, errs)
	assert.True(t, ok)
	assert.Equal(t, "MAIN_1_RdpClassifier.sh", main)
}
