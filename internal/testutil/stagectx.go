package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/notify"
	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/stretchr/testify/require"
)

// MetadataFileName is the table name used by NewStageContext.
const MetadataFileName = "metadata.tsv"

// Context returns a context carrying a logger. Output goes to w, or nowhere
// when w is nil.
func Context(w io.Writer) context.Context {
	if w == nil {
		w = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger)
}

// NewStageContext lays out a plan under a temporary root: the upstream
// stages in plan order, then the stage id itself. Every stage directory is
// created with its output, temp and script subdirectories. The notifier is
// a *notify.Recorder.
func NewStageContext(t *testing.T, id string, upstream ...string) *stage.Context {
	t.Helper()

	root := t.TempDir()
	ids := append(append([]string(nil), upstream...), id)
	descriptors := make([]stage.Descriptor, len(ids))
	for i, sid := range ids {
		d := stage.Descriptor{ID: sid, Ordinal: i, Dir: filepath.Join(root, stage.DirName(i, len(ids), sid))}
		for _, dir := range []string{d.OutputDir(), d.TempDir(), d.ScriptDir()} {
			require.NoError(t, os.MkdirAll(dir, 0o755))
		}
		descriptors[i] = d
	}

	sc := &stage.Context{
		Stage:        descriptors[len(ids)-1],
		RunID:        "run-1",
		PipelineName: "test",
		PipelineRoot: root,
		Metadata:     metadata.NewFile(filepath.Join(root, MetadataFileName)),
		Notifier:     &notify.Recorder{},
		Props:        map[string]string{},
	}
	for i := len(ids) - 2; i >= 0; i-- {
		sc.Upstream = append(sc.Upstream, descriptors[i])
	}
	return sc
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
