package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/specialistvlad/biolockgo/internal/status"
)

// rootDateLayout is the date suffix of a pipeline root, e.g. 2024Mar07.
const rootDateLayout = "2006Jan02"

// ErrNoPipelineRoot is returned when a restart finds nothing to continue.
var ErrNoPipelineRoot = errors.New("no pipeline root to continue")

// newRoot creates today's pipeline root. A second fresh run on the same day
// is refused; the caller has to restart or rename the pipeline.
func newRoot(projects, name string, now time.Time) (string, error) {
	root := filepath.Join(projects, name+"_"+now.Format(rootDateLayout))
	if _, err := os.Stat(root); err == nil {
		return "", fmt.Errorf("pipeline root %s already exists: restart it or choose another pipeline name", root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create pipeline root: %w", err)
	}
	return root, nil
}

// latestRoot returns the most recent root of the named pipeline.
func latestRoot(projects, name string) (string, error) {
	entries, err := os.ReadDir(projects)
	if err != nil {
		return "", fmt.Errorf("failed to list projects: %w", err)
	}
	var (
		latest string
		when   time.Time
	)
	for _, e := range entries {
		suffix, ok := strings.CutPrefix(e.Name(), name+"_")
		if !e.IsDir() || !ok {
			continue
		}
		t, err := time.Parse(rootDateLayout, suffix)
		if err != nil {
			continue
		}
		if latest == "" || t.After(when) {
			latest, when = filepath.Join(projects, e.Name()), t
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w: %s has no %s_<date> directory", ErrNoPipelineRoot, projects, name)
	}
	return latest, nil
}

// pipelineRoot picks the root for this invocation.
func (a *App) pipelineRoot(ctx context.Context) (string, error) {
	name := a.model.Pipeline.Name
	if !a.config.Restart && a.config.DirectOrdinal < 0 {
		return newRoot(a.config.ProjectsDir, name, time.Now())
	}

	root, err := latestRoot(a.config.ProjectsDir, name)
	if err != nil {
		return "", err
	}
	if a.config.Restart {
		st, err := a.store.PipelineState(ctx, root)
		if err != nil {
			return "", err
		}
		if st == status.Complete {
			return "", fmt.Errorf("restart refused: pipeline %s already completed", root)
		}
	}
	return root, nil
}
