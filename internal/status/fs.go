package status

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

const (
	dirDeleteAttempts   = 10
	entryDeleteAttempts = 5

	// DefaultRetryDelay is the pause between delete attempts.
	DefaultRetryDelay = 3 * time.Second
)

// FS is the Store that works on the real pipeline directories.
type FS struct {
	retryDelay time.Duration
	removeAll  func(path string) error
}

// Option configures an FS store.
type Option func(*FS)

// WithRetryDelay overrides the pause between delete attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *FS) { s.retryDelay = d }
}

// NewFS returns a filesystem-backed store.
func NewFS(opts ...Option) *FS {
	s := &FS{retryDelay: DefaultRetryDelay, removeAll: os.RemoveAll}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureStageDir implements Store.
func (s *FS) EnsureStageDir(_ context.Context, d stage.Descriptor) error {
	for _, dir := range []string{d.Dir, d.OutputDir(), d.TempDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// StageState implements Store.
func (s *FS) StageState(_ context.Context, d stage.Descriptor) (State, error) {
	return stateOf(d.Dir)
}

// MarkStageStarted implements Store.
func (s *FS) MarkStageStarted(_ context.Context, d stage.Descriptor) error {
	return touch(filepath.Join(d.Dir, StartedMarker))
}

// MarkStageComplete implements Store.
func (s *FS) MarkStageComplete(_ context.Context, d stage.Descriptor) error {
	if err := touch(filepath.Join(d.Dir, CompleteMarker)); err != nil {
		return err
	}
	return removeIfExists(filepath.Join(d.Dir, StartedMarker))
}

// ResetStage implements Store. The whole directory is deleted with retries;
// when that keeps failing, an already empty directory is accepted, otherwise
// each entry is deleted on its own and any survivor fails the reset.
func (s *FS) ResetStage(ctx context.Context, d stage.Descriptor) error {
	logger := ctxlog.FromContext(ctx).With("stage", d.Name())
	logger.Info("Resetting incomplete stage directory.", "dir", d.Dir)

	err := s.retry(ctx, dirDeleteAttempts, func() error { return s.removeAll(d.Dir) })
	if err != nil {
		logger.Warn("Could not delete stage directory, deleting its entries instead.", "error", err)
		if err := s.clearEntries(ctx, d.Dir); err != nil {
			return err
		}
	}
	return s.EnsureStageDir(ctx, d)
}

func (s *FS) clearEntries(ctx context.Context, dir string) error {
	logger := ctxlog.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrResetFailed, dir, err)
	}
	if len(entries) == 0 {
		logger.Debug("Stage directory is already empty.", "dir", dir)
		return nil
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if err := s.retry(ctx, entryDeleteAttempts, func() error { return s.removeAll(path) }); err != nil {
			logger.Warn("Failed to delete entry.", "path", path, "error", err)
		}
	}

	remaining, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s: %v", ErrResetFailed, dir, err)
	}
	if len(remaining) > 0 {
		return fmt.Errorf("%w: %s still holds %d entries", ErrResetFailed, dir, len(remaining))
	}
	return nil
}

func (s *FS) retry(ctx context.Context, attempts int, op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), uint64(attempts-1))
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// PipelineState implements Store.
func (s *FS) PipelineState(_ context.Context, root string) (State, error) {
	if exists(filepath.Join(root, CompleteMarker)) {
		return Complete, nil
	}
	if exists(filepath.Join(root, FailedMarker)) {
		return Failed, nil
	}
	return Absent, nil
}

// MarkPipeline implements Store.
func (s *FS) MarkPipeline(_ context.Context, root string, st State) error {
	switch st {
	case Complete:
		if err := touch(filepath.Join(root, CompleteMarker)); err != nil {
			return err
		}
		return removeIfExists(filepath.Join(root, FailedMarker))
	case Failed:
		return touch(filepath.Join(root, FailedMarker))
	default:
		return fmt.Errorf("pipeline cannot be marked %s", st)
	}
}

// Scripts implements Store.
func (s *FS) Scripts(_ context.Context, dir string) ([]string, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, ok := markerOf(e.Name()); ok {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ScriptStates implements Store.
func (s *FS) ScriptStates(_ context.Context, dir string) (map[string]ScriptState, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	states := make(map[string]ScriptState)
	for _, e := range entries {
		script, suffix, ok := markerOf(e.Name())
		if !ok {
			continue
		}
		st := states[script]
		st.apply(suffix)
		states[script] = st
	}
	return states, nil
}

// ScriptErrors implements Store.
func (s *FS) ScriptErrors(_ context.Context, dir string) (map[string][]string, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	errs := make(map[string][]string)
	for _, e := range entries {
		script, suffix, ok := markerOf(e.Name())
		if !ok || suffix != ScriptFailuresSuffix {
			continue
		}
		lines, err := readLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		errs[script] = lines
	}
	return errs, nil
}

func stateOf(dir string) (State, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return Absent, nil
		}
		return Absent, err
	}
	if exists(filepath.Join(dir, CompleteMarker)) {
		return Complete, nil
	}
	if exists(filepath.Join(dir, StartedMarker)) {
		return Started, nil
	}
	return Absent, nil
}

func readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return entries, err
}

func readLines(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var lines []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func touch(path string) error {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write marker %s: %w", path, err)
	}
	return fh.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
