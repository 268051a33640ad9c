// Package status owns the marker files that record pipeline progress.
//
// Markers are empty files whose names carry the event. A stage root holds
// biolockjStarted while the stage runs and biolockjComplete once it finished;
// the pipeline root gets biolockjComplete or biolockjFailed at the end of a
// run. Generated scripts record their own progress next to themselves as
// <script>_Started, <script>_Success and <script>_Failures, the latter
// carrying one error line per failure. These names are a contract shared
// with the scripts and with later restart invocations.
//
// Two Store implementations exist: FS works on the real directories and
// Memory keeps everything in process for tests.
package status

import (
	"context"
	"errors"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/stage"
)

// Marker file names.
const (
	StartedMarker  = "biolockjStarted"
	CompleteMarker = "biolockjComplete"
	FailedMarker   = "biolockjFailed"

	ScriptStartedSuffix  = "_Started"
	ScriptSuccessSuffix  = "_Success"
	ScriptFailuresSuffix = "_Failures"
)

// ErrResetFailed is returned when a stage directory cannot be emptied.
var ErrResetFailed = errors.New("stage directory could not be reset")

// State is the lifecycle position of a stage or a pipeline.
type State int

const (
	Absent State = iota
	Started
	Complete
	// Failed only applies to whole pipelines; a failing stage aborts the run
	// and stays Started.
	Failed
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "absent"
	}
}

// ScriptState collects the markers of one generated script.
type ScriptState struct {
	Started bool
	Success bool
	Failed  bool
}

// Store reads and writes every marker the core relies on.
type Store interface {
	// EnsureStageDir creates the stage root with its output and temp dirs.
	EnsureStageDir(ctx context.Context, d stage.Descriptor) error
	StageState(ctx context.Context, d stage.Descriptor) (State, error)
	MarkStageStarted(ctx context.Context, d stage.Descriptor) error
	// MarkStageComplete writes the completion marker and drops the started one.
	MarkStageComplete(ctx context.Context, d stage.Descriptor) error
	// ResetStage wipes the stage root and recreates it empty.
	ResetStage(ctx context.Context, d stage.Descriptor) error

	PipelineState(ctx context.Context, root string) (State, error)
	MarkPipeline(ctx context.Context, root string, s State) error

	// Scripts lists the script files of a directory, markers excluded.
	Scripts(ctx context.Context, dir string) ([]string, error)
	// ScriptStates maps script names to their markers.
	ScriptStates(ctx context.Context, dir string) (map[string]ScriptState, error)
	// ScriptErrors maps script names to the lines of their failure markers.
	ScriptErrors(ctx context.Context, dir string) (map[string][]string, error)
}

// MainScript returns the name of the MAIN_ script in the stage's script
// directory, if there is one.
func MainScript(ctx context.Context, s Store, d stage.Descriptor) (string, bool, error) {
	names, err := s.Scripts(ctx, d.ScriptDir())
	if err != nil {
		return "", false, err
	}
	for _, n := range names {
		if strings.HasPrefix(n, stage.MainScriptPrefix) {
			return n, true, nil
		}
	}
	return "", false, nil
}

// markerOf splits a marker file name into the script it belongs to and the
// marker suffix.
func markerOf(name string) (script, suffix string, ok bool) {
	for _, sfx := range []string{ScriptStartedSuffix, ScriptSuccessSuffix, ScriptFailuresSuffix} {
		if strings.HasSuffix(name, sfx) && len(name) > len(sfx) {
			return strings.TrimSuffix(name, sfx), sfx, true
		}
	}
	return "", "", false
}

func (s *ScriptState) apply(suffix string) {
	switch suffix {
	case ScriptStartedSuffix:
		s.Started = true
	case ScriptSuccessSuffix:
		s.Success = true
	case ScriptFailuresSuffix:
		s.Failed = true
	}
}
