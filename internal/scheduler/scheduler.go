package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/metrics"
	"github.com/specialistvlad/biolockgo/internal/monitor"
	"github.com/specialistvlad/biolockgo/internal/notify"
	"github.com/specialistvlad/biolockgo/internal/plan"
	"github.com/specialistvlad/biolockgo/internal/procrun"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/specialistvlad/biolockgo/internal/status"
)

// NoDirect disables direct mode.
const NoDirect = -1

// Options configures a Scheduler. Store, Registry, Runner and Monitor are
// required.
type Options struct {
	Store    status.Store
	Registry *registry.Registry
	Runner   Runner
	Monitor  Waiter
	Metrics  *metrics.Recorder
	Notifier notify.Sender
	// Metadata may be nil when the pipeline has no metadata file.
	Metadata metadata.Table

	RunID        string
	PipelineName string
	Inputs       []string
	Settings     map[string]StageSettings

	// ScriptPermissions is applied with chmod -R to a script directory
	// before its MAIN_ script is launched.
	ScriptPermissions string
	// PipelinePermissions, when set, is applied in the background to every
	// finished stage directory.
	PipelinePermissions string
	DeleteTempFiles     bool
	// DirectOrdinal is the stage run by a direct invocation, or NoDirect.
	DirectOrdinal int

	Now func() time.Time
}

// StageError is returned when a stage fails.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Scheduler is the state of one pipeline run. It is not safe for concurrent
// use; stages run strictly one at a time.
type Scheduler struct {
	opts    Options
	stages  []stage.Stage
	entries []*registry.Entry

	reportable  *metadata.Reportable
	reportReady bool
	summary     summary
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Settings == nil {
		opts.Settings = map[string]StageSettings{}
	}
	return &Scheduler{opts: opts}
}

func (s *Scheduler) direct() bool {
	return s.opts.DirectOrdinal != NoDirect
}

// instantiate creates one stage value per plan entry. It runs once; later
// calls reuse the same instances so state kept by a stage between its hooks
// survives.
func (s *Scheduler) instantiate(p *plan.Plan) error {
	if len(s.stages) == p.Len() {
		return nil
	}
	s.stages = make([]stage.Stage, p.Len())
	s.entries = make([]*registry.Entry, p.Len())
	for i, d := range p.Stages {
		entry, err := s.opts.Registry.Lookup(d.ID)
		if err != nil {
			return err
		}
		s.entries[i] = entry
		s.stages[i] = entry.New()
	}
	s.summary = summary{runID: s.opts.RunID, pipeline: s.opts.PipelineName, started: s.opts.Now()}
	return nil
}

// contextFor builds the stage context of the stage at ordinal i.
func (s *Scheduler) contextFor(p *plan.Plan, i int) *stage.Context {
	d := p.Stages[i]
	set := s.opts.Settings[d.ID]
	sc := &stage.Context{
		Stage:          d,
		RunID:          s.opts.RunID,
		PipelineName:   s.opts.PipelineName,
		PipelineRoot:   p.Root,
		PipelineInputs: s.opts.Inputs,
		Timeout:        set.Timeout,
		BatchSize:      set.BatchSize,
		Props:          set.Props,
		Metadata:       s.opts.Metadata,
		Reportable:     s.reportable,
		Notifier:       s.opts.Notifier,
	}
	for j := i - 1; j >= 0; j-- {
		sc.Upstream = append(sc.Upstream, p.Stages[j])
	}
	return sc
}

// Initialize prepares every stage directory of the plan. It is safe to call
// on a root left behind by an earlier run.
func (s *Scheduler) Initialize(ctx context.Context, p *plan.Plan) error {
	logger := ctxlog.FromContext(ctx)
	if err := s.instantiate(p); err != nil {
		return err
	}
	logger.Info("Initializing pipeline stages.", "root", p.Root, "stages", p.Len())

	for i, d := range p.Stages {
		sctx := ctxlog.With(ctx, "stage", d.Name())
		if err := s.opts.Store.EnsureStageDir(sctx, d); err != nil {
			return fmt.Errorf("failed to create directory of %s: %w", d, err)
		}
		state, err := s.opts.Store.StageState(sctx, d)
		if err != nil {
			return err
		}

		interrupted := state == status.Started && !s.direct()
		notification := s.entries[i].Notification && state != status.Absent
		if interrupted || notification {
			ctxlog.FromContext(sctx).Warn("Resetting stage left behind by an earlier run.", "state", state.String())
			if err := s.opts.Store.ResetStage(sctx, d); err != nil {
				return fmt.Errorf("failed to reset %s: %w", d, err)
			}
			state = status.Absent
		}

		sc := s.contextFor(p, i)
		switch {
		case state == status.Complete:
			if err := s.stages[i].CleanUp(sctx, sc); err != nil {
				return fmt.Errorf("cleanup of completed %s failed: %w", d, err)
			}
			if err := s.publishFrom(sctx, d); err != nil {
				return err
			}
			if err := s.refreshReportable(sctx, i); err != nil {
				return err
			}
		case !s.direct() || i == s.opts.DirectOrdinal:
			if err := s.stages[i].CheckDependencies(sctx, sc); err != nil {
				return fmt.Errorf("dependency check of %s failed: %w", d, err)
			}
		}
	}
	return nil
}

// Execute runs every stage that is not complete yet.
func (s *Scheduler) Execute(ctx context.Context, p *plan.Plan) error {
	logger := ctxlog.FromContext(ctx)
	if err := s.instantiate(p); err != nil {
		return err
	}
	logger.Info("🚀 Executing pipeline.", "run_id", s.opts.RunID, "root", p.Root)

	for i, d := range p.Stages {
		state, err := s.opts.Store.StageState(ctx, d)
		if err != nil {
			return s.fail(ctx, p, i, err)
		}
		if state == status.Complete {
			logger.Debug("Skipping completed stage.", "stage", d.Name())
			s.summary.skipped(d)
			continue
		}
		if err := s.runStage(ctxlog.With(ctx, "stage", d.Name()), p, i); err != nil {
			return s.fail(ctx, p, i, err)
		}
	}

	if err := s.opts.Store.MarkPipeline(ctx, p.Root, status.Complete); err != nil {
		return err
	}
	s.opts.Metrics.PipelineFinished("complete")
	logger.Info("✅ Pipeline complete.", "summary", s.Summary(status.Complete))

	if s.opts.DeleteTempFiles {
		s.deleteTempDirs(ctx, p)
	}
	return nil
}

func (s *Scheduler) runStage(ctx context.Context, p *plan.Plan, i int) error {
	logger := ctxlog.FromContext(ctx)
	d := p.Stages[i]
	started := s.opts.Now()
	logger.Info("Starting stage.")

	if err := s.opts.Store.MarkStageStarted(ctx, d); err != nil {
		return err
	}
	if i > 0 {
		if err := s.publishFrom(ctx, p.Stages[i-1]); err != nil {
			return err
		}
	}
	if err := s.refreshReportable(ctx, i); err != nil {
		return err
	}

	sc := s.contextFor(p, i)
	if err := s.stages[i].ExecuteTask(ctx, sc); err != nil {
		return err
	}
	if err := s.runScripts(ctx, sc); err != nil {
		return err
	}
	if err := s.publishFrom(ctx, d); err != nil {
		return err
	}
	if err := s.stages[i].CleanUp(ctx, sc); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	if err := s.opts.Store.MarkStageComplete(ctx, d); err != nil {
		return err
	}

	elapsed := s.opts.Now().Sub(started)
	s.summary.completed(d, elapsed)
	s.opts.Metrics.StageCompleted(d.ID, elapsed)
	logger.Info("Stage complete.", "runtime", formatRuntime(elapsed))

	if perm := s.opts.PipelinePermissions; perm != "" {
		s.opts.Runner.Start(ctx, "permissions", "chmod", "-R", perm, d.Dir)
	}
	return nil
}

// runScripts launches the MAIN_ script the stage left behind, if any, and
// waits until its batch finishes.
func (s *Scheduler) runScripts(ctx context.Context, sc *stage.Context) error {
	logger := ctxlog.FromContext(ctx)
	name, ok, err := status.MainScript(ctx, s.opts.Store, sc.Stage)
	if err != nil || !ok {
		return err
	}
	main := filepath.Join(sc.ScriptDir(), name)

	if perm := s.opts.ScriptPermissions; perm != "" {
		if err := s.opts.Runner.Run(ctx, "chmod", "chmod", "-R", perm, sc.ScriptDir()); err != nil {
			return fmt.Errorf("failed to set script permissions: %w", err)
		}
	}

	interpreter := "bash"
	if filepath.Ext(name) == ".R" {
		interpreter = "Rscript"
	}
	logger.Info("Launching script batch.", "script", main)
	err = s.opts.Runner.Run(ctx, name, interpreter, main)
	var exitErr *procrun.ExitError
	switch {
	case errors.As(err, &exitErr):
		// Failure markers carry the detail; the monitor reports them.
		logger.Warn("Main script exited with an error.", "code", exitErr.Code)
	case err != nil:
		return fmt.Errorf("failed to launch %s: %w", name, err)
	}

	return s.opts.Monitor.Wait(ctx, monitor.Batch{MainScript: main, TimeoutMinutes: sc.TimeoutMinutes()})
}

// publishFrom makes the metadata table written into d's output directory the
// current version, when d wrote one.
func (s *Scheduler) publishFrom(ctx context.Context, d stage.Descriptor) error {
	if s.opts.Metadata == nil {
		return nil
	}
	path := filepath.Join(d.OutputDir(), s.opts.Metadata.FileName())
	if !fsutil.Exists(path) || path == s.opts.Metadata.Path() {
		return nil
	}
	if err := s.opts.Metadata.Publish(path); err != nil {
		return fmt.Errorf("failed to publish metadata from %s: %w", d, err)
	}
	ctxlog.FromContext(ctx).Info("Metadata table updated.", "path", path)
	return nil
}

// refreshReportable classifies the metadata columns right before the first
// R stage of the plan.
func (s *Scheduler) refreshReportable(ctx context.Context, i int) error {
	if s.reportReady || s.entries[i].Branch != stage.BranchR {
		return nil
	}
	s.reportReady = true
	if s.opts.Metadata == nil {
		s.reportable = &metadata.Reportable{}
		return nil
	}
	snap, err := s.opts.Metadata.Read()
	if err != nil {
		return fmt.Errorf("failed to read metadata for reportable fields: %w", err)
	}
	s.reportable = metadata.Classify(snap)
	ctxlog.FromContext(ctx).Debug("Reportable metadata fields classified.",
		"numeric", s.reportable.Numeric, "categorical", s.reportable.Categorical)
	return nil
}

// fail records the failure of stage i, notifies and returns the wrapped error.
func (s *Scheduler) fail(ctx context.Context, p *plan.Plan, i int, err error) error {
	logger := ctxlog.FromContext(ctx)
	d := p.Stages[i]
	s.summary.failed(d, err)
	s.opts.Metrics.StageFailed(d.ID)
	s.opts.Metrics.PipelineFinished("failed")
	sum := s.Summary(status.Failed)
	logger.Error("❌ Pipeline failed.", "stage", d.Name(), "error", err, "summary", sum)

	if mErr := s.opts.Store.MarkPipeline(ctx, p.Root, status.Failed); mErr != nil {
		logger.Error("Failed to mark pipeline failed.", "error", mErr)
	}
	if nErr := s.notifyFailure(ctx, p, i, err, sum); nErr != nil {
		logger.Error("Failure notification failed.", "error", nErr)
	}
	return &StageError{Stage: d.Name(), Err: err}
}

// notifyFailure runs the notification stage with the failure on its context.
// Without a notification stage the message goes straight to the notifier.
func (s *Scheduler) notifyFailure(ctx context.Context, p *plan.Plan, failed int, cause error, sum string) error {
	for i, entry := range s.entries {
		if !entry.Notification {
			continue
		}
		if i == failed {
			return errors.New("the notification stage itself failed")
		}
		state, err := s.opts.Store.StageState(ctx, p.Stages[i])
		if err != nil {
			return err
		}
		if state == status.Started {
			return fmt.Errorf("notification stage %s is incomplete", p.Stages[i])
		}
		sc := s.contextFor(p, i)
		sc.Failure = cause
		sc.FailedStage = p.Stages[failed].Name()
		sc.Summary = sum
		return s.stages[i].ExecuteTask(ctxlog.With(ctx, "stage", p.Stages[i].Name()), sc)
	}
	return s.opts.Notifier.Send(ctx, notify.Message{
		RunID:    s.opts.RunID,
		Pipeline: s.opts.PipelineName,
		Status:   status.Failed.String(),
		Stage:    p.Stages[failed].Name(),
		Error:    cause.Error(),
		Summary:  sum,
	})
}

// RunSingleStage runs one stage of the plan outside the main loop. Its
// scripts, if any, are left for the caller that distributed the stage.
func (s *Scheduler) RunSingleStage(ctx context.Context, p *plan.Plan, ordinal int) error {
	d, err := p.Stage(ordinal)
	if err != nil {
		return err
	}
	if err := s.instantiate(p); err != nil {
		return err
	}
	ctx = ctxlog.With(ctx, "stage", d.Name())
	ctxlog.FromContext(ctx).Info("Running stage directly.")

	sc := s.contextFor(p, ordinal)
	if err := s.stages[ordinal].ExecuteTask(ctx, sc); err != nil {
		return &StageError{Stage: d.Name(), Err: err}
	}
	if err := s.publishFrom(ctx, d); err != nil {
		return &StageError{Stage: d.Name(), Err: err}
	}
	if err := s.stages[ordinal].CleanUp(ctx, sc); err != nil {
		return &StageError{Stage: d.Name(), Err: err}
	}
	return nil
}

func (s *Scheduler) deleteTempDirs(ctx context.Context, p *plan.Plan) {
	logger := ctxlog.FromContext(ctx)
	for _, d := range p.Stages {
		if err := os.RemoveAll(d.TempDir()); err != nil {
			logger.Warn("Failed to delete temp directory.", "path", d.TempDir(), "error", err)
		}
	}
	logger.Info("Temp directories deleted.")
}

// Summary renders the run summary for the given pipeline outcome.
func (s *Scheduler) Summary(outcome status.State) string {
	return s.summary.render(outcome, s.opts.Now())
}
