package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/monitor"
	"github.com/specialistvlad/biolockgo/internal/notify"
	"github.com/specialistvlad/biolockgo/internal/plan"
	"github.com/specialistvlad/biolockgo/internal/scheduler"
)

// defaultMetadataName names the table ImportMetadata writes when the
// pipeline has no metadata file of its own.
const defaultMetadataName = "metadata.tsv"

// Run executes the main application logic: it resolves the pipeline root,
// builds the plan and hands it to the scheduler.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	ctx = ctxlog.With(ctx, "run_id", a.runID)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()
	defer a.runner.Wait()

	root, err := a.pipelineRoot(ctx)
	if err != nil {
		return err
	}
	inputs, err := fsutil.CollectInputFiles(a.model.Pipeline.InputDirs)
	if err != nil {
		return fmt.Errorf("failed to collect input files: %w", err)
	}
	a.logger.Info("Pipeline root resolved.", "root", root, "inputs", len(inputs), "restart", a.config.Restart)

	p, err := plan.NewBuilder(a.registry).Build(ctx, a.planInput(root, inputs))
	if err != nil {
		return fmt.Errorf("failed to build plan: %w", err)
	}
	a.setPlan(p)
	a.logger.Info("Plan built.", "stages", p.IDs())

	sched := scheduler.New(a.schedulerOptions(root, inputs))
	if err := sched.Initialize(ctx, p); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if ord := a.config.DirectOrdinal; ord >= 0 {
		a.logger.Info("🚀 Running single stage.", "ordinal", ord)
		return sched.RunSingleStage(ctx, p, ord)
	}
	if err := sched.Execute(ctx, p); err != nil {
		return err
	}
	a.logger.Info("🏁 Execution finished.")
	return nil
}

func (a *App) planInput(root string, inputs []string) plan.Input {
	pc := a.model.Pipeline
	return plan.Input{
		Root:     root,
		StageIDs: a.model.StageIDs(),
		Flags: plan.Flags{
			DisableImplicitStages: pc.DisableImplicitStages,
			DisablePreReqStages:   pc.DisablePreReqStages,
			ReportNumReads:        pc.ReportNumReads,
			Multiplexed:           pc.Multiplexed,
			MultiLineSeqs:         pc.MultiLineSeqs,
			PairedReads:           pc.PairedReads,
		},
		Defaults:   a.planDefaults(),
		InputFiles: inputs,
		MaxDepth:   pc.MaxResolutionDepth,
	}
}

// planDefaults fills every identifier the configuration leaves empty with
// the built-in one.
func (a *App) planDefaults() plan.Defaults {
	d := plan.DefaultStages()
	cfg := a.model.Defaults
	for _, o := range []struct {
		value  string
		target *string
	}{
		{cfg.MetadataImporter, &d.MetadataImporter},
		{cfg.Demultiplexer, &d.Demultiplexer},
		{cfg.FastaConverter, &d.FastaConverter},
		{cfg.ReadCounter, &d.ReadCounter},
		{cfg.Gunzipper, &d.Gunzipper},
	} {
		if o.value != "" {
			*o.target = o.value
		}
	}
	return d
}

func (a *App) schedulerOptions(root string, inputs []string) scheduler.Options {
	pc := a.model.Pipeline

	metaPath := pc.MetadataFile
	if metaPath == "" {
		metaPath = filepath.Join(root, defaultMetadataName)
	}

	var notifier notify.Sender = notify.Discard{}
	if n := a.model.Notify; n != nil {
		notifier = &notify.SocketIO{
			URL:                n.URL,
			Namespace:          n.Namespace,
			Event:              n.Event,
			InsecureSkipVerify: n.InsecureSkipVerify,
		}
	}

	settings := make(map[string]scheduler.StageSettings, len(a.model.Stages))
	for _, s := range a.model.Stages {
		settings[s.ID] = scheduler.StageSettings{Timeout: s.Timeout, BatchSize: s.BatchSize, Props: s.Props}
	}

	interval := a.config.PollInterval
	if interval <= 0 {
		interval = monitor.DefaultInterval
	}

	direct := scheduler.NoDirect
	if a.config.DirectOrdinal >= 0 {
		direct = a.config.DirectOrdinal
	}

	return scheduler.Options{
		Store:               a.store,
		Registry:            a.registry,
		Runner:              a.runner,
		Monitor:             monitor.New(a.store, monitor.WithInterval(interval), monitor.WithObserver(a.metrics)),
		Metrics:             a.metrics,
		Notifier:            notifier,
		Metadata:            metadata.NewFile(metaPath),
		RunID:               a.runID,
		PipelineName:        pc.Name,
		Inputs:              inputs,
		Settings:            settings,
		ScriptPermissions:   pc.ScriptPermissions,
		PipelinePermissions: pc.PipelinePermissions,
		DeleteTempFiles:     pc.DeleteTempFiles,
		DirectOrdinal:       direct,
	}
}
