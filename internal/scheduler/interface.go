package scheduler

import (
	"context"

	"github.com/specialistvlad/biolockgo/internal/monitor"
)

// Runner launches OS commands. *procrun.Runner implements it.
type Runner interface {
	// Run blocks until the command exits.
	Run(ctx context.Context, label string, args ...string) error
	// Start runs the command in the background.
	Start(ctx context.Context, label string, args ...string)
}

// Waiter blocks until a script batch has finished. *monitor.Monitor
// implements it.
type Waiter interface {
	Wait(ctx context.Context, b monitor.Batch) error
}

// StageSettings are the per-stage values from the pipeline configuration.
type StageSettings struct {
	Timeout   int
	BatchSize int
	Props     map[string]string
}
