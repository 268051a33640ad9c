// Package email provides the notification stage. It runs last in a
// successful pipeline and is invoked again by the scheduler when any other
// stage fails, delivering the outcome through the configured notifier.
package email

import (
	"context"
	"errors"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/notify"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/specialistvlad/biolockgo/internal/status"
)

const ID = "Email"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the stage.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Entry{
		ID:           ID,
		Notification: true,
		New:          func() stage.Stage { return &Notifier{} },
	})
}

// Notifier sends one message per invocation.
type Notifier struct {
	stage.Base
}

func (n *Notifier) CheckDependencies(_ context.Context, sc *stage.Context) error {
	if sc.Notifier == nil {
		return errors.New("no notification sink configured")
	}
	return nil
}

func (n *Notifier) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	msg := notify.Message{
		RunID:    sc.RunID,
		Pipeline: sc.PipelineName,
		Status:   status.Complete.String(),
		Summary:  sc.Summary,
	}
	if sc.Failure != nil {
		msg.Status = status.Failed.String()
		msg.Stage = sc.FailedStage
		msg.Error = sc.Failure.Error()
	}
	if err := sc.Notifier.Send(ctx, msg); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Notification sent.", "status", msg.Status)
	return nil
}
