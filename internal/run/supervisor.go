package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/events"
	"github.com/resumind/resumind/internal/workflow"
)

// Runner is the unit of work a runtime supervises. workflow.Executor is
// the production implementation.
type Runner interface {
	Run(ctx context.Context, emit workflow.EmitFunc) error
}

// cleanupTimeout bounds the stop-marker write that runs after the run's
// own context is already cancelled.
const cleanupTimeout = 5 * time.Second

// supervise drives one workflow run to its terminal state: completed,
// stopped (stop marker included), or error. Each outcome is broadcast
// exactly once; the workflow itself never reaches past this boundary.
func (r *Registry) supervise(ctx context.Context, rt *runtime, runner Runner) {
	logger := r.logger.WithConversation(rt.runID)

	err := runner.Run(ctx, r.emitFunc(rt.runID))
	switch {
	case err == nil:
		r.terminate(rt.runID, StatusCompleted, "", events.NewCompleteEvent())
		logger.Info("analysis completed")
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		r.ensureStopMarker(rt.runID)
		r.terminate(rt.runID, StatusStopped, "", events.NewStoppedEvent())
		logger.Info("analysis stopped")
	default:
		msg := userMessage(err)
		r.terminate(rt.runID, StatusError, msg, events.NewErrorEvent(msg))
		logger.Error("analysis failed", "error", err)
	}
}

// emitFunc adapts the registry into the executor's event sink. A step
// result is persisted before it is broadcast, so a step is never
// announced as finished without being durable.
func (r *Registry) emitFunc(runID int64) workflow.EmitFunc {
	return func(ctx context.Context, ev events.Event) error {
		if end, ok := ev.(events.StepEndEvent); ok {
			if err := r.store.AppendMessage(ctx, runID, core.RoleAssistant, end.Content, end.Step); err != nil {
				return fmt.Errorf("persisting step %d result: %w", end.Step, err)
			}
		}
		r.publish(runID, ev)
		return nil
	}
}

// ensureStopMarker persists the stop marker under a fresh context; the
// run's own context is already cancelled when the cleanup path runs.
func (r *Registry) ensureStopMarker(runID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	wrote, err := r.store.MarkStoppedOnce(ctx, runID)
	if err != nil {
		r.logger.Error("persisting stop marker", "conversation_id", runID, "error", err)
		return
	}
	if wrote {
		r.logger.Debug("stop marker persisted", "conversation_id", runID)
	}
}

// userMessage extracts the human-readable part of a run failure.
func userMessage(err error) string {
	var derr *core.DomainError
	if errors.As(err, &derr) {
		return derr.Message
	}
	return err.Error()
}
