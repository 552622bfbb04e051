package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// Recorder writes the audit trail. Recording is best-effort: a failed
// write is logged and swallowed so the run's outcome never depends on the
// trail, and a recorded row is never rolled back by what happens to the
// run afterwards.
type Recorder struct {
	steps     persistence.StepRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewRecorder(steps persistence.StepRepository, publisher eventbus.EventPublisher, logger *slog.Logger) *Recorder {
	return &Recorder{steps: steps, publisher: publisher, logger: logger}
}

// Record persists one step row and announces it on the event bus. Both
// failures are logged, neither is returned.
func (r *Recorder) Record(ctx context.Context, workflowName string, step *models.WorkflowExecutionStep) {
	err := r.steps.SaveStep(ctx, step)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to record execution step",
			"node", step.NodeName,
			"execution_id", step.ExecutionID,
			"error", err,
		)

		return
	}

	if r.publisher == nil {
		return
	}

	event := events.StepRecorded{
		BaseEvent: events.BaseEvent{
			ID:           step.ID,
			Type:         events.StepRecordedEvent,
			Timestamp:    time.Now().UTC(),
			WorkflowName: workflowName,
			ExecutionID:  step.ExecutionID,
		},
		NodeName:     step.NodeName,
		NodeID:       step.NodeID,
		StatusCode:   step.StatusCode,
		Skipped:      step.Skipped,
		AttemptCount: step.AttemptCount,
	}

	err = r.publisher.Publish(ctx, step.ExecutionID, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to publish step event",
			"node", step.NodeName,
			"error", err,
		)
	}
}
