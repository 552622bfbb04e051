package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// ExecutionDetail is one ledger row joined with its audit trail. Steps are
// ordered by node id ascending, which is the reporting order, not the
// execution order.
type ExecutionDetail struct {
	*models.WorkflowExecution

	Steps []*models.WorkflowExecutionStep `json:"steps"`
}

// Execution exposes the run history.
type Execution struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewExecution(p persistence.Persistence, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: p,
		logger:      logger.With("service", "execution"),
	}
}

// List returns every execution with its steps, newest run first.
func (s *Execution) List(ctx context.Context) ([]*ExecutionDetail, error) {
	executions, err := s.persistence.Executions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow executions: %w", err)
	}

	details := make([]*ExecutionDetail, 0, len(executions))

	for _, execution := range executions {
		steps, err := s.persistence.StepsByExecution(ctx, execution.ExecutionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load steps for execution %s: %w", execution.ExecutionID, err)
		}

		details = append(details, &ExecutionDetail{WorkflowExecution: execution, Steps: steps})
	}

	return details, nil
}

// FetchByID returns one execution with its steps.
func (s *Execution) FetchByID(ctx context.Context, executionID string) (*ExecutionDetail, error) {
	execution, err := s.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	steps, err := s.persistence.StepsByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for execution %s: %w", executionID, err)
	}

	return &ExecutionDetail{WorkflowExecution: execution, Steps: steps}, nil
}
