// Package persistence provides the data storage abstraction for workflow
// definitions, executions, steps and error logs.
package persistence

import (
	"context"

	"github.com/stepline/stepline/pkg/models"
)

// DefinitionRepository stores workflow definitions keyed by name.
type DefinitionRepository interface {
	Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
	DefinitionByName(ctx context.Context, name string) (*models.WorkflowDefinition, error)
	SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error
	DeleteDefinition(ctx context.Context, name string) error
}

// ExecutionRepository is the run ledger. CreateExecution must commit
// immediately so the execution ID is usable by the step recorder before
// any node executes; SetExecutionStatus is idempotent, last-write-wins.
// Both operate as independent units of work.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	SetExecutionStatus(ctx context.Context, executionID string, status models.ExecutionStatus) error
	ExecutionByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
	Executions(ctx context.Context) ([]*models.WorkflowExecution, error)
	ExistsByWorkflowName(ctx context.Context, workflowName string) (bool, error)
}

// StepRepository stores the append-only audit trail of node attempts. Each
// SaveStep call commits in its own unit of work, independent of the run's
// outcome.
type StepRepository interface {
	SaveStep(ctx context.Context, step *models.WorkflowExecutionStep) error

	// ExistsNonSkipped reports whether any prior attempt (successful or
	// failed, but not itself a skip) was recorded for the idempotency
	// triple.
	ExistsNonSkipped(ctx context.Context, applicationID, workflowName, nodeName string) (bool, error)

	// StepsByExecution returns an execution's steps ordered by node id
	// ascending. This is the reporting order; it intentionally differs
	// from execution order when ids are not sequential.
	StepsByExecution(ctx context.Context, executionID string) ([]*models.WorkflowExecutionStep, error)
}

// ErrorLogRepository stores run-aborting failures. Append-only.
type ErrorLogRepository interface {
	SaveErrorLog(ctx context.Context, errorLog *models.WorkflowErrorLog) error
}

type Persistence interface {
	DefinitionRepository
	ExecutionRepository
	StepRepository
	ErrorLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
