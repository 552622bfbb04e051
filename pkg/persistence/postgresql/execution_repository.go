package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// ExecutionRepository is the run ledger. Each statement autocommits, so a
// created execution row is visible to step writes before the run's first
// node executes and survives whatever happens to the run afterwards.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts the execution row, generating the ID and timestamp when
// absent.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ExecutionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ExecutionID = id.String()
	}

	if execution.ExecutedAt.IsZero() {
		execution.ExecutedAt = time.Now().UTC()
	}

	if execution.Status == "" {
		execution.Status = models.ExecutionStatusInProgress
	}

	query := `
		INSERT INTO workflow_executions (execution_id, workflow_name, executed_at, status, version)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ExecutionID,
		execution.WorkflowName,
		execution.ExecutedAt,
		execution.Status,
		execution.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow execution: %w", err)
	}

	return nil
}

// SetStatus updates the execution status. Idempotent, last-write-wins; the
// version counter increments with every write.
func (r *ExecutionRepository) SetStatus(ctx context.Context, executionID string, status models.ExecutionStatus) error {
	query := `
		UPDATE workflow_executions
		SET status = $2, version = version + 1
		WHERE execution_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, executionID, status)
	if err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}

	return nil
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	query := `
		SELECT
			execution_id
		  , workflow_name
		  , executed_at
		  , status
		  , version
		FROM workflow_executions
		WHERE execution_id = $1
	`

	var execution models.WorkflowExecution

	err := r.db.QueryRowContext(ctx, query, executionID).Scan(
		&execution.ExecutionID,
		&execution.WorkflowName,
		&execution.ExecutedAt,
		&execution.Status,
		&execution.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow execution: %w", err)
	}

	return &execution, nil
}

// GetAll returns all executions, newest first.
func (r *ExecutionRepository) GetAll(ctx context.Context) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT
			execution_id
		  , workflow_name
		  , executed_at
		  , status
		  , version
		FROM workflow_executions
		ORDER BY executed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		var execution models.WorkflowExecution

		err := rows.Scan(
			&execution.ExecutionID,
			&execution.WorkflowName,
			&execution.ExecutedAt,
			&execution.Status,
			&execution.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow execution: %w", err)
		}

		executions = append(executions, &execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow executions: %w", err)
	}

	return executions, nil
}

// ExistsByWorkflowName reports whether any execution references the named
// workflow. Backs the referential-integrity check on definition delete.
func (r *ExecutionRepository) ExistsByWorkflowName(ctx context.Context, workflowName string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE workflow_name = $1)",
		workflowName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check executions for workflow: %w", err)
	}

	return exists, nil
}
