package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/models"
)

// StepRepository stores the append-only audit trail of node attempts.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

// Save inserts one step row in its own autocommitted statement.
func (r *StepRepository) Save(ctx context.Context, step *models.WorkflowExecutionStep) error {
	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_execution_steps (
			id, execution_id, node_id, node_name,
			request_url, request_body, request_headers, query_params,
			response, status_code, application_id, idempotency_key,
			skipped, attempt_count, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.NodeName,
		step.RequestURL,
		step.RequestBody,
		step.RequestHeaders,
		step.QueryParams,
		step.Response,
		step.StatusCode,
		step.ApplicationID,
		step.IdempotencyKey,
		step.Skipped,
		step.AttemptCount,
		step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow execution step: %w", err)
	}

	return nil
}

// ExistsNonSkipped reports whether a prior non-skipped attempt exists for
// the (applicationId, workflowName, nodeName) triple. Failed attempts
// count; only skip rows are excluded.
func (r *StepRepository) ExistsNonSkipped(ctx context.Context, applicationID, workflowName, nodeName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM workflow_execution_steps s
			JOIN workflow_executions e ON e.execution_id = s.execution_id
			WHERE s.application_id = $1
			  AND e.workflow_name = $2
			  AND s.node_name = $3
			  AND NOT s.skipped
		)
	`

	var exists bool

	err := r.db.QueryRowContext(ctx, query, applicationID, workflowName, nodeName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check prior step attempts: %w", err)
	}

	return exists, nil
}

// GetByExecution returns an execution's steps ordered by node id
// ascending: the reporting order, which differs from execution order when
// ids are not sequential.
func (r *StepRepository) GetByExecution(ctx context.Context, executionID string) ([]*models.WorkflowExecutionStep, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , node_id
		  , node_name
		  , request_url
		  , request_body
		  , request_headers
		  , query_params
		  , response
		  , status_code
		  , application_id
		  , idempotency_key
		  , skipped
		  , attempt_count
		  , created_at
		FROM workflow_execution_steps
		WHERE execution_id = $1
		ORDER BY node_id ASC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow execution steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.WorkflowExecutionStep, 0)

	for rows.Next() {
		var (
			step                                      models.WorkflowExecutionStep
			requestURL, requestBody, requestHeaders   sql.NullString
			queryParams, response, applicationID, key sql.NullString
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.NodeID,
			&step.NodeName,
			&requestURL,
			&requestBody,
			&requestHeaders,
			&queryParams,
			&response,
			&step.StatusCode,
			&applicationID,
			&key,
			&step.Skipped,
			&step.AttemptCount,
			&step.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow execution step: %w", err)
		}

		step.RequestURL = requestURL.String
		step.RequestBody = requestBody.String
		step.RequestHeaders = requestHeaders.String
		step.QueryParams = queryParams.String
		step.Response = response.String
		step.ApplicationID = applicationID.String
		step.IdempotencyKey = key.String

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow execution steps: %w", err)
	}

	return steps, nil
}
