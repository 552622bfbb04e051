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

// ErrorLogRepository stores run-aborting failures. Append-only.
type ErrorLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewErrorLogRepository creates a new error log repository.
func NewErrorLogRepository(db *sql.DB, logger *slog.Logger) *ErrorLogRepository {
	return &ErrorLogRepository{db: db, logger: logger}
}

// Save inserts one error-log row in its own autocommitted statement.
func (r *ErrorLogRepository) Save(ctx context.Context, errorLog *models.WorkflowErrorLog) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate error log ID: %w", err)
	}

	if errorLog.Timestamp.IsZero() {
		errorLog.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_error_logs (id, execution_id, workflow_name, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query,
		id.String(),
		errorLog.ExecutionID,
		errorLog.WorkflowName,
		errorLog.ErrorMessage,
		errorLog.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow error log: %w", err)
	}

	return nil
}
