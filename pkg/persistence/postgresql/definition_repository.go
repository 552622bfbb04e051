package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// DefinitionRepository handles workflow definition database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// GetAll returns all workflow definitions, newest first.
func (r *DefinitionRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT
			name
		  , workflow_json
		  , created_at
		FROM workflow_definitions
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		var definition models.WorkflowDefinition

		err := rows.Scan(&definition.Name, &definition.WorkflowJSON, &definition.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		definitions = append(definitions, &definition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	return definitions, nil
}

// GetByName returns a definition by its name.
func (r *DefinitionRepository) GetByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT
			name
		  , workflow_json
		  , created_at
		FROM workflow_definitions
		WHERE name = $1
	`

	var definition models.WorkflowDefinition

	err := r.db.QueryRowContext(ctx, query, name).
		Scan(&definition.Name, &definition.WorkflowJSON, &definition.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	return &definition, nil
}

// Save inserts or updates a definition keyed by name.
func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_definitions (name, workflow_json, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			workflow_json = EXCLUDED.workflow_json
	`

	_, err := r.db.ExecContext(ctx, query,
		definition.Name,
		definition.WorkflowJSON,
		definition.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	return nil
}

// Delete removes a definition by name.
func (r *DefinitionRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_definitions WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("failed to delete workflow definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrDefinitionNotFound
	}

	return nil
}
