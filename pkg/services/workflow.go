package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// Workflow manages workflow definitions. Documents are validated on every
// write; the engine trusts stored documents at run time.
type Workflow struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewWorkflow(p persistence.Persistence, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: p,
		logger:      logger.With("service", "workflow"),
	}
}

// List returns all workflow definitions, newest first.
func (s *Workflow) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	definitions, err := s.persistence.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}

	return definitions, nil
}

// FetchByName returns one definition.
func (s *Workflow) FetchByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	return s.persistence.DefinitionByName(ctx, name)
}

// Create validates and stores a new definition. The name must be unused.
func (s *Workflow) Create(ctx context.Context, definition *models.WorkflowDefinition) error {
	if strings.TrimSpace(definition.Name) == "" {
		return ErrNameRequired
	}

	err := models.ValidateDocument(definition.WorkflowJSON)
	if err != nil {
		return err
	}

	_, err = s.persistence.DefinitionByName(ctx, definition.Name)
	if err == nil {
		return persistence.ErrDefinitionExists
	}

	if !persistence.IsDefinitionNotFound(err) {
		return fmt.Errorf("failed to check for existing definition: %w", err)
	}

	err = s.persistence.SaveDefinition(ctx, definition)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "workflow definition created", "name", definition.Name)

	return nil
}

// Update validates and replaces an existing definition's document.
func (s *Workflow) Update(ctx context.Context, name, workflowJSON string) (*models.WorkflowDefinition, error) {
	err := models.ValidateDocument(workflowJSON)
	if err != nil {
		return nil, err
	}

	existing, err := s.persistence.DefinitionByName(ctx, name)
	if err != nil {
		return nil, err
	}

	existing.WorkflowJSON = workflowJSON

	err = s.persistence.SaveDefinition(ctx, existing)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "workflow definition updated", "name", name)

	return existing, nil
}

// Save validates and stores a definition, replacing any previous document
// under the same name. Backs the upload endpoint.
func (s *Workflow) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	if strings.TrimSpace(definition.Name) == "" {
		return ErrNameRequired
	}

	err := models.ValidateDocument(definition.WorkflowJSON)
	if err != nil {
		return err
	}

	err = s.persistence.SaveDefinition(ctx, definition)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "workflow definition saved", "name", definition.Name)

	return nil
}

// Delete removes a definition. Definitions referenced by any execution are
// kept: the run history must stay interpretable.
func (s *Workflow) Delete(ctx context.Context, name string) error {
	inUse, err := s.persistence.ExistsByWorkflowName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check definition usage: %w", err)
	}

	if inUse {
		return persistence.ErrDefinitionInUse
	}

	err = s.persistence.DeleteDefinition(ctx, name)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "workflow definition deleted", "name", name)

	return nil
}

// HealthCheck verifies the persistence layer is reachable.
func (s *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return err.Error(), false
	}

	return "ok", true
}
