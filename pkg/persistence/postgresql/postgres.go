// Package postgresql provides PostgreSQL persistence for workflow
// definitions, executions, steps and error logs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL. Every write
// is a single autocommitted statement on the shared pool, so each
// execution, step and error-log write commits independently of the run
// that issued it.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	definitionRepo *DefinitionRepository
	executionRepo  *ExecutionRepository
	stepRepo       *StepRepository
	errorLogRepo   *ErrorLogRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		definitionRepo: NewDefinitionRepository(database, logger),
		executionRepo:  NewExecutionRepository(database, logger),
		stepRepo:       NewStepRepository(database, logger),
		errorLogRepo:   NewErrorLogRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return p.definitionRepo.GetAll(ctx)
}

func (p *Persistence) DefinitionByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	return p.definitionRepo.GetByName(ctx, name)
}

func (p *Persistence) SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error {
	return p.definitionRepo.Save(ctx, definition)
}

func (p *Persistence) DeleteDefinition(ctx context.Context, name string) error {
	return p.definitionRepo.Delete(ctx, name)
}

func (p *Persistence) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executionRepo.Create(ctx, execution)
}

func (p *Persistence) SetExecutionStatus(ctx context.Context, executionID string, status models.ExecutionStatus) error {
	return p.executionRepo.SetStatus(ctx, executionID, status)
}

func (p *Persistence) ExecutionByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return p.executionRepo.GetByID(ctx, executionID)
}

func (p *Persistence) Executions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	return p.executionRepo.GetAll(ctx)
}

func (p *Persistence) ExistsByWorkflowName(ctx context.Context, workflowName string) (bool, error) {
	return p.executionRepo.ExistsByWorkflowName(ctx, workflowName)
}

func (p *Persistence) SaveStep(ctx context.Context, step *models.WorkflowExecutionStep) error {
	return p.stepRepo.Save(ctx, step)
}

func (p *Persistence) ExistsNonSkipped(ctx context.Context, applicationID, workflowName, nodeName string) (bool, error) {
	return p.stepRepo.ExistsNonSkipped(ctx, applicationID, workflowName, nodeName)
}

func (p *Persistence) StepsByExecution(ctx context.Context, executionID string) ([]*models.WorkflowExecutionStep, error) {
	return p.stepRepo.GetByExecution(ctx, executionID)
}

func (p *Persistence) SaveErrorLog(ctx context.Context, errorLog *models.WorkflowErrorLog) error {
	return p.errorLogRepo.Save(ctx, errorLog)
}
