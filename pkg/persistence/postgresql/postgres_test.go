package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"workflow_error_logs", "workflow_execution_steps", "workflow_executions", "workflow_definitions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("stepline_test"),
			postgres.WithUsername("stepline"),
			postgres.WithPassword("stepline"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func TestDefinitionRepository(t *testing.T) {
	p, ctx := setupTestDB(t)

	definition := &models.WorkflowDefinition{
		Name:         "enrichment",
		WorkflowJSON: `{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test"}]}`,
	}

	require.NoError(t, p.SaveDefinition(ctx, definition))

	loaded, err := p.DefinitionByName(ctx, "enrichment")
	require.NoError(t, err)
	assert.Equal(t, definition.WorkflowJSON, loaded.WorkflowJSON)

	// Saving again replaces the document, keyed by name.
	definition.WorkflowJSON = `{"nodes":[]}`
	require.NoError(t, p.SaveDefinition(ctx, definition))

	loaded, err = p.DefinitionByName(ctx, "enrichment")
	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[]}`, loaded.WorkflowJSON)

	all, err := p.Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, p.DeleteDefinition(ctx, "enrichment"))

	_, err = p.DefinitionByName(ctx, "enrichment")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)

	err = p.DeleteDefinition(ctx, "enrichment")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestExecutionRepository(t *testing.T) {
	p, ctx := setupTestDB(t)

	execution := &models.WorkflowExecution{WorkflowName: "enrichment"}

	require.NoError(t, p.CreateExecution(ctx, execution))
	assert.NotEmpty(t, execution.ExecutionID)
	assert.Equal(t, models.ExecutionStatusInProgress, execution.Status)

	require.NoError(t, p.SetExecutionStatus(ctx, execution.ExecutionID, models.ExecutionStatusFail))

	loaded, err := p.ExecutionByID(ctx, execution.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFail, loaded.Status)
	assert.Equal(t, int64(1), loaded.Version)

	exists, err := p.ExistsByWorkflowName(ctx, "enrichment")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.ExistsByWorkflowName(ctx, "other")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = p.ExecutionByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestStepRepository(t *testing.T) {
	p, ctx := setupTestDB(t)

	execution := &models.WorkflowExecution{WorkflowName: "enrichment"}
	require.NoError(t, p.CreateExecution(ctx, execution))

	skipRow := &models.WorkflowExecutionStep{
		ExecutionID:   execution.ExecutionID,
		NodeID:        1,
		NodeName:      "charge",
		ApplicationID: "app-1",
		Skipped:       true,
	}
	require.NoError(t, p.SaveStep(ctx, skipRow))

	exists, err := p.ExistsNonSkipped(ctx, "app-1", "enrichment", "charge")
	require.NoError(t, err)
	assert.False(t, exists, "skip rows must not satisfy the guard")

	attemptRow := &models.WorkflowExecutionStep{
		ExecutionID:    execution.ExecutionID,
		NodeID:         1,
		NodeName:       "charge",
		RequestURL:     "http://example.test/charge?amount=10",
		RequestBody:    `{"amount":10}`,
		Response:       `{"charged":true}`,
		StatusCode:     200,
		ApplicationID:  "app-1",
		IdempotencyKey: "app-1-charge",
		AttemptCount:   1,
	}
	require.NoError(t, p.SaveStep(ctx, attemptRow))

	exists, err = p.ExistsNonSkipped(ctx, "app-1", "enrichment", "charge")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.ExistsNonSkipped(ctx, "app-1", "other-workflow", "charge")
	require.NoError(t, err)
	assert.False(t, exists, "guard is scoped by workflow name")

	laterNode := &models.WorkflowExecutionStep{
		ExecutionID: execution.ExecutionID,
		NodeID:      0,
		NodeName:    "zeroth",
		StatusCode:  200,
	}
	require.NoError(t, p.SaveStep(ctx, laterNode))

	steps, err := p.StepsByExecution(ctx, execution.ExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "zeroth", steps[0].NodeName, "steps are reported in node id order")
	assert.Equal(t, `{"charged":true}`, steps[2].Response)
}

func TestErrorLogRepository(t *testing.T) {
	p, ctx := setupTestDB(t)

	execution := &models.WorkflowExecution{WorkflowName: "enrichment"}
	require.NoError(t, p.CreateExecution(ctx, execution))

	err := p.SaveErrorLog(ctx, &models.WorkflowErrorLog{
		ExecutionID:  execution.ExecutionID,
		WorkflowName: "enrichment",
		ErrorMessage: "workflow definition not found",
	})
	require.NoError(t, err)
}

func TestHealthCheck(t *testing.T) {
	p, ctx := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}
