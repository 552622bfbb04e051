package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

func setupPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestDefinitionRoundTrip(t *testing.T) {
	p := setupPersistence(t)
	ctx := context.Background()

	definition := &models.WorkflowDefinition{
		Name:         "enrichment",
		WorkflowJSON: `{"nodes":[]}`,
	}

	require.NoError(t, p.SaveDefinition(ctx, definition))
	assert.False(t, definition.CreatedAt.IsZero())

	loaded, err := p.DefinitionByName(ctx, "enrichment")
	require.NoError(t, err)
	assert.Equal(t, definition.WorkflowJSON, loaded.WorkflowJSON)

	all, err := p.Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, p.DeleteDefinition(ctx, "enrichment"))

	_, err = p.DefinitionByName(ctx, "enrichment")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestDefinitionNotFound(t *testing.T) {
	p := setupPersistence(t)

	_, err := p.DefinitionByName(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)

	err = p.DeleteDefinition(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestExecutionLifecycle(t *testing.T) {
	p := setupPersistence(t)
	ctx := context.Background()

	execution := &models.WorkflowExecution{WorkflowName: "enrichment"}

	require.NoError(t, p.CreateExecution(ctx, execution))
	assert.NotEmpty(t, execution.ExecutionID)
	assert.Equal(t, models.ExecutionStatusInProgress, execution.Status)

	require.NoError(t, p.SetExecutionStatus(ctx, execution.ExecutionID, models.ExecutionStatusSuccess))

	loaded, err := p.ExecutionByID(ctx, execution.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, loaded.Status)
	assert.Equal(t, int64(1), loaded.Version)

	exists, err := p.ExistsByWorkflowName(ctx, "enrichment")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.ExistsByWorkflowName(ctx, "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExecutionsNewestFirst(t *testing.T) {
	p := setupPersistence(t)
	ctx := context.Background()

	older := &models.WorkflowExecution{
		WorkflowName: "enrichment",
		ExecutedAt:   time.Now().UTC().Add(-time.Hour),
	}
	newer := &models.WorkflowExecution{WorkflowName: "enrichment"}

	require.NoError(t, p.CreateExecution(ctx, older))
	require.NoError(t, p.CreateExecution(ctx, newer))

	executions, err := p.Executions(ctx)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, newer.ExecutionID, executions[0].ExecutionID)
}

func TestStepsOrderedByNodeID(t *testing.T) {
	p := setupPersistence(t)
	ctx := context.Background()

	execution := &models.WorkflowExecution{WorkflowName: "enrichment"}
	require.NoError(t, p.CreateExecution(ctx, execution))

	// Executed in document order 7, 3; reported in id order 3, 7.
	for _, nodeID := range []int{7, 3} {
		require.NoError(t, p.SaveStep(ctx, &models.WorkflowExecutionStep{
			ExecutionID: execution.ExecutionID,
			NodeID:      nodeID,
			NodeName:    "node",
		}))
	}

	steps, err := p.StepsByExecution(ctx, execution.ExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 3, steps[0].NodeID)
	assert.Equal(t, 7, steps[1].NodeID)
}

func TestExistsNonSkipped(t *testing.T) {
	p := setupPersistence(t)
	ctx := context.Background()

	execution := &models.WorkflowExecution{WorkflowName: "enrichment"}
	require.NoError(t, p.CreateExecution(ctx, execution))

	require.NoError(t, p.SaveStep(ctx, &models.WorkflowExecutionStep{
		ExecutionID:   execution.ExecutionID,
		NodeID:        1,
		NodeName:      "charge",
		ApplicationID: "app-42",
		Skipped:       true,
	}))

	exists, err := p.ExistsNonSkipped(ctx, "app-42", "enrichment", "charge")
	require.NoError(t, err)
	assert.False(t, exists, "skip rows must not satisfy the guard")

	require.NoError(t, p.SaveStep(ctx, &models.WorkflowExecutionStep{
		ExecutionID:   execution.ExecutionID,
		NodeID:        1,
		NodeName:      "charge",
		ApplicationID: "app-42",
	}))

	exists, err = p.ExistsNonSkipped(ctx, "app-42", "enrichment", "charge")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.ExistsNonSkipped(ctx, "app-42", "other-workflow", "charge")
	require.NoError(t, err)
	assert.False(t, exists, "triple is scoped by workflow name")
}

func TestSaveErrorLog(t *testing.T) {
	p := setupPersistence(t)

	err := p.SaveErrorLog(context.Background(), &models.WorkflowErrorLog{
		ExecutionID:  "exec-1",
		WorkflowName: "enrichment",
		ErrorMessage: "workflow definition not found",
	})
	require.NoError(t, err)
}
