// Package file provides file-based persistence for development and tests.
// Entities are stored as one JSON file each; every write lands on disk
// before the call returns, which gives the same independent-commit
// behavior the SQL layer provides.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	mu   sync.RWMutex
	root string
}

// NewPersistence creates a file persistence layer rooted at the given
// directory, creating the layout when missing.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{"definitions", "executions", "steps", "error_logs"} {
		_ = os.MkdirAll(filepath.Join(cleanRoot, dir), 0o755)
	}

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) definitionPath(name string) string {
	return filepath.Join(p.root, "definitions", name+".json")
}

func (p *Persistence) Definitions(_ context.Context) ([]*models.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(p.root, "definitions"))
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var definition models.WorkflowDefinition

		err := readJSON(filepath.Join(p.root, "definitions", entry.Name()), &definition)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, &definition)
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.After(definitions[j].CreatedAt)
	})

	return definitions, nil
}

func (p *Persistence) DefinitionByName(_ context.Context, name string) (*models.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var definition models.WorkflowDefinition

	err := readJSON(p.definitionPath(name), &definition)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, err
	}

	return &definition, nil
}

func (p *Persistence) SaveDefinition(_ context.Context, definition *models.WorkflowDefinition) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = time.Now().UTC()
	}

	return writeJSON(p.definitionPath(definition.Name), definition)
}

func (p *Persistence) DeleteDefinition(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.definitionPath(name))
	if os.IsNotExist(err) {
		return persistence.ErrDefinitionNotFound
	}

	return err
}

func (p *Persistence) executionPath(executionID string) string {
	return filepath.Join(p.root, "executions", executionID+".json")
}

func (p *Persistence) CreateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

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

	return writeJSON(p.executionPath(execution.ExecutionID), execution)
}

func (p *Persistence) SetExecutionStatus(ctx context.Context, executionID string, status models.ExecutionStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var execution models.WorkflowExecution

	err := readJSON(p.executionPath(executionID), &execution)
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrExecutionNotFound
		}

		return err
	}

	execution.Status = status
	execution.Version++

	return writeJSON(p.executionPath(executionID), &execution)
}

func (p *Persistence) ExecutionByID(_ context.Context, executionID string) (*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var execution models.WorkflowExecution

	err := readJSON(p.executionPath(executionID), &execution)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, err
	}

	return &execution, nil
}

func (p *Persistence) Executions(_ context.Context) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(p.root, "executions"))
	if err != nil {
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var execution models.WorkflowExecution

		err := readJSON(filepath.Join(p.root, "executions", entry.Name()), &execution)
		if err != nil {
			return nil, err
		}

		executions = append(executions, &execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].ExecutedAt.After(executions[j].ExecutedAt)
	})

	return executions, nil
}

func (p *Persistence) ExistsByWorkflowName(ctx context.Context, workflowName string) (bool, error) {
	executions, err := p.Executions(ctx)
	if err != nil {
		return false, err
	}

	for _, execution := range executions {
		if execution.WorkflowName == workflowName {
			return true, nil
		}
	}

	return false, nil
}

func (p *Persistence) stepPath(stepID string) string {
	return filepath.Join(p.root, "steps", stepID+".json")
}

func (p *Persistence) SaveStep(_ context.Context, step *models.WorkflowExecutionStep) error {
	p.mu.Lock()
	defer p.mu.Unlock()

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

	return writeJSON(p.stepPath(step.ID), step)
}

func (p *Persistence) ExistsNonSkipped(ctx context.Context, applicationID, workflowName, nodeName string) (bool, error) {
	steps, err := p.allSteps()
	if err != nil {
		return false, err
	}

	for _, step := range steps {
		if step.Skipped || step.ApplicationID != applicationID || step.NodeName != nodeName {
			continue
		}

		execution, err := p.ExecutionByID(ctx, step.ExecutionID)
		if err != nil {
			continue
		}

		if execution.WorkflowName == workflowName {
			return true, nil
		}
	}

	return false, nil
}

func (p *Persistence) StepsByExecution(_ context.Context, executionID string) ([]*models.WorkflowExecutionStep, error) {
	steps, err := p.allSteps()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.WorkflowExecutionStep, 0)

	for _, step := range steps {
		if step.ExecutionID == executionID {
			matched = append(matched, step)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].NodeID != matched[j].NodeID {
			return matched[i].NodeID < matched[j].NodeID
		}

		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (p *Persistence) allSteps() ([]*models.WorkflowExecutionStep, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(p.root, "steps"))
	if err != nil {
		return nil, fmt.Errorf("failed to read steps directory: %w", err)
	}

	steps := make([]*models.WorkflowExecutionStep, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var step models.WorkflowExecutionStep

		err := readJSON(filepath.Join(p.root, "steps", entry.Name()), &step)
		if err != nil {
			return nil, err
		}

		steps = append(steps, &step)
	}

	return steps, nil
}

func (p *Persistence) SaveErrorLog(_ context.Context, errorLog *models.WorkflowErrorLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if errorLog.Timestamp.IsZero() {
		errorLog.Timestamp = time.Now().UTC()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate error log ID: %w", err)
	}

	return writeJSON(filepath.Join(p.root, "error_logs", id.String()+".json"), errorLog)
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return nil
}

func writeJSON(path string, source any) error {
	data, err := json.MarshalIndent(source, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
