// Package web provides the HTTP handlers for workflow management and
// execution.
package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/stepline/stepline/pkg/engine"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/services"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	engine           *engine.Engine
	validator        *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	runner *engine.Engine,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		engine:           runner,
		validator:        validator,
	}
}

// RunWorkflow executes a named workflow synchronously. The optional JSON
// body is the run input. The response always carries the run result; a
// failed run is still a 200 because the run itself happened.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	input := map[string]any{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&input); err != nil {
			return badRequest(c, "Invalid JSON input")
		}
	}

	result, err := h.engine.Run(c.Context(), name, input)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(result)
}

// GetWorkflows returns the names of all stored definitions, newest first.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	definitions, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	names := make([]string, 0, len(definitions))
	for _, definition := range definitions {
		names = append(names, definition.Name)
	}

	return c.JSON(fiber.Map{"workflows": names})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	definition, err := h.workflowService.FetchByName(c.Context(), name)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(definitionResponse(definition))
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	definition := &models.WorkflowDefinition{
		Name:         req.Name,
		WorkflowJSON: string(req.WorkflowJSON),
	}

	err := h.workflowService.Create(c.Context(), definition)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(definitionResponse(definition))
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), name, string(req.WorkflowJSON))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definitionResponse(updated))
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	err := h.workflowService.Delete(c.Context(), name)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// UploadWorkflow accepts a multipart file holding a definition document:
// {"name": ..., "workflowJson": {...}}. Uploads create or replace.
func (h *APIHandlers) UploadWorkflow(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "Definition file is required")
	}

	opened, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "Failed to open uploaded file")
	}

	defer func() {
		_ = opened.Close()
	}()

	content, err := io.ReadAll(opened)
	if err != nil {
		return badRequest(c, "Failed to read uploaded file")
	}

	var uploaded uploadedDefinition
	if err := json.Unmarshal(content, &uploaded); err != nil {
		return badRequest(c, "Uploaded file is not valid JSON")
	}

	definition := &models.WorkflowDefinition{
		Name:         uploaded.Name,
		WorkflowJSON: string(uploaded.WorkflowJSON),
	}

	err = h.workflowService.Save(c.Context(), definition)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(definitionResponse(definition))
}

// GetExecutions returns the full run history, newest first, with each
// execution's steps ordered by node id.
func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	details, err := h.executionService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": details})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	detail, err := h.executionService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stepline API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Stepline API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// definitionResponse renders a definition with the document inlined as
// JSON instead of an escaped string.
func definitionResponse(definition *models.WorkflowDefinition) fiber.Map {
	return fiber.Map{
		"name":         definition.Name,
		"workflowJson": json.RawMessage(definition.WorkflowJSON),
		"createdAt":    definition.CreatedAt,
	}
}
