package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/engine"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/services"
	"github.com/stepline/stepline/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())
	workflowService := services.NewWorkflow(persistence, logger)
	executionService := services.NewExecution(persistence, logger)
	runner := engine.NewEngine(logger, persistence, nil, nil)
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(workflowService, executionService, runner, validate)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/upload", handlers.UploadWorkflow)
	w.Post("/run/:name", handlers.RunWorkflow)
	w.Get("/executions", handlers.GetExecutions)
	w.Get("/executions/:id", handlers.GetExecution)
	w.Get("/:name", handlers.GetWorkflow)
	w.Put("/:name", handlers.UpdateWorkflow)
	w.Delete("/:name", handlers.DeleteWorkflow)

	return app
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	return req
}

func createWorkflow(t *testing.T, app *fiber.App, name, document string) {
	t.Helper()

	req := jsonRequest(t, http.MethodPost, "/workflows", map[string]any{
		"name":         name,
		"workflowJson": json.RawMessage(document),
	})

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: map[string]any{
				"name":         "enrichment",
				"workflowJson": json.RawMessage(`{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test"}]}`),
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "validation error - missing name",
			requestBody: map[string]any{
				"workflowJson": json.RawMessage(`{"nodes":[]}`),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - name too short",
			requestBody: map[string]any{
				"name":         "ab",
				"workflowJson": json.RawMessage(`{"nodes":[]}`),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid document - node without request_url",
			requestBody: map[string]any{
				"name":         "enrichment",
				"workflowJson": json.RawMessage(`{"nodes":[{"id":1,"name":"lookup"}]}`),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid document - duplicate node ids",
			requestBody: map[string]any{
				"name":         "enrichment",
				"workflowJson": json.RawMessage(`{"nodes":[{"id":1,"name":"a","request_url":"http://x"},{"id":1,"name":"b","request_url":"http://y"}]}`),
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows", tt.requestBody))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestCreateWorkflowConflict(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	createWorkflow(t, app, "enrichment", `{"nodes":[]}`)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows", map[string]any{
		"name":         "enrichment",
		"workflowJson": json.RawMessage(`{"nodes":[]}`),
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWorkflow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	createWorkflow(t, app, "enrichment", `{"nodes":[]}`)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/enrichment", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "enrichment", body["name"])
	assert.NotNil(t, body["workflowJson"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListWorkflows(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	createWorkflow(t, app, "first-flow", `{"nodes":[]}`)
	createWorkflow(t, app, "second-flow", `{"nodes":[]}`)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Workflows []string `json:"workflows"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.ElementsMatch(t, []string{"first-flow", "second-flow"}, body.Workflows)
}

func TestUpdateWorkflow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	createWorkflow(t, app, "enrichment", `{"nodes":[]}`)

	resp, err := app.Test(jsonRequest(t, http.MethodPut, "/workflows/enrichment", map[string]any{
		"workflowJson": json.RawMessage(`{"nodes":[{"id":1,"name":"added","request_url":"http://example.test"}]}`),
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPut, "/workflows/missing", map[string]any{
		"workflowJson": json.RawMessage(`{"nodes":[]}`),
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteWorkflow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	createWorkflow(t, app, "enrichment", `{"nodes":[]}`)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/workflows/enrichment", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/workflows/enrichment", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteWorkflowReferencedByExecution(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	createWorkflow(t, app, "enrichment", `{"nodes":[]}`)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/workflows/run/enrichment", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/workflows/enrichment", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunWorkflow(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer target.Close()

	app := setupTestApp(t)

	document := fmt.Sprintf(`{"nodes":[{"id":1,"name":"call","request_url":%q}]}`, target.URL)
	createWorkflow(t, app, "enrichment", document)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/run/enrichment", map[string]any{
		"applicationId": "app-1",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Status      string `json:"status"`
		ExecutionID string `json:"executionId"`
		Error       string `json:"error"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "SUCCESS", result.Status)
	assert.NotEmpty(t, result.ExecutionID)
	assert.Empty(t, result.Error)
}

func TestRunUnknownWorkflowReportsFailure(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/workflows/run/missing", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "FAIL", result.Status)
	assert.Contains(t, result.Error, "not found")
}

func TestUploadWorkflow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	var buffer bytes.Buffer

	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("file", "enrichment.json")
	require.NoError(t, err)

	_, err = part.Write([]byte(`{"name":"uploaded-flow","workflowJson":{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test"}]}}`))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/workflows/upload", &buffer)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/uploaded-flow", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadWorkflowRejectsInvalidDocument(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	var buffer bytes.Buffer

	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("file", "broken.json")
	require.NoError(t, err)

	_, err = part.Write([]byte(`{"name":"broken-flow","workflowJson":{"nodes":[{"id":1}]}}`))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/workflows/upload", &buffer)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetExecutions(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	createWorkflow(t, app, "enrichment", `{"nodes":[]}`)

	runResp, err := app.Test(httptest.NewRequest(http.MethodPost, "/workflows/run/enrichment", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, runResp.StatusCode)

	var runResult struct {
		ExecutionID string `json:"executionId"`
	}

	require.NoError(t, json.NewDecoder(runResp.Body).Decode(&runResult))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/executions", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), runResult.ExecutionID))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/executions/"+runResult.ExecutionID, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		ExecutionID string `json:"executionId"`
		Status      string `json:"status"`
		Steps       []any  `json:"steps"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, runResult.ExecutionID, detail.ExecutionID)
	assert.Equal(t, "SUCCESS", detail.Status)
	assert.Empty(t, detail.Steps)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/executions/unknown-id", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
