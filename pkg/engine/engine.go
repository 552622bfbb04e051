// Package engine executes workflow runs: one ledger row per run, one audit
// row per node attempt, strictly sequential node execution.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/expression"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/otelhelper"
	"github.com/stepline/stepline/pkg/persistence"
)

const defaultHTTPTimeout = 30 * time.Second

// Result is the caller-visible outcome of one run. Error carries a message
// only when the run aborted outside a node's attempt loop; a run that
// failed by exhausting a node's retries reports FAIL with no error.
type Result struct {
	Status      models.ExecutionStatus `json:"status"`
	ExecutionID string                 `json:"executionId"`
	Error       string                 `json:"error,omitempty"`
}

// Engine orchestrates workflow runs.
type Engine struct {
	persistence persistence.Persistence
	resolver    *expression.Resolver
	client      *Client
	guard       *Guard
	recorder    *Recorder
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewEngine creates an engine. The publisher may be nil to disable event
// notifications; a nil tracer disables tracing.
func NewEngine(logger *slog.Logger, p persistence.Persistence, publisher eventbus.EventPublisher, tracer trace.Tracer) *Engine {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}

	return &Engine{
		persistence: p,
		resolver:    expression.NewResolver(expression.DefaultFunctions()),
		client:      NewClient(defaultHTTPTimeout),
		guard:       NewGuard(p, logger),
		recorder:    NewRecorder(p, publisher, logger),
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger,
	}
}

// Run executes the named workflow against the given input. The execution
// row commits before any node runs, so the run is visible in history even
// if the process dies mid-flight. The returned error is non-nil only when
// the ledger row itself could not be opened.
func (e *Engine) Run(ctx context.Context, workflowName string, input map[string]any) (*Result, error) {
	start := time.Now()

	execution := &models.WorkflowExecution{WorkflowName: workflowName}

	err := e.persistence.CreateExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to open workflow execution: %w", err)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowNameKey, workflowName),
		attribute.String(otelhelper.ExecutionIDKey, execution.ExecutionID),
	)
	defer span.End()

	e.publishStarted(ctx, execution, input)

	document, err := e.loadDocument(ctx, workflowName)
	if err != nil {
		return e.abort(ctx, span, execution, start, err), nil
	}

	runContext := make(map[string]any, len(input))
	for key, value := range input {
		runContext[key] = value
	}

	applicationID := applicationIDOf(input)

	for _, node := range document.Nodes {
		proceed, err := e.resolver.EvalCondition(node.Condition, runContext)
		if err != nil {
			return e.abort(ctx, span, execution, start, fmt.Errorf("node %q condition: %w", node.Name, err)), nil
		}

		if !proceed {
			e.logger.DebugContext(ctx, "condition false, skipping node", "node", node.Name)

			continue
		}

		idempotencyKey, err := e.resolveIdempotencyKey(node, runContext)
		if err != nil {
			return e.abort(ctx, span, execution, start, fmt.Errorf("node %q idempotency key: %w", node.Name, err)), nil
		}

		skip, err := e.guard.ShouldSkip(ctx, applicationID, workflowName, node)
		if err != nil {
			return e.abort(ctx, span, execution, start, err), nil
		}

		if skip {
			e.recorder.Record(ctx, workflowName, &models.WorkflowExecutionStep{
				ExecutionID:    execution.ExecutionID,
				NodeID:         node.ID,
				NodeName:       node.Name,
				ApplicationID:  applicationID,
				IdempotencyKey: idempotencyKey,
				Skipped:        true,
				StatusCode:     0,
			})

			continue
		}

		succeeded, err := e.executeNode(ctx, execution, node, runContext, applicationID, idempotencyKey)
		if err != nil {
			return e.abort(ctx, span, execution, start, err), nil
		}

		if !succeeded {
			return e.failFast(ctx, span, execution, node, start), nil
		}
	}

	err = e.persistence.SetExecutionStatus(ctx, execution.ExecutionID, models.ExecutionStatusSuccess)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to mark execution successful",
			"execution_id", execution.ExecutionID, "error", err)
	}

	e.publishCompleted(ctx, execution, start)

	return &Result{Status: models.ExecutionStatusSuccess, ExecutionID: execution.ExecutionID}, nil
}

// executeNode runs one node's attempt loop. It returns (true, nil) on
// success, (false, nil) when every attempt failed, and a non-nil error for
// failures that must abort the run regardless of retries.
func (e *Engine) executeNode(
	ctx context.Context,
	execution *models.WorkflowExecution,
	node *models.Node,
	runContext map[string]any,
	applicationID, idempotencyKey string,
) (bool, error) {
	url, err := e.resolver.ResolveTemplate(node.RequestURL, runContext)
	if err != nil {
		return false, fmt.Errorf("node %q request_url: %w", node.Name, err)
	}

	body, err := e.resolver.ResolveMap(node.RequestBody, runContext)
	if err != nil {
		return false, fmt.Errorf("node %q request_body: %w", node.Name, err)
	}

	headers, err := e.resolver.ResolveMap(node.RequestHeaders, runContext)
	if err != nil {
		return false, fmt.Errorf("node %q request_headers: %w", node.Name, err)
	}

	query, err := e.resolver.ResolveMap(node.QueryParams, runContext)
	if err != nil {
		return false, fmt.Errorf("node %q query_params: %w", node.Name, err)
	}

	finalURL := BuildURL(url, query)

	step := models.WorkflowExecutionStep{
		ExecutionID:    execution.ExecutionID,
		NodeID:         node.ID,
		NodeName:       node.Name,
		RequestURL:     finalURL,
		RequestBody:    marshalMap(body),
		RequestHeaders: marshalMap(headers),
		QueryParams:    marshalMap(query),
		ApplicationID:  applicationID,
		IdempotencyKey: idempotencyKey,
	}

	for attempt := 1; attempt <= node.Retry+1; attempt++ {
		ctx, attemptSpan := otelhelper.StartSpan(ctx, e.tracer, "node.attempt",
			attribute.String(otelhelper.NodeNameKey, node.Name),
			attribute.Int(otelhelper.NodeIDKey, node.ID),
			attribute.Int(otelhelper.AttemptKey, attempt),
		)

		parsed, response, attemptErr := e.attempt(ctx, node, finalURL, headers, body)

		if attemptErr != nil {
			otelhelper.SetError(attemptSpan, attemptErr)
			attemptSpan.End()

			e.logger.WarnContext(ctx, "node attempt failed",
				"node", node.Name,
				"attempt", attempt,
				"error", attemptErr,
			)

			failed := step
			failed.Response = attemptErr.Error()
			failed.StatusCode = 500
			failed.AttemptCount = attempt
			e.recorder.Record(ctx, execution.WorkflowName, &failed)

			continue
		}

		attemptSpan.End()

		succeeded := step
		succeeded.Response = response.Body
		succeeded.StatusCode = response.StatusCode
		succeeded.AttemptCount = attempt
		e.recorder.Record(ctx, execution.WorkflowName, &succeeded)

		runContext[node.Name] = parsed

		return true, nil
	}

	return false, nil
}

// attempt performs one HTTP exchange. Success requires both an error-free
// exchange and a JSON-parseable body; a 2xx response with a non-JSON body
// is a failed attempt.
func (e *Engine) attempt(ctx context.Context, node *models.Node, url string, headers, body map[string]any) (any, *Response, error) {
	response, err := e.client.Do(ctx, node.Method, url, headers, body)
	if err != nil {
		return nil, nil, err
	}

	var parsed any

	err = json.Unmarshal([]byte(response.Body), &parsed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse response body as JSON: %w", err)
	}

	return parsed, response, nil
}

func (e *Engine) resolveIdempotencyKey(node *models.Node, runContext map[string]any) (string, error) {
	if !node.HasIdempotencyKey() {
		return "", nil
	}

	return e.resolver.ResolveTemplate(*node.IdempotencyKey, runContext)
}

func (e *Engine) loadDocument(ctx context.Context, workflowName string) (*models.Document, error) {
	definition, err := e.persistence.DefinitionByName(ctx, workflowName)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return nil, fmt.Errorf("workflow %q not found: %w", workflowName, err)
		}

		return nil, fmt.Errorf("failed to load workflow %q: %w", workflowName, err)
	}

	document, err := models.ParseDocument(definition.WorkflowJSON)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", workflowName, err)
	}

	return document, nil
}

// abort handles failures outside a node's attempt loop: the error is
// logged to the error-log table and surfaced in the result.
func (e *Engine) abort(ctx context.Context, span trace.Span, execution *models.WorkflowExecution, start time.Time, cause error) *Result {
	e.logger.ErrorContext(ctx, "workflow run aborted",
		"workflow", execution.WorkflowName,
		"execution_id", execution.ExecutionID,
		"error", cause,
	)

	otelhelper.SetError(span, cause)

	err := e.persistence.SaveErrorLog(ctx, &models.WorkflowErrorLog{
		ExecutionID:  execution.ExecutionID,
		WorkflowName: execution.WorkflowName,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to save error log", "error", err)
	}

	e.markFailed(ctx, execution)
	e.publishFailed(ctx, execution, start, "", cause.Error())

	return &Result{
		Status:      models.ExecutionStatusFail,
		ExecutionID: execution.ExecutionID,
		Error:       cause.Error(),
	}
}

// failFast handles a node exhausting its attempts: the run fails but the
// result carries no error message. The audit trail already holds one row
// per failed attempt.
func (e *Engine) failFast(ctx context.Context, span trace.Span, execution *models.WorkflowExecution, node *models.Node, start time.Time) *Result {
	e.logger.WarnContext(ctx, "workflow run failed: node exhausted attempts",
		"workflow", execution.WorkflowName,
		"execution_id", execution.ExecutionID,
		"node", node.Name,
	)

	span.SetAttributes(attribute.String(otelhelper.NodeNameKey, node.Name))

	e.markFailed(ctx, execution)
	e.publishFailed(ctx, execution, start, node.Name, "")

	return &Result{Status: models.ExecutionStatusFail, ExecutionID: execution.ExecutionID}
}

func (e *Engine) markFailed(ctx context.Context, execution *models.WorkflowExecution) {
	err := e.persistence.SetExecutionStatus(ctx, execution.ExecutionID, models.ExecutionStatusFail)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to mark execution failed",
			"execution_id", execution.ExecutionID, "error", err)
	}
}

func (e *Engine) publishStarted(ctx context.Context, execution *models.WorkflowExecution, input map[string]any) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, execution.ExecutionID, events.RunStarted{
		BaseEvent: baseEvent(events.RunStartedEvent, execution),
		Input:     input,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish run started event", "error", err)
	}
}

func (e *Engine) publishCompleted(ctx context.Context, execution *models.WorkflowExecution, start time.Time) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, execution.ExecutionID, events.RunCompleted{
		BaseEvent: baseEvent(events.RunCompletedEvent, execution),
		Duration:  time.Since(start),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish run completed event", "error", err)
	}
}

func (e *Engine) publishFailed(ctx context.Context, execution *models.WorkflowExecution, start time.Time, nodeName, message string) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, execution.ExecutionID, events.RunFailed{
		BaseEvent: baseEvent(events.RunFailedEvent, execution),
		NodeName:  nodeName,
		Error:     message,
		Duration:  time.Since(start),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish run failed event", "error", err)
	}
}

func baseEvent(eventType events.EventType, execution *models.WorkflowExecution) events.BaseEvent {
	return events.BaseEvent{
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		WorkflowName: execution.WorkflowName,
		ExecutionID:  execution.ExecutionID,
	}
}

// applicationIDOf extracts the caller identity used by the idempotency
// guard. Absent or non-string values disable the guard for the run.
func applicationIDOf(input map[string]any) string {
	value, ok := input["applicationId"].(string)
	if !ok {
		return ""
	}

	return value
}

func marshalMap(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}

	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}

	return string(data)
}
