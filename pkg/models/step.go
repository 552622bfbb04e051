package models

import "time"

// WorkflowExecutionStep is one persisted attempt of one node within one
// run. A retried node produces one row per attempt; a node suppressed by
// the idempotency guard produces a single row with Skipped=true and
// StatusCode=0. Rows are append-only: never updated, never deleted.
type WorkflowExecutionStep struct {
	ID             string    `json:"id"`
	ExecutionID    string    `json:"executionId"`
	NodeID         int       `json:"nodeId"`
	NodeName       string    `json:"nodeName"`
	RequestURL     string    `json:"requestUrl"`
	RequestBody    string    `json:"requestBody"`
	RequestHeaders string    `json:"requestHeaders"`
	QueryParams    string    `json:"queryParams"`
	Response       string    `json:"response"`
	StatusCode     int       `json:"statusCode"`
	ApplicationID  string    `json:"applicationId"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Skipped        bool      `json:"skipped"`
	AttemptCount   int       `json:"attemptCount"`
	CreatedAt      time.Time `json:"createdAt"`
}
