package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow run. Status is
// monotonic: IN_PROGRESS moves to exactly one of SUCCESS or FAIL and never
// reverts.
type ExecutionStatus string

const (
	ExecutionStatusInProgress ExecutionStatus = "IN_PROGRESS"
	ExecutionStatusSuccess    ExecutionStatus = "SUCCESS"
	ExecutionStatusFail       ExecutionStatus = "FAIL"
)

// WorkflowExecution is the ledger row for one run of a workflow. Created at
// run start, mutated only to change status, never deleted by the engine.
type WorkflowExecution struct {
	ExecutionID  string          `json:"executionId"`
	WorkflowName string          `json:"workflowName"`
	ExecutedAt   time.Time       `json:"executedAt"`
	Status       ExecutionStatus `json:"status"`
	Version      int64           `json:"version"`
}

// WorkflowErrorLog captures one run-aborting failure. Append-only.
type WorkflowErrorLog struct {
	ExecutionID  string    `json:"executionId"`
	WorkflowName string    `json:"workflowName"`
	ErrorMessage string    `json:"errorMessage"`
	Timestamp    time.Time `json:"timestamp"`
}
