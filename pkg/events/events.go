// Package events defines event types for workflow run lifecycle notifications.
package events

import (
	"time"
)

type EventType string

const Topic = "stepline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "workflow.run.started"
	RunCompletedEvent EventType = "workflow.run.completed"
	RunFailedEvent    EventType = "workflow.run.failed"
	StepRecordedEvent EventType = "step.recorded"
)

type BaseEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	WorkflowName string    `json:"workflow_name"`
	ExecutionID  string    `json:"execution_id"`
}

// RunStarted is emitted after the execution row commits, before the first
// node runs.
type RunStarted struct {
	BaseEvent

	Input map[string]any `json:"input,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	NodeName string        `json:"node_name,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// StepRecorded is emitted after a step row is persisted, including skip
// rows and failed attempts.
type StepRecorded struct {
	BaseEvent

	NodeName     string `json:"node_name"`
	NodeID       int    `json:"node_id"`
	StatusCode   int    `json:"status_code"`
	Skipped      bool   `json:"skipped"`
	AttemptCount int    `json:"attempt_count"`
}

func (e StepRecorded) GetType() EventType {
	return StepRecordedEvent
}
