package models

import (
	"encoding/json"
	"strings"
)

// Node is one step's specification inside a workflow document. The id is
// unique within the document but is used only for display ordering; nodes
// execute in document-array order. The name keys the node's parsed response
// in the execution context and is part of the idempotency identity.
type Node struct {
	ID             int            `json:"id"`
	Name           string         `json:"name"`
	Condition      string         `json:"condition"`
	IdempotencyKey *string        `json:"idempotency_key"`
	RequestURL     string         `json:"request_url"`
	Method         string         `json:"method"`
	RequestBody    map[string]any `json:"request_body"`
	RequestHeaders map[string]any `json:"request_headers"`
	QueryParams    map[string]any `json:"query_params"`
	Retry          int            `json:"retry"`

	// rawCondition keeps the pre-default value so validation can tell a
	// blank condition apart from an absent one.
	rawCondition *string
}

func (n *Node) UnmarshalJSON(data []byte) error {
	type nodeAlias Node

	var alias nodeAlias

	err := json.Unmarshal(data, &alias)
	if err != nil {
		return err
	}

	*n = Node(alias)

	var probe struct {
		Condition *string `json:"condition"`
	}

	if err := json.Unmarshal(data, &probe); err == nil {
		n.rawCondition = probe.Condition
	}

	return nil
}

func (n *Node) applyDefaults() {
	if n.Condition == "" {
		n.Condition = "true"
	}

	if n.Method == "" {
		n.Method = "GET"
	} else {
		n.Method = strings.ToUpper(n.Method)
	}

	if n.Retry < 0 {
		n.Retry = 0
	}
}

// HasIdempotencyKey reports whether the node opted into the idempotency
// guard by declaring an idempotency_key template.
func (n *Node) HasIdempotencyKey() bool {
	return n.IdempotencyKey != nil
}
