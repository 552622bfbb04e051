// Package models defines the core domain models for HTTP call-chain workflows.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// WorkflowDefinition is a named, versionless workflow document. The name is
// the identity; the document itself is stored as raw JSON and parsed at run
// time.
type WorkflowDefinition struct {
	Name         string    `json:"name"         validate:"required,min=3"`
	WorkflowJSON string    `json:"workflowJson" validate:"required"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Document is the parsed shape of WorkflowJSON.
type Document struct {
	Nodes []*Node `json:"nodes"`
}

// documentSchema describes the required document shape. Node id uniqueness
// and blank conditions are checked separately; JSON Schema cannot express
// them.
var documentSchema = map[string]any{
	"type":     "object",
	"required": []any{"nodes"},
	"properties": map[string]any{
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "name", "request_url"},
				"properties": map[string]any{
					"id":              map[string]any{"type": "integer"},
					"name":            map[string]any{"type": "string", "minLength": 1},
					"request_url":     map[string]any{"type": "string", "minLength": 1},
					"condition":       map[string]any{"type": "string"},
					"idempotency_key": map[string]any{"type": "string"},
					"method":          map[string]any{"type": "string"},
					"request_body":    map[string]any{"type": "object"},
					"request_headers": map[string]any{"type": "object"},
					"query_params":    map[string]any{"type": "object"},
					"retry":           map[string]any{"type": "integer", "minimum": 0},
				},
			},
		},
	},
}

// ErrInvalidDocument indicates the workflow document failed validation.
var ErrInvalidDocument = errors.New("invalid workflow document")

// ValidateDocument checks a raw workflow document against the expected
// shape: a nodes array whose entries carry id, name and request_url, with
// unique ids and non-blank conditions. Performed on create/update/upload,
// never at run time.
func ValidateDocument(raw string) error {
	schemaLoader := gojsonschema.NewGoLoader(documentSchema)
	documentLoader := gojsonschema.NewStringLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(details, "; "))
	}

	document, err := ParseDocument(raw)
	if err != nil {
		return err
	}

	seen := make(map[int]bool, len(document.Nodes))

	for _, node := range document.Nodes {
		if seen[node.ID] {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidDocument, node.ID)
		}

		seen[node.ID] = true

		if node.rawCondition != nil && strings.TrimSpace(*node.rawCondition) == "" {
			return fmt.Errorf("%w: node %q has a blank condition", ErrInvalidDocument, node.Name)
		}
	}

	return nil
}

// ParseDocument parses a raw workflow document and applies per-node
// defaults (condition "true", method GET, retry 0).
func ParseDocument(raw string) (*Document, error) {
	var document Document

	err := json.Unmarshal([]byte(raw), &document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	for _, node := range document.Nodes {
		node.applyDefaults()
	}

	return &document, nil
}
