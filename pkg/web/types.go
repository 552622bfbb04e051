package web

import "encoding/json"

// CreateWorkflowRequest creates a named definition. The document is kept as
// raw JSON; validation happens in the service layer.
type CreateWorkflowRequest struct {
	Name         string          `json:"name"         validate:"required,min=3"`
	WorkflowJSON json.RawMessage `json:"workflowJson" validate:"required"`
}

// UpdateWorkflowRequest replaces a definition's document.
type UpdateWorkflowRequest struct {
	WorkflowJSON json.RawMessage `json:"workflowJson" validate:"required"`
}

// uploadedDefinition is the shape of an uploaded definition file.
type uploadedDefinition struct {
	Name         string          `json:"name"`
	WorkflowJSON json.RawMessage `json:"workflowJson"`
}
