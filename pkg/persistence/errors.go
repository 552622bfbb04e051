// Package persistence provides standardized error types for persistence operations.
package persistence

import "errors"

var (
	// ErrDefinitionNotFound indicates no workflow definition exists for the given name.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrDefinitionExists indicates a definition with the same name already exists.
	ErrDefinitionExists = errors.New("workflow definition already exists")

	// ErrDefinitionInUse indicates the definition is referenced by at least
	// one execution and cannot be deleted.
	ErrDefinitionInUse = errors.New("workflow definition is referenced by executions")

	// ErrExecutionNotFound indicates no execution exists for the given ID.
	ErrExecutionNotFound = errors.New("workflow execution not found")
)

// IsDefinitionNotFound checks whether err represents a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsExecutionNotFound checks whether err represents a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
