package store

import (
	"fmt"
	"strconv"
)

// NotFoundError indicates the resource does not exist, is soft-deleted, or
// is excluded by the caller's owner filter.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NotFound builds a NotFoundError for a numeric id.
func NotFound(resource string, id int64) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: strconv.FormatInt(id, 10)}
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a uniqueness violation, such as two live messages
// sharing one index.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
