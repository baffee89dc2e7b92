// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrEmptyClinicID    = errors.New("clinic ID cannot be empty")
	ErrEmptyPatientID   = errors.New("patient ID cannot be empty")
	ErrFlowNameRequired = errors.New("flow name is required")
	ErrFlowNil          = errors.New("flow cannot be nil")
	ErrInvalidGraph     = errors.New("invalid flow graph")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrEmptyClinicID) ||
		errors.Is(err, ErrEmptyPatientID) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrInvalidGraph) ||
		models.IsGraphError(err) ||
		engine.IsInvalidResponse(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return engine.IsConflict(err) ||
		errors.Is(err, engine.ErrNoForwardProgress) ||
		persistence.IsExecutionConflict(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
