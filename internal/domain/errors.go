package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the portal API.

// ErrNotFound indicates a resource was not found. Cross-tenant lookups
// also surface as ErrNotFound so existence is never confirmed.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConflict indicates a resource already exists (duplicate client id, email, username).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or session.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrAccountInactive indicates the user exists but is not ACTIVE.
type ErrAccountInactive struct {
	Status UserStatus
}

func (e *ErrAccountInactive) Error() string {
	return "account is not active"
}

// ErrInvalidToken indicates an invite or reset token that is unknown,
// expired or already used. The message never says which.
type ErrInvalidToken struct{}

func (e *ErrInvalidToken) Error() string {
	return "invalid or expired token"
}

// ErrRateLimited indicates too many attempts inside the limiter window.
type ErrRateLimited struct {
	Action string
}

func (e *ErrRateLimited) Error() string {
	return "too many attempts, please try again later"
}

// ErrLastOwner is returned when an operation would leave an agency without
// an ACTIVE OWNER.
type ErrLastOwner struct {
	AgencyID string
}

func (e *ErrLastOwner) Error() string {
	return "agency must keep at least one active owner"
}

// ErrUnsupportedSchema is returned when a stored document was written by a
// newer schema than this build understands.
type ErrUnsupportedSchema struct {
	Document string
	Version  int
	Max      int
}

func (e *ErrUnsupportedSchema) Error() string {
	return fmt.Sprintf("%s schema version %d is newer than supported version %d", e.Document, e.Version, e.Max)
}

// IsNotFound reports whether err is (or wraps) an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
