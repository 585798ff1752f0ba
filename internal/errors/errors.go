// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParam is returned by action handlers when a required param is missing or malformed.
	ErrInvalidParam = errors.New("invalid action param")
	// ErrUnknownAction is recorded when a rule references an action type with no handler.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrClaimLost means another consumer now owns the row.
	ErrClaimLost = errors.New("claim lost")
	// ErrInvalidMessageID is returned for provider message ids that are empty.
	ErrInvalidMessageID = errors.New("invalid provider message id")
)

// NotFoundError is returned by repositories when a row does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidParam wraps ErrInvalidParam with the offending key.
func InvalidParam(key, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidParam, key, reason)
}
