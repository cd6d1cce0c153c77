// Package apperr defines the error taxonomy shared by the order workflow and
// its collaborators. Typed errors unwrap to package-level sentinels so callers
// can branch with errors.Is and still read details with errors.As.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Entity names used in NotFoundError and ConflictError.
const (
	EntityUser            = "user"
	EntityShippingAddress = "shipping address"
	EntityProduct         = "product"
	EntityOrder           = "order"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when a reservation exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict is returned when an operation is blocked by existing references.
	ErrConflict = errors.New("referential conflict")
	// ErrInvalid is returned when a request fails validation.
	ErrInvalid = errors.New("invalid request")
)

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Entity string
	ID     string
}

// NotFound builds a NotFoundError for the given entity and identifier.
func NotFound(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError reports a reservation that would drive stock negative.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %d (%s): requested %d, available %d",
		e.ProductID, e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ConflictError reports a deletion blocked by existing references.
type ConflictError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot delete %s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError describes a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

// Invalid builds a ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }
