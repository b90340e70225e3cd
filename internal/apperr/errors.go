// Package apperr defines the error kinds shared by the service layer and mapped to
// transport status codes by the gateway.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("service unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldError describes one problem with one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level problems found before any calculation runs.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Add records a problem; chainable so validators read top to bottom.
func (e *ValidationError) Add(field, format string, args ...interface{}) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	return e
}

// OrNil returns nil when no problem was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func NotFound(entity string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Fields extracts the field list of a validation error anywhere in the chain.
func Fields(err error) []FieldError {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Fields
	}
	return nil
}

// FromDB maps a gorm lookup error for entity id onto the error kinds above.
func FromDB(err error, entity string, id interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(entity, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Conflict("%s %v already exists", entity, id)
	default:
		return fmt.Errorf("%s %v: %w", entity, id, err)
	}
}
