// Package errors provides the error taxonomy shared by the agent packages.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrValidation          = errors.New("validation failed")
	ErrPrecondition        = errors.New("precondition failed")
	ErrDataUnavailable     = errors.New("market data unavailable")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrInternal            = errors.New("internal error")
	ErrNotFound            = errors.New("not found")
	ErrBusy                = errors.New("agent busy")
	ErrMarketClosed        = errors.New("market is closed")
	ErrTimeout             = errors.New("operation timed out")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDatabaseError       = errors.New("database error")
	ErrOrderRejected       = errors.New("order rejected")
)

// ValidationError represents a rejected input field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// PreconditionError is returned when an operation is not valid in the
// current agent state.
type PreconditionError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed [%s]: %s", e.Operation, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// NewPreconditionError creates a new PreconditionError.
func NewPreconditionError(operation, reason string) *PreconditionError {
	return &PreconditionError{
		Operation: operation,
		Reason:    reason,
	}
}

// DataUnavailableError wraps every market data failure, including timeouts.
type DataUnavailableError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data unavailable [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data unavailable [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

func (e *DataUnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}

// NewDataUnavailableError creates a new DataUnavailableError.
func NewDataUnavailableError(dataType, symbol, message string, err error) *DataUnavailableError {
	return &DataUnavailableError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// InsufficientCapitalError reports a trade whose cost exceeds available capital.
type InsufficientCapitalError struct {
	Symbol    string
	Required  float64
	Available float64
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("insufficient capital for %s (required: %.2f, available: %.2f)", e.Symbol, e.Required, e.Available)
}

func (e *InsufficientCapitalError) Is(target error) bool {
	return target == ErrInsufficientCapital
}

// NewInsufficientCapitalError creates a new InsufficientCapitalError.
func NewInsufficientCapitalError(symbol string, required, available float64) *InsufficientCapitalError {
	return &InsufficientCapitalError{
		Symbol:    symbol,
		Required:  required,
		Available: available,
	}
}

// InternalError represents an unexpected failure such as a storage error.
type InternalError struct {
	Operation string
	Err       error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error [%s]: %v", e.Operation, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// NewInternalError creates a new InternalError.
func NewInternalError(operation string, err error) *InternalError {
	return &InternalError{
		Operation: operation,
		Err:       err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
