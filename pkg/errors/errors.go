package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrBadRequest          = errors.New("bad request")
	ErrConflict            = errors.New("resource conflict")
	ErrInternal            = errors.New("internal server error")
	ErrValidation          = errors.New("validation error")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrUnknownReference    = errors.New("unknown reference")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrSameOutletTransfer  = errors.New("transfer source and destination are the same outlet")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	ErrIntegrityViolation  = errors.New("ledger integrity violation")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Ledger error constructors

// InvalidQuantity is returned when a movement quantity is zero or negative.
func InvalidQuantity(quantity int) *AppError {
	return &AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    fmt.Sprintf("quantity must be positive, got %d", quantity),
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"quantity": strconv.Itoa(quantity),
		},
	}
}

// UnknownReference is returned when an item or outlet id does not exist.
func UnknownReference(kind, id string) *AppError {
	return &AppError{
		Err:        ErrUnknownReference,
		Code:       "UNKNOWN_REFERENCE",
		Message:    fmt.Sprintf("unknown %s: %s", kind, id),
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			kind: id,
		},
	}
}

// InsufficientStock is returned when a stock-decreasing movement exceeds the
// available quantity. Carries both values for display.
func InsufficientStock(available, requested int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock: %d available, %d requested", available, requested),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"available": strconv.Itoa(available),
			"requested": strconv.Itoa(requested),
		},
	}
}

// SameOutletTransfer is returned when a transfer names the same outlet on both sides.
func SameOutletTransfer(outletID string) *AppError {
	return &AppError{
		Err:        ErrSameOutletTransfer,
		Code:       "SAME_OUTLET_TRANSFER",
		Message:    "cannot transfer stock to the same outlet",
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"outlet": outletID,
		},
	}
}

// ConcurrencyConflict is returned when conflict retries are exhausted.
func ConcurrencyConflict() *AppError {
	return &AppError{
		Err:        ErrConcurrencyConflict,
		Code:       "CONCURRENCY_CONFLICT",
		Message:    "operation aborted after repeated concurrent update conflicts",
		StatusCode: http.StatusConflict,
	}
}

// IntegrityViolation is returned when a position's cached quantity diverges
// from its event history, or a projection goes negative. Writes to the
// position are rejected until it is rebuilt from replay.
func IntegrityViolation(itemID, outletID string, cached, projected int) *AppError {
	return &AppError{
		Err:        ErrIntegrityViolation,
		Code:       "INTEGRITY_VIOLATION",
		Message:    "position diverges from its event history and is locked for reconciliation",
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"item_id":   itemID,
			"outlet_id": outletID,
			"cached":    strconv.Itoa(cached),
			"projected": strconv.Itoa(projected),
		},
	}
}

// PositionFlagged is returned when a mutation targets a position that is
// flagged for reconciliation. No event is written.
func PositionFlagged(itemID, outletID string) *AppError {
	return &AppError{
		Err:        ErrIntegrityViolation,
		Code:       "POSITION_FLAGGED",
		Message:    "position is flagged for reconciliation; rebuild it before writing",
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"item_id":   itemID,
			"outlet_id": outletID,
		},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
