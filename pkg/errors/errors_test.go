package errors_test

import (
	"net/http"
	"testing"

	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *errors.AppError
		sentinel   error
		code       string
		statusCode int
	}{
		{"invalid quantity", errors.InvalidQuantity(-3), errors.ErrInvalidQuantity, "INVALID_QUANTITY", http.StatusBadRequest},
		{"unknown reference", errors.UnknownReference("item", "item-99"), errors.ErrUnknownReference, "UNKNOWN_REFERENCE", http.StatusBadRequest},
		{"insufficient stock", errors.InsufficientStock(5, 10), errors.ErrInsufficientStock, "INSUFFICIENT_STOCK", http.StatusConflict},
		{"same outlet transfer", errors.SameOutletTransfer("outlet-a"), errors.ErrSameOutletTransfer, "SAME_OUTLET_TRANSFER", http.StatusBadRequest},
		{"concurrency conflict", errors.ConcurrencyConflict(), errors.ErrConcurrencyConflict, "CONCURRENCY_CONFLICT", http.StatusConflict},
		{"integrity violation", errors.IntegrityViolation("item-1", "outlet-a", 55, 70), errors.ErrIntegrityViolation, "INTEGRITY_VIOLATION", http.StatusConflict},
		{"position flagged", errors.PositionFlagged("item-1", "outlet-a"), errors.ErrIntegrityViolation, "POSITION_FLAGGED", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.statusCode, tt.err.StatusCode)
		})
	}
}

func TestInsufficientStockDetails(t *testing.T) {
	err := errors.InsufficientStock(20, 25)
	assert.Equal(t, "20", err.Details["available"])
	assert.Equal(t, "25", err.Details["requested"])
	assert.Contains(t, err.Message, "20 available")
	assert.Contains(t, err.Message, "25 requested")
}

func TestIntegrityViolationDetails(t *testing.T) {
	err := errors.IntegrityViolation("item-42", "", 55, 70)
	assert.Equal(t, "item-42", err.Details["item_id"])
	assert.Equal(t, "55", err.Details["cached"])
	assert.Equal(t, "70", err.Details["projected"])
}

func TestAppError_Unwrap(t *testing.T) {
	wrapped := errors.Wrap(errors.ErrIntegrityViolation, "INTEGRITY_VIOLATION", "projection is negative", http.StatusInternalServerError)

	var appErr *errors.AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.True(t, errors.Is(wrapped, errors.ErrIntegrityViolation))
}
