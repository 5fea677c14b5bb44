package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{"validation maps to 400", ErrCodeValidationMalformedReference, http.StatusBadRequest},
		{"verify maps to 403", ErrCodeVerifySignatureMismatch, http.StatusForbidden},
		{"not found maps to 404", ErrCodeNotFoundInvoice, http.StatusNotFound},
		{"conflict maps to 409", ErrCodeConflictConcurrent, http.StatusConflict},
		{"upstream maps to 502", ErrCodeUpstreamGateway, http.StatusBadGateway},
		{"internal maps to 500", ErrCodeInternalDB, http.StatusInternalServerError},
		{"unknown maps to 500", ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "failed to load invoice", cause)

	assert.Equal(t, "internal_database_error: failed to load invoice", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	var appErr *AppError
	require.True(t, errors.As(error(err), &appErr))
	assert.Equal(t, ErrCodeInternalDB, appErr.Code)
}

func TestAppError_WithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeVerifyAmountMismatch, "amount mismatch", nil,
		map[string]any{"invoice_id": int64(42)})

	extended := base.WithDetails(map[string]any{"gross": "499.02"})

	assert.Len(t, base.Details, 1)
	assert.Len(t, extended.Details, 2)
	assert.Equal(t, int64(42), extended.Details["invoice_id"])
	assert.Equal(t, "499.02", extended.Details["gross"])
}
