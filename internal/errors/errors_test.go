package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrNoPendingReviewError, "req-123")

	assert.False(t, resp.Success)
	assert.Equal(t, ErrNoPendingReview, resp.Error.Code)
	assert.Equal(t, "req-123", resp.RequestID)
}

func TestSentinelStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ErrNoPendingReviewError.HTTPStatus)
	assert.Equal(t, http.StatusNotFound, ErrNoAcceptedShopError.HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidCredentialsError.HTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, ErrUpstreamUnavailableError.HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, ErrInternalServerError.HTTPStatus)
}

func TestConstructors(t *testing.T) {
	invalid := NewInvalidRequestError("shop_id is required")
	assert.Equal(t, ErrInvalidRequest, invalid.Code)
	assert.Equal(t, http.StatusBadRequest, invalid.HTTPStatus)
	assert.Equal(t, "shop_id is required", invalid.Message)

	validation := NewValidationError(map[string]string{"reason": "missing"})
	assert.Equal(t, ErrValidationFailed, validation.Code)
	assert.NotNil(t, validation.Details)

	notFound := NewNotFoundError("no such shop")
	assert.Equal(t, http.StatusNotFound, notFound.HTTPStatus)
}

func TestAPIErrorImplementsError(t *testing.T) {
	var err error = ErrNoPendingReviewError
	assert.Equal(t, "No pending review found for this shop", err.Error())
}
