package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

// Error codes for consistent error responses across handlers
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodePoolExhausted      = "POOL_EXHAUSTED"
	ErrCodePriceUnavailable   = "PRICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorResponse is the error payload shape for all endpoints
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: c.GetString("request_id"),
		Retryable: status == 503,
	})
}

// errorMessage prefers the domain error's message over the raw error chain
func errorMessage(err error, fallback string) string {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return fallback
}
