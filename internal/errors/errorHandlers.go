// File: mathtutor_go_backend/internal/errors/errorHandlers.go

package errors

import (
	stderrors "errors"
	"net/http"

	"mathtutor_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeInvalidToken        ErrorType = "INVALID_TOKEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeInsufficientCredits ErrorType = "INSUFFICIENT_CREDITS"
	ErrorTypeUpstreamFailure     ErrorType = "UPSTREAM_FAILURE"
	ErrorTypeSignatureFailure    ErrorType = "SIGNATURE_FAILURE"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new validation error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error is returned when no usable bearer credential was presented
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, nil)
}

// NewInvalidTokenError is returned when the credential fails signature, expiry or claim checks
func NewInvalidTokenError(internal error) *CustomError {
	return newError(ErrorTypeInvalidToken, "Invalid Token", http.StatusUnauthorized, internal)
}

// NewTokenError rejects an email verification link
func NewTokenError(message string, internal error) *CustomError {
	return newError(ErrorTypeInvalidToken, message, http.StatusUnauthorized, internal)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

func New402Error() *CustomError {
	return newError(ErrorTypeInsufficientCredits, "Insufficient credits", http.StatusPaymentRequired, nil)
}

// NewUpstreamError wraps a failure of the generative or payment provider
func NewUpstreamError(internal error) *CustomError {
	return newError(ErrorTypeUpstreamFailure, "Upstream service failed", http.StatusInternalServerError, internal)
}

func NewSignatureError(internal error) *CustomError {
	return newError(ErrorTypeSignatureFailure, "Webhook signature verification failed", http.StatusBadRequest, internal)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromService maps service-layer sentinel errors onto the HTTP taxonomy.
func FromService(err error) *CustomError {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr
	}

	var validationErr *services.ValidationError
	var upstreamErr *services.UpstreamError
	switch {
	case stderrors.As(err, &validationErr):
		return New400Error(validationErr.Message)
	case stderrors.As(err, &upstreamErr):
		return NewUpstreamError(err)
	case stderrors.Is(err, services.ErrEmailTaken):
		return New400Error("User already exists")
	case stderrors.Is(err, services.ErrInvalidCredentials):
		return newError(ErrorTypeUnauthorized, "Invalid email or password", http.StatusUnauthorized, nil)
	case stderrors.Is(err, services.ErrUserNotFound):
		return New404Error("User not found")
	case stderrors.Is(err, services.ErrChatNotFound):
		return New404Error("Chat not found")
	case stderrors.Is(err, services.ErrNoActiveSubscription):
		return New404Error("No active subscription found")
	case stderrors.Is(err, services.ErrInsufficientCredits):
		return New402Error()
	case stderrors.Is(err, services.ErrSignature):
		return NewSignatureError(err)
	default:
		return New500Error(err)
	}
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := FromService(err)

	logger := zerolog.Ctx(c.Request.Context())
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	switch customErr.Type {
	case ErrorTypeInternalServerError, ErrorTypeUpstreamFailure:
		logger.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Str("type", string(customErr.Type)).
			Msg("Request failed")
	case ErrorTypeSignatureFailure, ErrorTypeInvalidToken:
		logger.Warn().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg(customErr.Message)
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}
