package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST_ERROR"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND_ERROR"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidVPA       ErrorCode = "INVALID_VPA"
	ErrCodeInvalidCard      ErrorCode = "INVALID_CARD"
	ErrCodeExpiredCard      ErrorCode = "EXPIRED_CARD"

	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"

	ErrCodePaymentFailed ErrorCode = "PAYMENT_FAILED"
	ErrCodeEnqueueFailed ErrorCode = "ENQUEUE_FAILED"
	ErrCodeInternal      ErrorCode = "INTERNAL_SERVER_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"description"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code and message so sentinels survive WithCause copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func newAppError(t ErrorType, status int, code ErrorCode, message string) *AppError {
	return &AppError{Type: t, Code: code, Message: message, StatusCode: status}
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, code, message)
}

// NewValidationFieldError also reports the offending field under details.
func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return NewValidationError(message, code).WithDetails(ValidationErrors{
		Errors: []ValidationError{{Field: field, Message: message, Code: string(code)}},
	})
}

func NewBadRequestError(message string) *AppError {
	return NewValidationError(message, ErrCodeBadRequest)
}

func NewNotFoundError(message string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, ErrCodeNotFound, message)
}

func NewUnauthorizedError(message string) *AppError {
	return newAppError(ErrorTypeUnauthorized, http.StatusUnauthorized, ErrCodeAuthentication, message)
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, code, message)
}

func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, ErrCodeInternal, message).WithCause(cause)
}

// NewUnavailableError marks a dependency outage the client may retry.
func NewUnavailableError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeExternal, http.StatusServiceUnavailable, code, message)
}

var (
	ErrOrderNotFound     = NewNotFoundError("Order not found")
	ErrPaymentNotFound   = NewNotFoundError("Payment not found")
	ErrRefundNotFound    = NewNotFoundError("Refund not found")
	ErrMerchantNotFound  = NewNotFoundError("Merchant not found")
	ErrWebhookNotFound   = NewNotFoundError("Webhook log not found")
	ErrInvalidAPIKey     = NewUnauthorizedError("Invalid API credentials")
	ErrNotCapturable     = NewBadRequestError("Payment not in capturable state")
	ErrNotRefundable     = NewBadRequestError("Payment not in refundable state")
	ErrRefundExceeds     = NewBadRequestError("Refund amount exceeds available amount")
	ErrNoWebhookURL      = NewBadRequestError("No webhook URL configured")
	ErrWebhookRetryRace  = NewConflictError("Webhook retry already requested", ErrCodeBadRequest)
	ErrQueueUnavailable  = NewUnavailableError("Unable to schedule processing, please retry", ErrCodeEnqueueFailed)
	ErrInvalidPayMethod  = NewBadRequestError("Invalid payment method")
	ErrMissingCardDetail = NewBadRequestError("Missing card details")
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code        ErrorCode   `json:"code"`
		Description string      `json:"description"`
		Details     interface{} `json:"details,omitempty"`
	}{
		Code:        e.Code,
		Description: e.GetDetailedMessage(),
		Details:     e.Details,
	})
}
