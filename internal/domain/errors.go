package domain

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
)

// ErrorType is the stable, client-visible classification of a failure.
type ErrorType string

const (
	ErrorInvalidPhoneNumber ErrorType = "INVALID_PHONE_NUMBER"
	ErrorRateLimitExceeded  ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrorOTPNotFound        ErrorType = "OTP_NOT_FOUND"
	ErrorOTPMismatch        ErrorType = "OTP_MISMATCH"
	ErrorOTPDelivery        ErrorType = "OTP_DELIVERY_ERROR"
	ErrorSuspiciousActivity ErrorType = "SUSPICIOUS_ACTIVITY"
	ErrorAccountBanned      ErrorType = "ACCOUNT_BANNED"
	ErrorWhatsAppConnection ErrorType = "WHATSAPP_CONNECTION_ERROR"
	ErrorInternal           ErrorType = "INTERNAL_SERVER_ERROR"
)

// AppError carries a client-facing type, message and status code.
// Wrapped causes stay server-side.
type AppError struct {
	Type    ErrorType
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return string(e.Type) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Type) + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches an AppError with the same Type and Message, so wrapped copies
// still compare equal to the package-level values below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == e.Message
}

// Wrap returns a copy of e carrying cause.
func (e *AppError) Wrap(cause error) *AppError {
	c := *e
	c.Err = cause
	return &c
}

var (
	ErrInvalidPhoneNumber = &AppError{Type: ErrorInvalidPhoneNumber, Message: "Invalid phone number format", Status: http.StatusBadRequest}
	ErrRateLimited        = &AppError{Type: ErrorRateLimitExceeded, Message: "Too many OTP requests. Please try again later", Status: http.StatusTooManyRequests}
	ErrOTPAlreadySent     = &AppError{Type: ErrorRateLimitExceeded, Message: "OTP already sent. Please wait for it to expire", Status: http.StatusTooManyRequests}
	ErrOTPNotFound        = &AppError{Type: ErrorOTPNotFound, Message: "No OTP found or OTP expired", Status: http.StatusBadRequest}
	ErrOTPMismatch        = &AppError{Type: ErrorOTPMismatch, Message: "Incorrect OTP", Status: http.StatusBadRequest}
	ErrDeliveryFailed     = &AppError{Type: ErrorOTPDelivery, Message: "Failed to send OTP via WhatsApp", Status: http.StatusServiceUnavailable}
	ErrSuspicious         = &AppError{Type: ErrorSuspiciousActivity, Message: "Suspicious activity detected", Status: http.StatusForbidden}
	ErrAccountBanned      = &AppError{Type: ErrorAccountBanned, Message: "Account is banned", Status: http.StatusForbidden}
	ErrTransport          = &AppError{Type: ErrorWhatsAppConnection, Message: "WhatsApp connection error", Status: http.StatusInternalServerError}
)
