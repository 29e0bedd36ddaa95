package services

import (
	"errors"
	"net/http"
)

// Sentinel errors raised by the balance mutators and reconciliation handlers.
// They are created close to their source and mapped to HTTP status codes only
// at the handler boundary.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidOrderState   = errors.New("invalid order state")
	ErrInvalidPaymentState = errors.New("invalid payment state")
	ErrInvalidRequestState = errors.New("invalid request state")
	ErrNotFound            = errors.New("not found")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrAmountTooSmall      = errors.New("amount too small")
)

// sendServiceError maps a service error onto the HTTP boundary. Unknown
// errors become a generic 500 so webhook callers trigger gateway redelivery.
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
	case errors.Is(err, ErrInvalidOrderState), errors.Is(err, ErrInvalidPaymentState), errors.Is(err, ErrInvalidRequestState):
		SendErrorResponse(w, "Invalid state transition", http.StatusConflict, nil)
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, "Not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrSignatureInvalid):
		SendErrorResponse(w, "Signature verification failed", http.StatusUnauthorized, nil)
	case errors.Is(err, ErrAmountTooSmall):
		SendErrorResponse(w, "Amount too small to convert", http.StatusUnprocessableEntity, nil)
	default:
		SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}
