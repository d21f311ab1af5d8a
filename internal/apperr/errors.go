package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	NotFound           Kind = "not_found"
	InvalidState       Kind = "invalid_state"
	InvalidToken       Kind = "invalid_token"
	InvalidArgument    Kind = "invalid_argument"
	InsufficientFunds  Kind = "insufficient_funds"
	AlreadyProcessed   Kind = "already_processed"
	AlreadyExists      Kind = "already_exists"
	ExternalFailure    Kind = "external_failure"
	PersistenceFailure Kind = "persistence_failure"
)

// Error is the typed failure returned by the ticket, wallet and refund services.
// Reason is safe to show to riders and operators.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Persistence wraps a storage error unless it already carries a kind.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Wrap(PersistenceFailure, "storage operation failed", err)
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ReasonOf returns the human readable reason, falling back to the raw message.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case InvalidState, AlreadyProcessed, AlreadyExists:
		return http.StatusConflict
	case InvalidToken:
		return http.StatusUnauthorized
	case InvalidArgument:
		return http.StatusBadRequest
	case InsufficientFunds:
		return http.StatusPaymentRequired
	case ExternalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
