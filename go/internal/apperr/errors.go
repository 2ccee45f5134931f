package apperr

import "errors"

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Storage wraps a collaborator failure.
func Storage(message string, cause error) *Error {
	return Wrap(CodeStorage, message, cause)
}

var (
	ErrAlreadyActive      = New(CodeAlreadyActive, "a round is already active for this mode")
	ErrNotRunning         = New(CodeNotRunning, "Game is not currently running")
	ErrRoundNotFound      = New(CodeRoundNotFound, "round not found")
	ErrUnknownOption      = New(CodeUnknownOption, "option is not part of this game mode")
	ErrUnknownMode        = New(CodeUnknownMode, "unknown game mode")
	ErrModeMismatch       = New(CodeModeMismatch, "game mode does not match round")
	ErrStatusConflict     = New(CodeStatusConflict, "round status changed concurrently")
	ErrInvalidAmount      = New(CodeInvalidAmount, "amount must be greater than zero")
	ErrInsufficientFunds  = New(CodeInsufficientFunds, "Insufficient funds")
	ErrAlreadySettled     = New(CodeAlreadySettled, "wager already settled")
	ErrWagerNotFound      = New(CodeWagerNotFound, "wager not found")
	ErrAccountNotFound    = New(CodeAccountNotFound, "account not found")
	ErrAccountInactive    = New(CodeAccountInactive, "account is not active")
	ErrInvalidCredentials = New(CodeInvalidCredentials, "Invalid credentials")
	ErrNotAuthenticated   = New(CodeNotAuthenticated, "not authenticated")
	ErrInvalidMessage     = New(CodeInvalidMessage, "Invalid message format")
	ErrUnknownMessage     = New(CodeUnknownMessage, "Unknown message type")
)

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf classifies err. Errors that are not domain errors count as persistence failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Code.Kind()
	}
	return KindPersistence
}

// MessageOf returns a message safe to show a client. Persistence details are hidden.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Code.Kind() != KindPersistence && e.Code.Kind() != KindUnknown {
		return e.Message
	}
	return fallback
}
