// Package apperr provides coded domain errors for the game engine.
package apperr

// Code is a machine-readable error code. It is sent to clients alongside the message.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Round errors
	CodeAlreadyActive  Code = "ALREADY_ACTIVE"
	CodeNotRunning     Code = "NOT_RUNNING"
	CodeRoundNotFound  Code = "ROUND_NOT_FOUND"
	CodeUnknownOption  Code = "UNKNOWN_OPTION"
	CodeUnknownMode    Code = "UNKNOWN_MODE"
	CodeModeMismatch   Code = "MODE_MISMATCH"
	CodeStatusConflict Code = "STATUS_CONFLICT"

	// Wager and ledger errors
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeAlreadySettled    Code = "ALREADY_SETTLED"
	CodeWagerNotFound     Code = "WAGER_NOT_FOUND"

	// Account errors
	CodeAccountNotFound    Code = "ACCOUNT_NOT_FOUND"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeNotAuthenticated   Code = "NOT_AUTHENTICATED"

	// Message errors
	CodeInvalidMessage Code = "INVALID_MESSAGE"
	CodeUnknownMessage Code = "UNKNOWN_MESSAGE"

	// Collaborator errors
	CodeStorage Code = "STORAGE"
)

// Kind groups codes by how the engine reacts to them.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindPersistence Kind = "persistence"
	KindUnknown     Kind = "unknown"
)

var codeKinds = map[Code]Kind{
	CodeNotRunning:         KindValidation,
	CodeRoundNotFound:      KindValidation,
	CodeUnknownOption:      KindValidation,
	CodeUnknownMode:        KindValidation,
	CodeModeMismatch:       KindValidation,
	CodeInvalidAmount:      KindValidation,
	CodeInsufficientFunds:  KindValidation,
	CodeAccountNotFound:    KindValidation,
	CodeAccountInactive:    KindValidation,
	CodeInvalidCredentials: KindValidation,
	CodeNotAuthenticated:   KindValidation,
	CodeInvalidMessage:     KindValidation,
	CodeUnknownMessage:     KindValidation,
	CodeWagerNotFound:      KindValidation,
	CodeAlreadyActive:      KindConflict,
	CodeAlreadySettled:     KindConflict,
	CodeStatusConflict:     KindConflict,
	CodeStorage:            KindPersistence,
}

// Kind returns the taxonomy bucket for the code.
func (c Code) Kind() Kind {
	if k, ok := codeKinds[c]; ok {
		return k
	}
	return KindUnknown
}
