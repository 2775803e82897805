package trading

import "fmt"

// ErrorKind classifies lifecycle failures
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindInvalidState
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unexpected"
	}
}

// Error is returned by every Service operation that fails
type Error struct {
	Kind    ErrorKind
	Field   string // set for validation errors
	Status  string // current trade status, set for invalid state errors
	Message string
	Err     error // underlying cause for unexpected errors, never shown to callers
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrInvalidState  = &Error{Kind: KindInvalidState}
	ErrUnexpected    = &Error{Kind: KindUnexpected}
)

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func notFoundError(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("Trade %s not found", id)}
}

func authorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func invalidStateError(current, required string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Status:  current,
		Message: fmt.Sprintf("Trade is %s, expected %s", current, required),
	}
}

func unexpectedError(message string, err error) *Error {
	return &Error{Kind: KindUnexpected, Message: message, Err: err}
}
