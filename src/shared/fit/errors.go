package fit

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure for the actor that triggered it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPrecondition
	KindNotFound
	KindConflict
	KindCollaborator
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCollaborator:
		return "collaborator"
	case KindUnknown:
		return "unknown"
	}
	return "unknown"
}

// Store sentinels. Implementations wrap these so callers can match with errors.Is.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("unique constraint violated")
)

// Error carries a Kind plus the message shown to the actor.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf reports malformed or out-of-range input.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Preconditionf reports an entity in the wrong state for the requested transition.
func Preconditionf(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf reports a referenced entity that does not exist.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// Conflictf reports a uniqueness violation.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), Err: ErrConflict}
}

// Collaborator wraps a store or notifier I/O failure.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindCollaborator, Message: op, Err: err}
}

// KindOf extracts the Kind of err. Bare store sentinels map to their kinds.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindUnknown
}

// UserMessage returns the text suitable for replying to the actor.
func UserMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case KindCollaborator, KindUnknown:
			return "Something went wrong, please try again later."
		case KindValidation, KindPrecondition, KindNotFound, KindConflict:
			return fe.Message
		}
	}
	return "Something went wrong, please try again later."
}
