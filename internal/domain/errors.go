package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported to callers.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindParse         ErrorKind = "parse"
	KindPartialCommit ErrorKind = "partial_commit"
	KindCascade       ErrorKind = "cascade"
	KindNotFound      ErrorKind = "not_found"
	KindInvalidState  ErrorKind = "invalid_state"
	KindInternal      ErrorKind = "internal"
)

// Error is a typed outcome: a kind plus a human-readable message.
// SessionID is set for partial commits so the caller can retry or clean up.
type Error struct {
	Kind      ErrorKind
	Message   string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidationError reports bad user input.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NewParseError wraps a parser failure; the message is shown verbatim.
func NewParseError(err error) *Error {
	return &Error{Kind: KindParse, Message: err.Error(), Err: err}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewInvalidStateError reports an operation not allowed in the current state.
func NewInvalidStateError(msg string) *Error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

// NewPartialCommitError reports a commit that created a session but did not
// finish. The session may need repair.
func NewPartialCommitError(sessionID string, err error) *Error {
	return &Error{
		Kind:      KindPartialCommit,
		Message:   fmt.Sprintf("commit did not complete; upload session %s needs repair", sessionID),
		SessionID: sessionID,
		Err:       err,
	}
}

// NewCascadeError reports a delete cascade that stopped part way.
func NewCascadeError(entity, id string, err error) *Error {
	return &Error{
		Kind:    KindCascade,
		Message: fmt.Sprintf("deleting %s %s did not complete; reload before continuing", entity, id),
		Err:     err,
	}
}

// ErrorKindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func ErrorKindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && ErrorKindOf(err) == kind
}
