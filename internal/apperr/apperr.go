package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for callers that need to react to it.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindUpstream    Kind = "upstream"
	KindInternal    Kind = "internal"
)

// Error carries a kind, a dotted operation code and the underlying cause.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the failure class.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns "<operation>.<reason>".
func (e *Error) Code() string {
	return e.code
}

// Reason returns the last segment of the code.
func (e *Error) Reason() string {
	if idx := strings.LastIndex(e.code, "."); idx >= 0 {
		return e.code[idx+1:]
	}
	return e.code
}

// Message is the caller-facing explanation. It never contains storage detail.
func (e *Error) Message() string {
	if e.message != "" {
		return e.message
	}
	return strings.ReplaceAll(e.Reason(), "_", " ")
}

// New builds an Error for operation and reason.
func New(kind Kind, operation, reason string, cause error) *Error {
	return &Error{kind: kind, code: operation + "." + reason, err: cause}
}

// WithMessage returns a copy carrying a caller-facing message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{kind: e.kind, code: e.code, message: message, err: e.err}
}

func NotFound(operation, reason string) *Error {
	return New(KindNotFound, operation, reason, nil)
}

func Validation(operation, reason, message string) *Error {
	return New(KindValidation, operation, reason, nil).WithMessage(message)
}

func Conflict(operation, reason, message string) *Error {
	return New(KindConflict, operation, reason, nil).WithMessage(message)
}

func Internal(operation, reason string, cause error) *Error {
	return New(KindInternal, operation, reason, cause)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
