package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/ir"
)

// Error is a failure detected while executing an operation.
// Every Error is raised before any write is committed, so the state
// the caller observes afterwards is exactly the state before the call.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Stream, Ledger, RecordID and Actor locate the failure when known.
	Stream   string       `json:"stream,omitempty"`
	Ledger   string       `json:"ledger,omitempty"`
	RecordID uint64       `json:"record_id,omitempty"`
	Actor    ir.Principal `json:"actor,omitempty"`
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeNotInitialized means the stream's counter was never set up.
	CodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// CodeUnauthorized means the caller did not prove control of a principal.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeNotFound means the referenced record or aggregate is absent.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeForbidden means the caller is authenticated but not entitled.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// CodeInvalidArgument means the input could not be accepted as given.
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// CodeOverflow means a counter or total would exceed its range under
	// OverflowReject.
	CodeOverflow ErrorCode = "OVERFLOW"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrNotInitialized  = &Error{Code: CodeNotInitialized}
	ErrUnauthorized    = &Error{Code: CodeUnauthorized}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrForbidden       = &Error{Code: CodeForbidden}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument}
	ErrOverflow        = &Error{Code: CodeOverflow}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	switch {
	case e.Stream != "" && e.RecordID != 0:
		return fmt.Sprintf("%s (stream=%s, id=%d)", msg, e.Stream, e.RecordID)
	case e.Stream != "":
		return fmt.Sprintf("%s (stream=%s)", msg, e.Stream)
	case e.Ledger != "" && e.Actor != "":
		return fmt.Sprintf("%s (ledger=%s, actor=%s)", msg, e.Ledger, e.Actor)
	case e.Ledger != "":
		return fmt.Sprintf("%s (ledger=%s)", msg, e.Ledger)
	}
	return msg
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotInitialized reports whether err is a NOT_INITIALIZED error.
func IsNotInitialized(err error) bool { return CodeOf(err) == CodeNotInitialized }

// IsUnauthorized reports whether err is an UNAUTHORIZED error.
func IsUnauthorized(err error) bool { return CodeOf(err) == CodeUnauthorized }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsForbidden reports whether err is a FORBIDDEN error.
func IsForbidden(err error) bool { return CodeOf(err) == CodeForbidden }

func notInitialized(stream string) *Error {
	return &Error{
		Code:    CodeNotInitialized,
		Message: "stream has no counter; run init first",
		Stream:  stream,
	}
}

func unauthorized(p ir.Principal) *Error {
	return &Error{
		Code:    CodeUnauthorized,
		Message: fmt.Sprintf("caller has not proven control of %q", p),
		Actor:   p,
	}
}

func recordNotFound(stream string, id uint64) *Error {
	return &Error{
		Code:     CodeNotFound,
		Message:  "no record with this id",
		Stream:   stream,
		RecordID: id,
	}
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}
