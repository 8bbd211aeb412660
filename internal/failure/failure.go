// Package failure defines the reason codes every stage of the question pipeline
// reports to callers.
package failure

import (
	"errors"
	"fmt"
)

type Reason string

const (
	EmptyQuestion          Reason = "EmptyQuestion"
	InvalidRequest         Reason = "InvalidRequest"
	ModelUnavailable       Reason = "ModelUnavailable"
	NoStatementFound       Reason = "NoStatementFound"
	MultipleStatements     Reason = "MultipleStatements"
	ForbiddenStatementKind Reason = "ForbiddenStatementKind"
	UnauthorizedTable      Reason = "UnauthorizedTable"
	UnsupportedSyntax      Reason = "UnsupportedSyntax"
	DatabaseUnavailable    Reason = "DatabaseUnavailable"
	QueryExecutionError    Reason = "QueryExecutionError"
	Internal               Reason = "Internal"
)

// Error is a pipeline failure with a caller-facing reason. SQL holds the
// statement that was attempted, when extraction got that far.
type Error struct {
	Reason Reason
	Detail string
	SQL    string
	Err    error
}

func New(reason Reason, detail string) *Error {
	return &Error{Reason: reason, Detail: detail}
}

func Newf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(reason Reason, err error, detail string) *Error {
	return &Error{Reason: reason, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithSQL returns a copy of e carrying the attempted statement.
func (e *Error) WithSQL(sql string) *Error {
	clone := *e
	clone.SQL = sql
	return &clone
}

// ReasonOf reports the reason carried by err, or Internal when err is not a
// pipeline failure.
func ReasonOf(err error) Reason {
	var failureErr *Error
	if errors.As(err, &failureErr) {
		return failureErr.Reason
	}
	return Internal
}

// Is reports whether err carries the given reason.
func Is(err error, reason Reason) bool {
	return err != nil && ReasonOf(err) == reason
}

// Expected reports whether the reason is a routine outcome of an imperfect
// model or caller, as opposed to a connectivity or internal fault.
func (r Reason) Expected() bool {
	switch r {
	case EmptyQuestion, InvalidRequest, NoStatementFound, MultipleStatements,
		ForbiddenStatementKind, UnauthorizedTable, UnsupportedSyntax, QueryExecutionError:
		return true
	default:
		return false
	}
}
