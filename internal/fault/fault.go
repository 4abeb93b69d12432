// Package fault is the error taxonomy shared by every operation. Callers
// branch on Kind instead of matching message strings; handlers map kinds to
// HTTP status codes in one place.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Unknown Kind = iota
	NotFound
	Conflict
	Validation
	FailedPrecondition
	FrozenState
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Validation:
		return "validation"
	case FailedPrecondition:
		return "failed_precondition"
	case FrozenState:
		return "frozen_state"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	// Field names the offending field for conflicts and validation errors
	// (e.g. "dni", "email", "hora") so clients get a precise message.
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Msg
	}
	return e.Msg
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Field(kind Kind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or Unknown for untyped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a taxonomy kind to the response status convention:
// 404 for missing entities, 409 for uniqueness conflicts, 400 for every
// business-rule failure, 500 for anything unclassified.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Validation, FailedPrecondition, FrozenState:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
