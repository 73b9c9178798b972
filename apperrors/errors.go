// Package apperrors defines the error kinds returned by workflow operations.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind classifies an Error.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindIntegrityGap  Kind = "integrity_gap"
	KindValidation    Kind = "validation"
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindInternal      Kind = "internal"
)

// Error is the structured refusal returned by services.
type Error struct {
	Kind          Kind              `json:"kind"`
	Code          string            `json:"code"`
	Message       string            `json:"error"`
	Fields        map[string]string `json:"fields,omitempty"`
	CurrentState  string            `json:"current_state,omitempty"`
	RequiredRoles []string          `json:"required_roles,omitempty"`
	Input         interface{}       `json:"input,omitempty"`
	Cause         error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Authorization refuses an operation because the actor's role lacks capability.
func Authorization(capability string, allowedRoles []string) *Error {
	roles := append([]string(nil), allowedRoles...)
	sort.Strings(roles)
	return &Error{
		Kind:          KindAuthorization,
		Code:          "ACCESS_DENIED",
		Message:       fmt.Sprintf("access denied: %s requires role: %s", capability, strings.Join(roles, " or ")),
		RequiredRoles: roles,
	}
}

// NotOwner refuses an edit by someone other than the record owner.
func NotOwner(entity string) *Error {
	return &Error{
		Kind:          KindAuthorization,
		Code:          "NOT_OWNER",
		Message:       fmt.Sprintf("access denied: only the owner or an administrator may edit this %s", entity),
		RequiredRoles: []string{"admin", "owner"},
	}
}

// IntegrityGap reports a missing supporting record. Callers log it and carry on.
func IntegrityGap(code, message string) *Error {
	return &Error{Kind: KindIntegrityGap, Code: code, Message: message}
}

// Validation wraps an ozzo-validation result together with the rejected input.
func Validation(err error, input interface{}) *Error {
	e := &Error{
		Kind:    KindValidation,
		Code:    "INVALID_INPUT",
		Message: "validation failed",
		Fields:  map[string]string{},
		Input:   input,
		Cause:   err,
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				e.Fields[field] = ferr.Error()
			}
		}
	} else if err != nil {
		e.Fields["_"] = err.Error()
	}
	return e
}

// StateConflict rejects an operation against an entity in the wrong state.
func StateConflict(entity, current, message string) *Error {
	return &Error{
		Kind:         KindStateConflict,
		Code:         "INVALID_STATE",
		Message:      fmt.Sprintf("%s (current %s status: %s)", message, entity, current),
		CurrentState: current,
	}
}

func NotFound(entity string, id interface{}) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %v not found", entity, id),
	}
}

// Unauthorized rejects a request whose caller could not be identified.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }
func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsStateConflict(err error) bool { return KindOf(err) == KindStateConflict }
func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsIntegrityGap(err error) bool  { return KindOf(err) == KindIntegrityGap }
func IsUnauthorized(err error) bool  { return KindOf(err) == KindUnauthorized }

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindIntegrityGap:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// As extracts the *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
