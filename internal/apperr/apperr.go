// Package apperr defines the coded errors shared by every component. The HTTP
// layer owns the mapping from codes to status lines; everything below it only
// wraps and rethrows.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeTenantMissing   Code = "TENANT_MISSING"
	CodeTenantUnknown   Code = "TENANT_UNKNOWN"
	CodeBadValue        Code = "BAD_VALUE"
	CodeNoSingleton     Code = "NO_SINGLETON"
	CodeStoreFatal      Code = "STORE_FATAL"
	CodePartialLock     Code = "PARTIAL_LOCK"
	CodePartialUpdate   Code = "PARTIAL_UPDATE"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeFeatureDisabled Code = "FEATURE_DISABLED"
)

// Error is the one error type that crosses component boundaries. Succeeded and
// Failed carry record identifiers for the partial-write codes so callers can
// retry safely.
type Error struct {
	Code      Code     `json:"code"`
	Message   string   `json:"error"`
	Succeeded []string `json:"succeeded,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	wrapped   error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, wrapped: err}
}

func BadValuef(format string, args ...any) *Error {
	return Newf(CodeBadValue, format, args...)
}

// Partial builds a PARTIAL_LOCK or PARTIAL_UPDATE error carrying the record
// identifiers that did and did not make it.
func Partial(code Code, msg string, succeeded, failed []string, err error) *Error {
	return &Error{Code: code, Message: msg, Succeeded: succeeded, Failed: failed, wrapped: err}
}

// As unwraps err to an *Error, or nil when it carries no code.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf reports the code attached to err; uncoded errors count as STORE_FATAL
// since the row store is the only thing that fails without going through us.
func CodeOf(err error) Code {
	if e := As(err); e != nil {
		return e.Code
	}
	return CodeStoreFatal
}
