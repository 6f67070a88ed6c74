// Package apperr provides the error codes shared by the solver, the CLI and the HTTP API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class.
type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeInvalidInstance Code = "INVALID_INSTANCE"
	CodeInvalidConfig   Code = "INVALID_CONFIG"
	CodeNotFound        Code = "NOT_FOUND"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeDatabase        Code = "DATABASE_ERROR"

	// search defects; a run that hits one of these is aborted
	CodeInvariant       Code = "INVARIANT_VIOLATION"
	CodeExhaustedRepair Code = "EXHAUSTED_REPAIR"
)

// AppError carries a code, a human readable message and optional diagnostics.
type AppError struct {
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Cause      error          `json:"-"`
	Fields     map[string]any `json:"fields,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches free-form diagnostics, such as a route dump.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithField(key string, value any) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInstance, CodeInvalidConfig:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeExhaustedRepair:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

var ErrNotFound = New(CodeNotFound, "resource not found")

func InvalidInstance(field, reason string) *AppError {
	return New(CodeInvalidInstance, fmt.Sprintf("instance field '%s' is invalid: %s", field, reason))
}

func InvalidConfig(field, reason string) *AppError {
	return New(CodeInvalidConfig, fmt.Sprintf("config field '%s' is invalid: %s", field, reason))
}

func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s '%s' not found", resource, id))
}

// Invariant reports a solution the search believed feasible but which is not.
func Invariant(reason string) *AppError {
	return New(CodeInvariant, reason)
}

// ExhaustedRepair reports a customer that fits neither an existing route nor a fresh one.
func ExhaustedRepair(customer int) *AppError {
	return New(CodeExhaustedRepair, fmt.Sprintf("customer %d cannot be placed on any route", customer)).
		WithField("customer", customer)
}

// ValidationErrors collects per-field problems before they are turned into one AppError.
type ValidationErrors struct {
	Code   Code              `json:"-"`
	Errors []ValidationError `json:"errors"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s - %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) Addf(field, format string, args ...any) {
	ve.Add(field, fmt.Sprintf(format, args...))
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError folds the collection into one error; the first problem becomes the message.
func (ve *ValidationErrors) ToAppError() *AppError {
	code := ve.Code
	if code == "" {
		code = CodeInvalidInstance
	}
	err := New(code, ve.Error())
	err.Fields = make(map[string]any, len(ve.Errors))
	for _, e := range ve.Errors {
		err.Fields[e.Field] = e.Message
	}
	return err
}
