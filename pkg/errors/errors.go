package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Is matches AppErrors by code, so sentinel comparisons keep working on the
// copies WithInternal hands out.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Access-control denials. Every denial carries a 403 so callers can surface
// the code without branching on status.
var (
	ErrNoTableAccess = &AppError{
		Code:       "NO_TABLE_ACCESS",
		Message:    "You do not have access to this table",
		StatusCode: http.StatusForbidden,
	}

	ErrTableReadOnly = &AppError{
		Code:       "TABLE_READ_ONLY",
		Message:    "This table is read-only for you",
		StatusCode: http.StatusForbidden,
	}

	ErrRowInvisible = &AppError{
		Code:       "ROW_INVISIBLE",
		Message:    "This row is not visible to you",
		StatusCode: http.StatusForbidden,
	}

	ErrRowReadOnly = &AppError{
		Code:       "ROW_READ_ONLY",
		Message:    "This row is read-only for you",
		StatusCode: http.StatusForbidden,
	}

	ErrRowNotDeletable = &AppError{
		Code:       "ROW_NOT_DELETABLE",
		Message:    "You cannot delete this row",
		StatusCode: http.StatusForbidden,
	}

	ErrFieldHidden = &AppError{
		Code:       "FIELD_HIDDEN",
		Message:    "This field is hidden for you",
		StatusCode: http.StatusForbidden,
	}

	ErrFieldReadOnly = &AppError{
		Code:       "FIELD_READ_ONLY",
		Message:    "This field is read-only for you",
		StatusCode: http.StatusForbidden,
	}

	ErrPluginNoPermission = &AppError{
		Code:       "PLUGIN_NO_PERMISSION",
		Message:    "You do not have permission to use this plugin",
		StatusCode: http.StatusForbidden,
	}

	ErrCannotCreateDatabase = &AppError{
		Code:       "CANNOT_CREATE_DATABASE",
		Message:    "You cannot create databases in this workspace",
		StatusCode: http.StatusForbidden,
	}

	ErrCannotDeleteDatabase = &AppError{
		Code:       "CANNOT_DELETE_DATABASE",
		Message:    "You cannot delete databases in this workspace",
		StatusCode: http.StatusForbidden,
	}

	ErrCannotCreateTable = &AppError{
		Code:       "CANNOT_CREATE_TABLE",
		Message:    "You cannot create tables in this database",
		StatusCode: http.StatusForbidden,
	}

	ErrCannotDeleteTable = &AppError{
		Code:       "CANNOT_DELETE_TABLE",
		Message:    "You cannot delete tables in this database",
		StatusCode: http.StatusForbidden,
	}

	ErrCannotCreateField = &AppError{
		Code:       "CANNOT_CREATE_FIELD",
		Message:    "You cannot create fields in this table",
		StatusCode: http.StatusForbidden,
	}

	ErrCannotDeleteField = &AppError{
		Code:       "CANNOT_DELETE_FIELD",
		Message:    "You cannot delete fields in this table",
		StatusCode: http.StatusForbidden,
	}

	ErrNotWorkspaceAdmin = &AppError{
		Code:       "NOT_WORKSPACE_ADMIN",
		Message:    "Workspace admin role required",
		StatusCode: http.StatusForbidden,
	}
)

// Common errors exposed to the rest of the application.
var (
	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// IsDenial reports whether err is an AppError carrying a 403 status.
func IsDenial(err error) bool {
	appErr := FromError(err)
	return appErr != nil && appErr.StatusCode == http.StatusForbidden
}
