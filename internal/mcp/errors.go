package mcp

import (
	"errors"
	"fmt"

	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/blob"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/domain/record"
	"github.com/emgroup/sitesync/internal/workspace"
)

var (
	// ErrUnauthenticated is returned when a call carries no usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when a stakeholder calls an admin tool.
	ErrForbidden = errors.New("admin role required")
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
	cause        error
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// MapError maps domain errors to MCP error codes. Unknown errors yield nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	apiErr := func(code, hint string) *APIError {
		return &APIError{Code: code, Message: err.Error(), RecoveryHint: hint, cause: err}
	}
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, auth.ErrInvalidEmail):
		return apiErr("UNAUTHENTICATED", "Sign in with an email address")
	case errors.Is(err, ErrForbidden):
		return apiErr("FORBIDDEN", "Ask the project admin")
	case errors.Is(err, record.ErrRecordNotFound):
		return apiErr("RECORD_NOT_FOUND", "List the collection to find current ids")
	case errors.Is(err, record.ErrInvalidStatus):
		return apiErr("INVALID_STATUS", "Use Open or Closed")
	case errors.Is(err, record.ErrInvalidInput),
		errors.Is(err, document.ErrInvalidInput),
		errors.Is(err, project.ErrInvalidInput):
		return apiErr("INVALID_INPUT", "")
	case errors.Is(err, document.ErrFolderNotFound):
		return apiErr("FOLDER_NOT_FOUND", "Call list_documents for folder ids")
	case errors.Is(err, document.ErrDuplicateFolder):
		return apiErr("DUPLICATE_FOLDER", "")
	case errors.Is(err, project.ErrProjectNotFound):
		return apiErr("PROJECT_NOT_FOUND", "Call list_projects")
	case errors.Is(err, blob.ErrTooLarge):
		return apiErr("TOO_LARGE", "")
	case errors.Is(err, workspace.ErrUploadsDisabled):
		return apiErr("UPLOADS_DISABLED", "")
	default:
		return nil
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
