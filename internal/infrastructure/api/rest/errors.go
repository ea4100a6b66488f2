package rest

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/vizflow/vizflow/pkg/models"
)

// APIError is the JSON error envelope every handler responds with on
// failure. Grounded on the teacher's rest/errors.go.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]any) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus, Details: details}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrUnauthorized     = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden        = NewAPIError("FORBIDDEN", "Access denied", http.StatusForbidden)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "Required parameter is missing", http.StatusBadRequest)
	ErrTooManyRequests  = NewAPIError("RATE_LIMIT_EXCEEDED", "Too many requests", http.StatusTooManyRequests)
)

// TranslateError maps a domain/infra error to the APIError the client
// sees. Grounded on the teacher's rest/errors.go TranslateError, trimmed
// to VizFlow's own error taxonomy (pkg/models/errors.go).
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var compileErr *models.CompileError
	if errors.As(err, &compileErr) {
		return NewAPIErrorWithDetails("COMPILE_ERROR", compileErr.Error(), http.StatusBadRequest, map[string]any{
			"kind": compileErr.Kind, "node_id": compileErr.NodeID,
		})
	}

	var routerErr *models.RouterError
	if errors.As(err, &routerErr) {
		status := http.StatusBadGateway
		if routerErr.Kind == "unknown_target" {
			status = http.StatusBadRequest
		}
		return NewAPIErrorWithDetails("ROUTER_ERROR", routerErr.Error(), status, map[string]any{
			"kind": routerErr.Kind, "target": routerErr.Target,
		})
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return NewAPIErrorWithDetails("VALIDATION_FAILED", validationErr.Error(), http.StatusBadRequest, map[string]any{
			"kind": validationErr.Kind,
		})
	}

	var conflictErr *models.ConflictError
	if errors.As(err, &conflictErr) {
		return NewAPIError("CONFLICT", conflictErr.Error(), http.StatusConflict)
	}

	var authErr *models.AuthError
	if errors.As(err, &authErr) {
		return NewAPIError("UNAUTHORIZED", authErr.Error(), http.StatusUnauthorized)
	}

	switch {
	case errors.Is(err, models.ErrWorkflowNotFound):
		return NewAPIError("WORKFLOW_NOT_FOUND", "Workflow not found", http.StatusNotFound)
	case errors.Is(err, models.ErrDashboardNotFound):
		return NewAPIError("DASHBOARD_NOT_FOUND", "Dashboard not found", http.StatusNotFound)
	case errors.Is(err, models.ErrWidgetNotFound):
		return NewAPIError("WIDGET_NOT_FOUND", "Widget not found", http.StatusNotFound)
	case errors.Is(err, models.ErrExecutionNotFound):
		return NewAPIError("EXECUTION_NOT_FOUND", "Execution not found", http.StatusNotFound)
	case errors.Is(err, models.ErrAPIKeyNotFound):
		return NewAPIError("API_KEY_NOT_FOUND", "API key not found", http.StatusNotFound)
	case errors.Is(err, models.ErrVersionNotFound):
		return NewAPIError("VERSION_NOT_FOUND", "Workflow version not found", http.StatusNotFound)

	case errors.Is(err, models.ErrUnauthorized):
		return NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	case errors.Is(err, models.ErrForbidden):
		return NewAPIError("FORBIDDEN", "Access denied", http.StatusForbidden)
	case errors.Is(err, models.ErrInvalidToken):
		return NewAPIError("INVALID_TOKEN", "Invalid token", http.StatusUnauthorized)
	case errors.Is(err, models.ErrNoTenantID):
		return NewAPIError("INVALID_TOKEN", "Token carries no tenant claim", http.StatusUnauthorized)
	case errors.Is(err, models.ErrKeyRevoked):
		return NewAPIError("API_KEY_REVOKED", "API key has been revoked", http.StatusUnauthorized)

	case errors.Is(err, models.ErrExecutionTerminal):
		return NewAPIError("EXECUTION_TERMINAL", "Execution already in a terminal state", http.StatusConflict)
	case errors.Is(err, models.ErrCyclicGraph):
		return NewAPIError("CYCLIC_GRAPH", "Workflow graph contains a cycle", http.StatusBadRequest)
	case errors.Is(err, models.ErrUnknownNodeType):
		return NewAPIError("UNKNOWN_NODE_TYPE", "Unknown node type", http.StatusBadRequest)
	case errors.Is(err, models.ErrUnknownTarget):
		return NewAPIError("UNKNOWN_TARGET", "Unknown target store", http.StatusBadRequest)
	case errors.Is(err, models.ErrStoreUnavailable):
		return NewAPIError("STORE_UNAVAILABLE", "Backing store unavailable", http.StatusBadGateway)
	case errors.Is(err, models.ErrStoreQueryFailed):
		return NewAPIError("STORE_QUERY_FAILED", "Backing store query failed", http.StatusBadGateway)
	case errors.Is(err, models.ErrRateLimitExceeded):
		return NewAPIError("RATE_LIMIT_EXCEEDED", "Too many requests", http.StatusTooManyRequests)

	case errors.Is(err, sql.ErrNoRows):
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	}

	return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
}
