package dispatch

import (
	"net/http"

	errors "github.com/Laisky/errors/v2"
	mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
)

// Kind is a stable failure code of the dispatcher.
type Kind string

const (
	KindToolNotFound     Kind = "ToolNotFound"
	KindResourceNotFound Kind = "ResourceNotFound"
	KindForbidden        Kind = "Forbidden"
	KindUnauthorized     Kind = "Unauthorized"
	KindInternal         Kind = "InternalError"
)

// JSON-RPC codes in the implementation-defined server error range.
const (
	CodeUnauthorized     = -32001
	CodeResourceNotFound = -32002
	CodeForbidden        = -32003
)

// Error is a typed dispatch failure. Message is safe to return to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error returns the caller-safe message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// fromAuthError converts an auth failure into a dispatch failure.
func fromAuthError(err error) error {
	switch {
	case auth.IsForbidden(err):
		return newError(KindForbidden, err.Error(), err)
	case auth.IsUnauthorized(err):
		return newError(KindUnauthorized, err.Error(), err)
	default:
		return newError(KindInternal, "authorization failed", err)
	}
}

// KindOf reports the failure kind of err. Errors that are not dispatch
// failures are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}

	switch {
	case auth.IsForbidden(err):
		return KindForbidden
	case auth.IsUnauthorized(err):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindToolNotFound, KindResourceNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// JSONRPCCode maps err to a JSON-RPC error code.
func JSONRPCCode(err error) int {
	switch KindOf(err) {
	case KindToolNotFound:
		return mcp.INVALID_PARAMS
	case KindResourceNotFound:
		return CodeResourceNotFound
	case KindForbidden:
		return CodeForbidden
	case KindUnauthorized:
		return CodeUnauthorized
	default:
		return mcp.INTERNAL_ERROR
	}
}
