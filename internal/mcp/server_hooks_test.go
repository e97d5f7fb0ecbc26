package mcp

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	errors "github.com/Laisky/errors/v2"
	srv "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

// TestIsCallerMCPError verifies caller-side dispatch failures are logged as rejections.
func TestIsCallerMCPError(t *testing.T) {
	for _, kind := range []dispatch.Kind{
		dispatch.KindForbidden,
		dispatch.KindUnauthorized,
		dispatch.KindToolNotFound,
		dispatch.KindResourceNotFound,
	} {
		err := errors.Wrap(&dispatch.Error{Kind: kind, Message: "x"}, "dispatch")
		require.True(t, isCallerMCPError(err), kind)
	}
}

// TestIsCallerMCPErrorLibraryNotFound verifies unknown names rejected by the MCP library are caller errors.
func TestIsCallerMCPErrorLibraryNotFound(t *testing.T) {
	for _, sentinel := range []error{srv.ErrToolNotFound, srv.ErrResourceNotFound, srv.ErrPromptNotFound} {
		err := fmt.Errorf("tool 'nope' not found: %w", sentinel)
		require.True(t, isCallerMCPError(err), sentinel.Error())
	}
	require.False(t, isCallerMCPError(srv.ErrSessionNotFound))
}

// TestIsCallerMCPErrorFalse verifies server-side failures remain at error level.
func TestIsCallerMCPErrorFalse(t *testing.T) {
	require.False(t, isCallerMCPError(nil))
	require.False(t, isCallerMCPError(errors.New("boom")))
	require.False(t, isCallerMCPError(&dispatch.Error{Kind: dispatch.KindInternal, Message: "boom"}))
}

// TestWithHTTPLoggingRestoresBody verifies the downstream handler still sees the full request body.
func TestWithHTTPLoggingRestoresBody(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	var seen string
	handler := withHTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}), log.Logger)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(payload)))

	require.Equal(t, payload, seen)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

// TestLoggingResponseWriterTruncates verifies captured bodies stop at the limit while the client gets everything.
func TestLoggingResponseWriterTruncates(t *testing.T) {
	rec := httptest.NewRecorder()
	lrw := newLoggingResponseWriter(rec, 4)

	_, err := lrw.Write([]byte("abcdef"))
	require.NoError(t, err)
	_, err = lrw.Write([]byte("gh"))
	require.NoError(t, err)

	body, truncated := lrw.Body()
	require.Equal(t, "abcd", body)
	require.True(t, truncated)
	require.Equal(t, http.StatusOK, lrw.Status())
	require.Equal(t, "abcdefgh", rec.Body.String())
}

// TestWithHTTPLoggingRejectsOversizedBody verifies request bodies beyond the cap never reach the handler.
func TestWithHTTPLoggingRejectsOversizedBody(t *testing.T) {
	called := false
	handler := withHTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), log.Logger)

	payload := strings.Repeat("x", maxRequestBodyBytes+1)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(payload)))

	require.False(t, called)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// TestScopeGateRejectsOversizedBody verifies the scope gate bounds its own read as well.
func TestScopeGateRejectsOversizedBody(t *testing.T) {
	called := false
	handler := withScopeGate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), log.Logger)

	payload := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"pad":"` +
		strings.Repeat("x", maxRequestBodyBytes) + `"}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(payload)))

	require.False(t, called)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
