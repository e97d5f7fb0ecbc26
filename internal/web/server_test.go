package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	mcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/catalog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/tools"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/weather"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

const (
	fullKey  = "mcp-client-key-123"
	toolsKey = "test-key-456"
	readKey  = "reader-key-789"
)

type brokenTool struct{}

func (brokenTool) Definition() mcp.Tool { return mcp.NewTool("broken") }

func (brokenTool) Handle(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return nil, errors.New("upstream exploded")
}

type testEnv struct {
	handler  http.Handler
	nwsCalls *atomic.Int32
	calls    *calllog.Service
}

func newTestEnv(t *testing.T, settings Settings) *testEnv {
	t.Helper()
	setupGinTestMode()
	settings.Debug = true

	var hits atomic.Int32
	nws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	t.Cleanup(nws.Close)

	client, err := weather.NewClient(weather.WithBaseURL(nws.URL))
	require.NoError(t, err)
	alerts, err := tools.NewAlertsTool(client, log.Logger)
	require.NoError(t, err)
	forecast, err := tools.NewForecastTool(client, log.Logger)
	require.NoError(t, err)

	callLog, err := calllog.NewService(log.Logger, nil)
	require.NoError(t, err)

	resources, err := catalog.NewResourceCatalog(catalog.DefaultResources()...)
	require.NoError(t, err)
	dispatcher, err := dispatch.New([]tools.Tool{alerts, forecast, brokenTool{}}, resources, dispatch.WithRecorder(callLog))
	require.NoError(t, err)

	reg, err := keys.NewRegistry(
		keys.Record{Key: fullKey, ClientName: "MCP Client", Permissions: []string{keys.PermissionTools, keys.PermissionResources}},
		keys.Record{Key: toolsKey, ClientName: "Test Client", Permissions: []string{keys.PermissionTools}},
		keys.Record{Key: readKey, ClientName: "Reader", Permissions: []string{keys.PermissionResources}},
	)
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(reg, log.Logger)
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	s, err := NewServer(dispatcher, authn, settings, log.Logger, WithCallLog(callLog), WithClock(clock))
	require.NoError(t, err)

	return &testEnv{handler: s.Handler(), nwsCalls: &hits, calls: callLog}
}

func do(t *testing.T, handler http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(t, Settings{ServiceName: "weather-test"})

	rec := do(t, env.handler, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"weather-test is running","status":"healthy"}`, rec.Body.String())

	rec = do(t, env.handler, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","timestamp":"2024-05-06T07:08:09Z","service":"weather-test","version":"1.0.0"}`, rec.Body.String())

	rec = do(t, env.handler, http.MethodGet, "/mcp/capabilities", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	caps := decode(t, rec)
	require.Equal(t, "2024-11-05", caps["protocolVersion"])
	require.Equal(t, "weather-mcp-gateway", caps["serverInfo"].(map[string]any)["name"])
	require.Equal(t, true, caps["authentication"].(map[string]any)["required"])

	rec = do(t, env.handler, http.MethodOptions, "/mcp/stream", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","methods":["POST","OPTIONS"],"headers":["Content-Type","Accept","Authorization"]}`, rec.Body.String())
}

func TestTestPage(t *testing.T) {
	env := newTestEnv(t, Settings{})
	rec := do(t, env.handler, http.MethodGet, "/test", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	page := filepath.Join(t.TempDir(), "test.html")
	require.NoError(t, os.WriteFile(page, []byte("<html>ok</html>"), 0o600))
	env = newTestEnv(t, Settings{TestPage: page})
	rec = do(t, env.handler, http.MethodGet, "/test", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<html>ok</html>")

	env = newTestEnv(t, Settings{TestPage: filepath.Join(t.TempDir(), "missing.html")})
	rec = do(t, env.handler, http.MethodGet, "/test", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthInfo(t *testing.T) {
	env := newTestEnv(t, Settings{})

	rec := do(t, env.handler, http.MethodGet, "/auth/info", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = do(t, env.handler, http.MethodGet, "/auth/info", toolsKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"client_name":"Test Client","permissions":["tools"],"authenticated":true}`, rec.Body.String())
}

func TestListingGuards(t *testing.T) {
	env := newTestEnv(t, Settings{})

	cases := []struct {
		path   string
		key    string
		status int
	}{
		{"/tools", "", http.StatusUnauthorized},
		{"/tools", "unknown", http.StatusUnauthorized},
		{"/tools", readKey, http.StatusForbidden},
		{"/tools", toolsKey, http.StatusOK},
		{"/resources", toolsKey, http.StatusForbidden},
		{"/resources", readKey, http.StatusOK},
		{"/resources", fullKey, http.StatusOK},
	}
	for _, tc := range cases {
		rec := do(t, env.handler, http.MethodGet, tc.path, tc.key, "")
		require.Equal(t, tc.status, rec.Code, "%s with %q", tc.path, tc.key)
	}

	rec := do(t, env.handler, http.MethodGet, "/tools", fullKey, "")
	body := decode(t, rec)
	list := body["tools"].([]any)
	require.Len(t, list, 3)
	require.Equal(t, "get_alerts", list[0].(map[string]any)["name"])
	require.Equal(t, "get_forecast", list[1].(map[string]any)["name"])

	rec = do(t, env.handler, http.MethodGet, "/resources", fullKey, "")
	body = decode(t, rec)
	res := body["resources"].([]any)
	require.Len(t, res, 1)
	require.Equal(t, "mcp://server/sample", res[0].(map[string]any)["uri"])
}

func TestToolCall(t *testing.T) {
	env := newTestEnv(t, Settings{})

	rec := do(t, env.handler, http.MethodPost, "/tools/call", toolsKey,
		`{"method":"tools/call","params":{"name":"get_alerts","arguments":{"state":"ca"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"content":[{"type":"text","text":"No active alerts for this state."}]}`, rec.Body.String())
	require.Equal(t, int32(1), env.nwsCalls.Load())

	rec = do(t, env.handler, http.MethodPost, "/tools/call", toolsKey,
		`{"method":"tools/call","params":{"name":"get_forecast","arguments":{"latitude":40.7}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Error: Both latitude and longitude are required")
	require.Equal(t, int32(1), env.nwsCalls.Load())
}

func TestToolCallFailures(t *testing.T) {
	env := newTestEnv(t, Settings{})

	rec := do(t, env.handler, http.MethodPost, "/tools/call", toolsKey, `{"method":"tools/list","params":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Invalid method"}`, rec.Body.String())

	rec = do(t, env.handler, http.MethodPost, "/tools/call", toolsKey, `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, env.handler, http.MethodPost, "/tools/call", toolsKey,
		`{"method":"tools/call","params":{"name":"get_alerts","arguments":{"state":"`+strings.Repeat("x", maxToolCallBodyBytes)+`"}}}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Zero(t, env.nwsCalls.Load())

	rec = do(t, env.handler, http.MethodPost, "/tools/call", toolsKey, `{"method":"tools/call","params":{"name":"nope"}}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"Tool 'nope' not found"}`, rec.Body.String())

	rec = do(t, env.handler, http.MethodPost, "/tools/call", toolsKey, `{"method":"tools/call","params":{"name":"broken"}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, decode(t, rec)["error"], "Tool execution failed: ")
	require.NotContains(t, rec.Body.String(), toolsKey)

	rec = do(t, env.handler, http.MethodPost, "/tools/call", readKey, `{"method":"tools/call","params":{"name":"get_alerts","arguments":{"state":"CA"}}}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.JSONEq(t, `{"error":"Permission 'tools' required"}`, rec.Body.String())
	require.Zero(t, env.nwsCalls.Load())
}

func TestListCallsShowsOnlyOwnHistory(t *testing.T) {
	env := newTestEnv(t, Settings{})

	do(t, env.handler, http.MethodPost, "/tools/call", toolsKey, `{"method":"tools/call","params":{"name":"get_alerts","arguments":{}}}`)
	do(t, env.handler, http.MethodPost, "/tools/call", fullKey, `{"method":"tools/call","params":{"name":"get_alerts","arguments":{}}}`)
	do(t, env.handler, http.MethodPost, "/tools/call", fullKey, `{"method":"tools/call","params":{"name":"broken"}}`)

	rec := do(t, env.handler, http.MethodGet, "/calls", toolsKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.EqualValues(t, 1, body["total"])

	rec = do(t, env.handler, http.MethodGet, "/calls?tool=broken", fullKey, "")
	body = decode(t, rec)
	require.EqualValues(t, 1, body["total"])
	entry := body["calls"].([]any)[0].(map[string]any)
	require.Equal(t, calllog.StatusError, entry["status"])
	require.Equal(t, "InternalError", entry["error_kind"])
}

func TestAllowCORS(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	tests := []struct {
		name           string
		allowed        []string
		method         string
		origin         string
		preflight      bool
		expectedStatus int
		expectedCORS   bool
	}{
		{
			name:           "No origin header - should pass through",
			allowed:        []string{"*"},
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Wildcard echoes any origin",
			allowed:        []string{"*"},
			method:         http.MethodGet,
			origin:         "https://client.example",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
		},
		{
			name:           "Wildcard preflight short-circuits",
			allowed:        []string{"*"},
			method:         http.MethodOptions,
			origin:         "https://client.example",
			preflight:      true,
			expectedStatus: http.StatusNoContent,
			expectedCORS:   true,
		},
		{
			name:           "Listed origin is case insensitive",
			allowed:        []string{"https://App.Example/"},
			method:         http.MethodPost,
			origin:         "https://app.example",
			expectedStatus: http.StatusOK,
			expectedCORS:   true,
		},
		{
			name:           "Unlisted origin GET passes without headers",
			allowed:        []string{"https://app.example"},
			method:         http.MethodGet,
			origin:         "https://evil.example",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Unlisted origin preflight is denied",
			allowed:        []string{"https://app.example"},
			method:         http.MethodOptions,
			origin:         "https://evil.example",
			preflight:      true,
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(allowCORS(tt.allowed))
			router.Any("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch")
			if tt.expectedCORS {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil, Settings{}, nil)
	require.Error(t, err)
}
