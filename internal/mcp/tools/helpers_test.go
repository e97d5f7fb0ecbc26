package tools

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	mcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/weather"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

// fakeNWS serves canned bodies per path and counts hits.
type fakeNWS struct {
	mu     sync.Mutex
	routes map[string]fakeRoute
	hits   map[string]int
	server *httptest.Server
}

type fakeRoute struct {
	status int
	body   string
}

func newFakeNWS(t *testing.T) *fakeNWS {
	t.Helper()
	f := &fakeNWS{routes: map[string]fakeRoute{}, hits: map[string]int{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		route, ok := f.routes[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if route.status != 0 {
			w.WriteHeader(route.status)
		}
		_, _ = w.Write([]byte(route.body))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeNWS) handle(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = fakeRoute{status: status, body: body}
}

func (f *fakeNWS) totalHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, v := range f.hits {
		n += v
	}
	return n
}

func (f *fakeNWS) client(t *testing.T) *weather.Client {
	t.Helper()
	c, err := weather.NewClient(weather.WithBaseURL(f.server.URL), weather.WithLogger(log.Logger))
	require.NoError(t, err)
	return c
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}
