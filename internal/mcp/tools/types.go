package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool exposes the capabilities required by the MCP server registration lifecycle.
type Tool interface {
	Definition() mcp.Tool
	Handle(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Upstream is the subset of the weather client the tools depend on.
// A false return from Fetch means the upstream produced no usable document.
type Upstream interface {
	AlertsURL(state string) string
	PointsURL(latitude, longitude float64) string
	Fetch(ctx context.Context, url string) (map[string]any, bool)
}

const (
	// AlertsToolName is the registered name of the alerts tool.
	AlertsToolName = "get_alerts"
	// ForecastToolName is the registered name of the forecast tool.
	ForecastToolName = "get_forecast"
)
