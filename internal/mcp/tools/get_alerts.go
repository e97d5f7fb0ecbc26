package tools

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
)

const (
	alertsMissingStateText = "Error: State code is required"
	alertsUnavailableText  = "Unable to fetch alerts or no alerts found."
	alertsNoneActiveText   = "No active alerts for this state."
	blockSeparator         = "\n---\n"
)

// AlertsTool implements the get_alerts MCP tool.
type AlertsTool struct {
	upstream Upstream
	logger   logSDK.Logger
}

// NewAlertsTool constructs an AlertsTool.
func NewAlertsTool(upstream Upstream, logger logSDK.Logger) (*AlertsTool, error) {
	if upstream == nil {
		return nil, errors.New("weather upstream is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &AlertsTool{upstream: upstream, logger: logger}, nil
}

// Definition returns the MCP metadata describing the tool.
func (t *AlertsTool) Definition() mcp.Tool {
	return mcp.NewTool(
		AlertsToolName,
		mcp.WithDescription("Get weather alerts for a US state"),
		mcp.WithString(
			"state",
			mcp.Required(),
			mcp.Description("Two-letter US state code (e.g. CA, NY)"),
		),
	)
}

// Handle fetches the active alerts for a state and renders them as text.
func (t *AlertsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := ParseAlertsArgs(req.GetArguments())
	if !ok {
		return mcp.NewToolResultText(alertsMissingStateText), nil
	}

	payload, ok := t.upstream.Fetch(ctx, t.upstream.AlertsURL(args.State))
	if !ok {
		return mcp.NewToolResultText(alertsUnavailableText), nil
	}

	features, ok := payload["features"].([]any)
	if !ok {
		t.logger.Debug("alerts payload has no features", zap.String("state", args.State))
		return mcp.NewToolResultText(alertsUnavailableText), nil
	}
	if len(features) == 0 {
		return mcp.NewToolResultText(alertsNoneActiveText), nil
	}

	blocks := make([]string, 0, len(features))
	for _, feature := range features {
		blocks = append(blocks, formatAlert(feature))
	}

	t.logger.Debug("rendered alerts",
		zap.String("state", args.State),
		zap.Int("count", len(blocks)),
	)
	return mcp.NewToolResultText(strings.Join(blocks, blockSeparator)), nil
}

// formatAlert renders one GeoJSON feature. A feature without properties
// renders with every placeholder.
func formatAlert(feature any) string {
	var props map[string]any
	if f, ok := feature.(map[string]any); ok {
		props, _ = f["properties"].(map[string]any)
	}

	var sb strings.Builder
	sb.WriteString("\nEvent: ")
	sb.WriteString(stringOr(props, "event", "Unknown"))
	sb.WriteString("\nArea: ")
	sb.WriteString(stringOr(props, "areaDesc", "Unknown"))
	sb.WriteString("\nSeverity: ")
	sb.WriteString(stringOr(props, "severity", "Unknown"))
	sb.WriteString("\nDescription: ")
	sb.WriteString(stringOr(props, "description", "No description available"))
	sb.WriteString("\nInstructions: ")
	sb.WriteString(stringOr(props, "instruction", "No specific instructions provided"))
	sb.WriteString("\n")
	return sb.String()
}
