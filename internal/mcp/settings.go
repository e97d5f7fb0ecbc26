// Package mcp serves the weather tools and resources over the MCP streamable HTTP transport.
package mcp

import (
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/tools"
)

const (
	// ServerName is reported in the initialize result.
	ServerName = "weather-mcp-gateway"
	// ServerVersion is reported in the initialize result.
	ServerVersion = "1.0.0"
	// ProtocolVersion is the MCP revision advertised by the REST capabilities endpoint.
	ProtocolVersion = "2024-11-05"
)

// Settings captures runtime configuration of the MCP endpoint.
type Settings struct {
	// EnabledTools maps tool name to whether it is registered.
	EnabledTools map[string]bool
	// AllowQueryAPIKey accepts ?apikey= as a fallback for the Authorization header.
	AllowQueryAPIKey bool
	Instructions     string
}

// ToolEnabled reports whether name should be registered. Unknown tools default to enabled.
func (s Settings) ToolEnabled(name string) bool {
	enabled, ok := s.EnabledTools[name]
	return !ok || enabled
}

// EnabledHandlers drops the handlers switched off in configuration. The result
// feeds the dispatcher, so REST and MCP expose the same tool set.
func (s Settings) EnabledHandlers(handlers []tools.Tool) []tools.Tool {
	enabled := make([]tools.Tool, 0, len(handlers))
	for _, h := range handlers {
		if h == nil || !s.ToolEnabled(h.Definition().Name) {
			continue
		}
		enabled = append(enabled, h)
	}
	return enabled
}

// LoadSettingsFromConfig reads the MCP configuration. All tools are enabled
// unless explicitly disabled.
func LoadSettingsFromConfig() Settings {
	instructions := gconfig.Shared.GetString("settings.mcp.instructions")
	if instructions == "" {
		instructions = "Use get_alerts for active US weather alerts by state and get_forecast for a coordinate forecast."
	}

	return Settings{
		EnabledTools: map[string]bool{
			tools.AlertsToolName:   boolFromConfig("settings.mcp.tools.get_alerts.enabled", true),
			tools.ForecastToolName: boolFromConfig("settings.mcp.tools.get_forecast.enabled", true),
		},
		AllowQueryAPIKey: boolFromConfig("settings.mcp.allow_query_apikey", false),
		Instructions:     instructions,
	}
}

// boolFromConfig retrieves a boolean configuration value with a default fallback.
func boolFromConfig(key string, def bool) bool {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch v {
		case "true", "True", "TRUE", "1", "yes", "Yes", "YES":
			return true
		case "false", "False", "FALSE", "0", "no", "No", "NO":
			return false
		default:
			return def
		}
	default:
		return def
	}
}
