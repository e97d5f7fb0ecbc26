package web

import (
	"strings"

	gconfig "github.com/Laisky/go-config/v2"
)

const (
	// DefaultServiceName is reported by the health endpoint.
	DefaultServiceName = "weather-mcp-gateway"
	// ServiceVersion is reported by the health and capabilities endpoints.
	ServiceVersion = "1.0.0"
)

// Settings configures the REST surface.
type Settings struct {
	// AllowedOrigins lists CORS origins. "*" echoes any origin.
	AllowedOrigins []string
	// TestPage is the path of the static HTML page served at /test.
	TestPage      string
	ServiceName   string
	Debug         bool
	EnableMetrics bool
}

// LoadSettingsFromConfig reads the web configuration.
func LoadSettingsFromConfig() Settings {
	origins := gconfig.Shared.GetStringSlice("settings.web.cors.allowed_origins")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	serviceName := strings.TrimSpace(gconfig.Shared.GetString("settings.telemetry.service_name"))
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	return Settings{
		AllowedOrigins: origins,
		TestPage:       strings.TrimSpace(gconfig.Shared.GetString("settings.web.test_page")),
		ServiceName:    serviceName,
		Debug:          gconfig.Shared.GetBool("debug"),
		EnableMetrics:  gconfig.Shared.GetBool("settings.web.metrics.enabled"),
	}
}
