package weather

import (
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
)

// Settings configures the upstream client.
type Settings struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// LoadSettingsFromConfig reads settings.weather.*. Missing values fall back to the defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
	}

	if v := strings.TrimSpace(gconfig.Shared.GetString("settings.weather.base_url")); v != "" {
		settings.BaseURL = v
	}
	if v := strings.TrimSpace(gconfig.Shared.GetString("settings.weather.user_agent")); v != "" {
		settings.UserAgent = v
	}
	if secs := gconfig.Shared.GetInt("settings.weather.timeout_seconds"); secs > 0 {
		settings.Timeout = time.Duration(secs) * time.Second
	}

	return settings
}

// Options converts the settings into client options.
func (s Settings) Options() []Option {
	return []Option{
		WithBaseURL(s.BaseURL),
		WithUserAgent(s.UserAgent),
		WithTimeout(s.Timeout),
	}
}
