package tools

import (
	"encoding/json"
	"strconv"
	"strings"
)

// AlertsArgs are the validated arguments of get_alerts.
type AlertsArgs struct {
	State string
}

// ParseAlertsArgs extracts the state code. It returns false when the code
// is absent, blank or not a string.
func ParseAlertsArgs(args map[string]any) (AlertsArgs, bool) {
	raw, ok := args["state"].(string)
	if !ok {
		return AlertsArgs{}, false
	}
	state := strings.ToUpper(strings.TrimSpace(raw))
	if state == "" {
		return AlertsArgs{}, false
	}
	return AlertsArgs{State: state}, true
}

// ForecastArgs are the validated arguments of get_forecast.
type ForecastArgs struct {
	Latitude  float64
	Longitude float64
}

// ParseForecastArgs extracts both coordinates. It returns false when either
// is absent or cannot be read as a number.
func ParseForecastArgs(args map[string]any) (ForecastArgs, bool) {
	lat, ok := toFloat(args["latitude"])
	if !ok {
		return ForecastArgs{}, false
	}
	lon, ok := toFloat(args["longitude"])
	if !ok {
		return ForecastArgs{}, false
	}
	return ForecastArgs{Latitude: lat, Longitude: lon}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
