package cmd

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/tools"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateAuthConfig(get, &validationErrs)
	validateWeatherConfig(get, &validationErrs)
	validateMCPConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)
	validateTelemetryConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateAuthConfig validates the api key table and the environment variable name.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateAuthConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.auth.env_keys_var", errs)

	raw := get("settings.auth.keys")
	if raw == nil {
		return
	}

	entries, ok := raw.([]any)
	if !ok {
		appendValidationError(errs, "settings.auth.keys must be a list")
		return
	}

	seen := make(map[string]int, len(entries))
	for i, entry := range entries {
		prefix := fmt.Sprintf("settings.auth.keys[%d]", i)
		item := toStringMap(entry)
		if item == nil {
			appendValidationError(errs, "%s must be an object", prefix)
			continue
		}

		validateRequiredStringInMap(errs, item, prefix+".key")
		validateRequiredStringInMap(errs, item, prefix+".name")

		if key, err := parseStrictString(item["key"]); err == nil {
			key = strings.TrimSpace(key)
			if prev, dup := seen[key]; dup && key != "" {
				appendValidationError(errs, "%s.key duplicates settings.auth.keys[%d].key", prefix, prev)
			} else {
				seen[key] = i
			}
		}

		validatePermissions(errs, item["permissions"], prefix+".permissions")
	}
}

// validatePermissions validates a permissions list against the known scopes.
// It accepts an error collector pointer, the raw value, and the field path label.
func validatePermissions(errs *[]string, raw any, fieldPath string) {
	if raw == nil {
		appendValidationError(errs, "%s is required", fieldPath)
		return
	}

	list, ok := raw.([]any)
	if !ok {
		appendValidationError(errs, "%s must be a list of strings", fieldPath)
		return
	}
	if len(list) == 0 {
		appendValidationError(errs, "%s must not be empty", fieldPath)
		return
	}

	for i, v := range list {
		perm, err := parseStrictString(v)
		if err != nil {
			appendValidationError(errs, "%s[%d] must be a string", fieldPath, i)
			continue
		}

		switch strings.TrimSpace(perm) {
		case keys.PermissionTools, keys.PermissionResources:
		default:
			appendValidationError(errs, "%s[%d] must be one of [%s, %s]",
				fieldPath, i, keys.PermissionTools, keys.PermissionResources)
		}
	}
}

// validateWeatherConfig validates the upstream client settings.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateWeatherConfig(get configGetter, errs *[]string) {
	validateOptionalURL(get, "settings.weather.base_url", errs)
	validateOptionalStringNonEmpty(get, "settings.weather.user_agent", errs)
	validateOptionalIntMin(get, "settings.weather.timeout_seconds", 1, errs)
}

// validateMCPConfig validates MCP tool toggles and transport options.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateMCPConfig(get configGetter, errs *[]string) {
	for _, name := range []string{tools.AlertsToolName, tools.ForecastToolName} {
		validateOptionalBool(get, "settings.mcp.tools."+name+".enabled", errs)
	}

	validateOptionalBool(get, "settings.mcp.allow_query_apikey", errs)

	if raw := get("settings.mcp.instructions"); raw != nil {
		if _, err := parseStrictString(raw); err != nil {
			appendValidationError(errs, "settings.mcp.instructions must be a string")
		}
	}
}

// validateWebConfig validates the REST surface settings.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.web.test_page", errs)
	validateOptionalBool(get, "settings.web.metrics.enabled", errs)

	raw := get("settings.web.cors.allowed_origins")
	if raw == nil {
		return
	}

	list, ok := raw.([]any)
	if !ok {
		appendValidationError(errs, "settings.web.cors.allowed_origins must be a list of strings")
		return
	}

	for i, v := range list {
		origin, err := parseStrictString(v)
		if err != nil {
			appendValidationError(errs, "settings.web.cors.allowed_origins[%d] must be a string", i)
			continue
		}

		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		if parsed, err := url.Parse(origin); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			appendValidationError(errs, "settings.web.cors.allowed_origins[%d] must be \"*\" or an absolute origin", i)
		}
	}
}

// validateTelemetryConfig validates telemetry naming.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateTelemetryConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.telemetry.service_name", errs)
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalURL validates an optionally configured absolute URL key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// validateRequiredStringInMap validates that a required map field is a non-empty string.
// It accepts an error collector pointer, a source map, and the field path label, and appends validation errors.
func validateRequiredStringInMap(errs *[]string, source map[string]any, fieldPath string) {
	parts := strings.Split(fieldPath, ".")
	key := parts[len(parts)-1]
	value, ok := source[key]
	if !ok {
		appendValidationError(errs, "%s is required", fieldPath)
		return
	}

	text, parseErr := parseStrictString(value)
	if parseErr != nil || strings.TrimSpace(text) == "" {
		appendValidationError(errs, "%s must be a non-empty string", fieldPath)
	}
}

// toStringMap converts decoded YAML objects into a string-keyed map.
// It returns nil when the value is not an object.
func toStringMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = item
		}
		return out
	default:
		return nil
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
