package mcp

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
)

// sensitiveFields are JSON object keys whose values never reach the logs unmasked.
var sensitiveFields = map[string]struct{}{
	"authorization": {},
	"api_key":       {},
	"apikey":        {},
	"key":           {},
	"token":         {},
}

// redactMCPBody masks credential-like fields in MCP payloads.
func redactMCPBody(raw string) string {
	if raw == "" {
		return raw
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return raw
	}
	redacted := redactMCPValue(payload)
	out, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return string(out)
}

// redactMCPValue recursively redacts nested payloads.
func redactMCPValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return redactMCPMap(v)
	case []any:
		result := make([]any, 0, len(v))
		for _, item := range v {
			result = append(result, redactMCPValue(item))
		}
		return result
	default:
		return value
	}
}

func redactMCPMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		if _, ok := sensitiveFields[strings.ToLower(key)]; ok {
			if s, isString := value.(string); isString {
				output[key] = keys.MaskKey(s)
				continue
			}
		}
		output[key] = redactMCPValue(value)
	}
	return output
}

// redactHookPayload renders a redacted JSON string for hook logging.
func redactHookPayload(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return redactMCPBody(string(data))
}

// redactRequestURL renders u for logging with credential-like query values masked.
func redactRequestURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	query := u.Query()
	sensitive := false
	for name := range query {
		if _, ok := sensitiveFields[strings.ToLower(name)]; ok {
			sensitive = true
			break
		}
	}
	if !sensitive {
		return u.String()
	}

	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		_, masked := sensitiveFields[strings.ToLower(name)]
		for _, value := range query[name] {
			if masked {
				value = keys.MaskKey(strings.TrimSpace(auth.ExtractAPIKey(value)))
			} else {
				value = url.QueryEscape(value)
			}
			pairs = append(pairs, url.QueryEscape(name)+"="+value)
		}
	}

	return u.EscapedPath() + "?" + strings.Join(pairs, "&")
}
