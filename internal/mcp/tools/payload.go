package tools

import (
	"fmt"
	"strconv"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/weather"
)

// fieldError reports a missing or mistyped field in an upstream document.
// Its message is the quoted field name, which is what users see after the
// "Error parsing forecast data: " prefix.
type fieldError struct {
	field string
}

func (e *fieldError) Error() string {
	return "'" + e.field + "'"
}

func getField(obj map[string]any, key string) (any, error) {
	v, ok := obj[key]
	if !ok {
		return nil, &fieldError{field: key}
	}
	return v, nil
}

func getObject(obj map[string]any, key string) (map[string]any, error) {
	v, err := getField(obj, key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &fieldError{field: key}
	}
	return m, nil
}

func getString(obj map[string]any, key string) (string, error) {
	v, err := getField(obj, key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &fieldError{field: key}
	}
	return s, nil
}

func getList(obj map[string]any, key string) ([]any, error) {
	v, err := getField(obj, key)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, &fieldError{field: key}
	}
	return l, nil
}

// stringOr returns the rendered value of key, or fallback when it is absent or null.
func stringOr(obj map[string]any, key, fallback string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return fallback
	}
	return render(v)
}

// render prints a decoded JSON scalar the way it appeared upstream.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case float64:
		return weather.FormatNumber(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
