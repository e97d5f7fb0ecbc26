package mcp

import (
	"net/http"
	"strings"

	logSDK "github.com/Laisky/go-utils/v6/log"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
)

// withAuthorizationHeaderNormalization copies a query API key into the
// Authorization header so the authenticator has a single channel to read.
// An explicit Authorization header always wins.
func withAuthorizationHeaderNormalization(next http.Handler, logger logSDK.Logger) http.Handler {
	if next == nil {
		return nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader, source := resolveRequestAuthorizationHeader(r)
		if source == "query_apikey" {
			r.Header.Set("Authorization", authHeader)
			if logger != nil {
				logger.Debug("normalized mcp query auth into authorization header; prefer Authorization header")
			}
		}

		next.ServeHTTP(w, r)
	})
}

// resolveRequestAuthorizationHeader returns the Authorization value for r and
// where it came from: "header", "query_apikey", or "none".
func resolveRequestAuthorizationHeader(r *http.Request) (authHeader string, source string) {
	if r == nil {
		return "", "none"
	}

	if header := r.Header.Get("Authorization"); header != "" {
		return header, "header"
	}

	if apiKey := extractAPIKeyFromQuery(r); apiKey != "" {
		return "Bearer " + apiKey, "query_apikey"
	}

	return "", "none"
}

func extractAPIKeyFromQuery(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}

	query := r.URL.Query()
	for _, key := range []string{"APIKEY", "apikey", "api_key"} {
		raw := strings.TrimSpace(query.Get(key))
		if raw == "" {
			continue
		}

		if trimmed := strings.TrimSpace(auth.ExtractAPIKey(raw)); trimmed != "" {
			return trimmed
		}
	}

	return ""
}
