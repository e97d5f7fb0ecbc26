package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
)

// rpcEnvelope is the part of a JSON-RPC message the gate inspects.
type rpcEnvelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcErrorBody    `json:"error"`
}

// withScopeGate rejects JSON-RPC requests whose method family needs a scope the
// caller lacks. It must run after authentication.
func withScopeGate(next http.Handler, logger logSDK.Logger) http.Handler {
	if next == nil {
		return nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
		if err != nil {
			if logger != nil {
				logger.Warn("read request body for scope gate", zap.Error(err))
			}
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		authCtx, _ := auth.FromContext(r.Context())
		for _, env := range parseRPCEnvelopes(body) {
			scope := requiredScope(env.Method)
			if scope == "" {
				continue
			}
			if _, err := auth.RequirePermission(authCtx, scope); err != nil {
				if logger != nil {
					logger.Warn("mcp request rejected by scope gate",
						zap.String("method", env.Method),
						zap.String("scope", scope),
					)
				}
				writeJSONRPCError(w, env.ID, err)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// requiredScope returns the permission a JSON-RPC method family needs, or "".
func requiredScope(method string) string {
	switch {
	case strings.HasPrefix(method, "tools/"):
		return keys.PermissionTools
	case strings.HasPrefix(method, "resources/"):
		return keys.PermissionResources
	default:
		return ""
	}
}

// parseRPCEnvelopes decodes a single message or a batch. Undecodable bodies
// yield nothing; the MCP server reports those itself.
func parseRPCEnvelopes(body []byte) []rpcEnvelope {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var batch []rpcEnvelope
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil
		}
		return batch
	}

	var single rpcEnvelope
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil
	}
	return []rpcEnvelope{single}
}

func writeJSONRPCError(w http.ResponseWriter, id json.RawMessage, err error) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dispatch.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(rpcErrorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: rpcErrorBody{
			Code:    dispatch.JSONRPCCode(err),
			Message: err.Error(),
		},
	})
}
