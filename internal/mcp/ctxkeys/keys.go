// Package ctxkeys declares context keys shared across MCP packages.
package ctxkeys

// Key identifies a context value propagated across MCP services.
type Key string

const (
	// AuthContext stores the authenticated caller for the current request.
	AuthContext Key = "mcp_auth_context"
	// InvocationID stores the id assigned to a tool invocation.
	InvocationID Key = "mcp_invocation_id"
)
