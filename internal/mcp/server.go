package mcp

import (
	"context"
	"net/http"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

// Server wraps the MCP server state for the HTTP transport.
type Server struct {
	handler    http.Handler
	logger     logSDK.Logger
	dispatcher *dispatch.Dispatcher
	settings   Settings
	tools      []string
}

// NewServer constructs the MCP endpoint. Every request is authenticated,
// then gated by the scope its JSON-RPC method needs.
func NewServer(dispatcher *dispatch.Dispatcher, authn *auth.Authenticator, settings Settings, logger logSDK.Logger) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if authn == nil {
		return nil, errors.New("authenticator is required")
	}
	if logger == nil {
		logger = log.Logger
	}

	s := &Server{
		logger:     logger.Named("mcp"),
		dispatcher: dispatcher,
		settings:   settings,
	}

	mcpServer := srv.NewMCPServer(
		ServerName,
		ServerVersion,
		srv.WithToolCapabilities(true),
		srv.WithResourceCapabilities(true, true),
		srv.WithInstructions(settings.Instructions),
		srv.WithRecovery(),
		srv.WithHooks(newMCPHooks(logger.Named("mcp_hooks"))),
	)

	for _, tool := range dispatcher.Tools().List() {
		if !settings.ToolEnabled(tool.Name) {
			s.logger.Info("mcp tool disabled by configuration", zap.String("tool", tool.Name))
			continue
		}
		mcpServer.AddTool(tool, s.handleToolCall)
		s.tools = append(s.tools, tool.Name)
	}

	for _, res := range dispatcher.Resources().List() {
		mcpServer.AddResource(res, s.handleReadResource)
	}

	streamable := srv.NewStreamableHTTPServer(
		mcpServer,
		srv.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if authCtx, ok := auth.FromContext(r.Context()); ok {
				return auth.WithContext(ctx, authCtx)
			}
			return ctx
		}),
	)

	var handler http.Handler = streamable
	handler = withScopeGate(handler, logger.Named("mcp_scope_gate"))
	handler = auth.HTTPMiddleware(authn)(handler)
	if settings.AllowQueryAPIKey {
		handler = withAuthorizationHeaderNormalization(handler, logger.Named("mcp_auth"))
	}
	s.handler = withHTTPLogging(handler, logger.Named("mcp_http"))

	return s, nil
}

// Handler returns the HTTP handler that should be mounted to serve MCP traffic.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ToolNames lists the tools registered on the endpoint.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.tools...)
}

func (s *Server) handleToolCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	authCtx, _ := auth.FromContext(ctx)
	result, err := s.dispatcher.Call(ctx, authCtx, dispatch.ToolCallRequest{
		Name:      req.Params.Name,
		Arguments: req.GetArguments(),
	})
	if err != nil {
		if dispatch.KindOf(err) == dispatch.KindInternal {
			return mcp.NewToolResultError("Tool execution failed: " + err.Error()), nil
		}
		return nil, errors.WithStack(err)
	}

	return result, nil
}

func (s *Server) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	authCtx, _ := auth.FromContext(ctx)
	contents, err := s.dispatcher.ReadResource(ctx, authCtx, req.Params.URI)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return contents, nil
}
