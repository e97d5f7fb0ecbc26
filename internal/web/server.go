// Package web serves the gateway's REST surface and mounts the MCP endpoint.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

// CallLogLister lists recorded tool invocations.
type CallLogLister interface {
	List(ctx context.Context, opts calllog.ListOptions) (*calllog.ListResult, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Option customises a Server.
type Option func(*Server)

// WithMCPHandler mounts the MCP streamable HTTP handler at /mcp.
func WithMCPHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.mcpHandler = handler
	}
}

// WithCallLog exposes the caller's own invocation history at /calls.
func WithCallLog(lister CallLogLister) Option {
	return func(s *Server) {
		s.callLog = lister
	}
}

// WithClock overrides the clock used by the health endpoint.
func WithClock(clock Clock) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Server is the gin REST surface.
type Server struct {
	engine     *gin.Engine
	dispatcher *dispatch.Dispatcher
	authn      *auth.Authenticator
	mcpHandler http.Handler
	callLog    CallLogLister
	settings   Settings
	logger     logSDK.Logger
	clock      Clock
}

// NewServer builds the router with every route registered.
func NewServer(dispatcher *dispatch.Dispatcher, authn *auth.Authenticator, settings Settings, logger logSDK.Logger, opts ...Option) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if authn == nil {
		return nil, errors.New("authenticator is required")
	}
	if logger == nil {
		logger = log.Logger.Named("web")
	}
	if settings.ServiceName == "" {
		settings.ServiceName = DefaultServiceName
	}

	s := &Server{
		dispatcher: dispatcher,
		authn:      authn,
		settings:   settings,
		logger:     logger,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if !settings.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// lets handlers pass *gin.Context downstream as a request-scoped context
	engine.ContextWithFallback = true
	engine.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(logger.Named("gin")),
		),
		allowCORS(settings.AllowedOrigins),
	)

	if settings.EnableMetrics {
		if err := gmw.EnableMetric(engine); err != nil {
			return nil, errors.Wrap(err, "enable metric server")
		}
	}

	s.engine = engine
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	authenticated := auth.GinAuthenticate(s.authn)

	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/mcp/capabilities", s.handleCapabilities)
	s.engine.OPTIONS("/mcp/stream", s.handleStreamOptions)
	s.engine.GET("/test", s.handleTestPage)

	s.engine.GET("/auth/info", authenticated, s.handleAuthInfo)
	s.engine.GET("/tools", authenticated, auth.GinRequirePermission(keys.PermissionTools), s.handleListTools)
	s.engine.GET("/resources", authenticated, auth.GinRequirePermission(keys.PermissionResources), s.handleListResources)
	s.engine.POST("/tools/call", authenticated, auth.GinRequirePermission(keys.PermissionTools), s.handleToolCall)

	if s.callLog != nil {
		s.engine.GET("/calls", authenticated, auth.GinRequirePermission(keys.PermissionTools), s.handleListCalls)
	}
	if s.mcpHandler != nil {
		s.engine.Any("/mcp", gmw.FromStd(s.mcpHandler.ServeHTTP))
	}
}

// allowCORS returns a middleware honouring an origin allowlist.
// A "*" entry echoes any origin, since credentials are allowed.
func allowCORS(allowedOrigins []string) gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAny = true
			continue
		}
		if origin != "" {
			allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
		}
	}

	return func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		allowedOrigin := ""
		if origin != "" {
			if _, ok := allowed[strings.ToLower(origin)]; ok || allowAny {
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			ctx.Header("Access-Control-Allow-Origin", allowedOrigin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Mcp-Session-Id, Mcp-Protocol-Version")
			ctx.Header("Access-Control-Expose-Headers", "Mcp-Session-Id")
			ctx.Header("Access-Control-Max-Age", "86400") // 24 hours
			ctx.Header("Vary", "Origin")

			// plain OPTIONS requests fall through to the route handlers
			if ctx.Request.Method == http.MethodOptions && ctx.Request.Header.Get("Access-Control-Request-Method") != "" {
				ctx.AbortWithStatus(http.StatusNoContent)
				return
			}
		} else if origin != "" && ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}

		ctx.Next()
	}
}
