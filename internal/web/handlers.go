package web

import (
	"net/http"
	"os"
	"strconv"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	mcp "github.com/mark3labs/mcp-go/mcp"

	mcpserver "github.com/Laisky/weather-mcp-gateway/internal/mcp"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"
)

const (
	toolsCallMethod = "tools/call"
	// maxToolCallBodyBytes caps POST /tools/call bodies.
	maxToolCallBodyBytes = 1 << 20
)

type toolCallBody struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": s.settings.ServiceName + " is running",
		"status":  "healthy",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.clock().UTC().Format(time.RFC3339),
		"service":   s.settings.ServiceName,
		"version":   ServiceVersion,
	})
}

func (s *Server) handleCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"protocolVersion": mcpserver.ProtocolVersion,
		"capabilities": gin.H{
			"tools":     gin.H{"listChanged": true},
			"resources": gin.H{"subscribe": true, "listChanged": true},
		},
		"serverInfo": gin.H{
			"name":    mcpserver.ServerName,
			"version": mcpserver.ServerVersion,
		},
		"authentication": gin.H{
			"required":    true,
			"type":        "api-key",
			"description": "API key authentication via Authorization header",
		},
	})
}

func (s *Server) handleStreamOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"methods": []string{http.MethodPost, http.MethodOptions},
		"headers": []string{"Content-Type", "Accept", "Authorization"},
	})
}

func (s *Server) handleTestPage(c *gin.Context) {
	if s.settings.TestPage == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "test page not configured"})
		return
	}
	if info, err := os.Stat(s.settings.TestPage); err != nil || info.IsDir() {
		gmw.GetLogger(c).Warn("test page unavailable", zap.String("path", s.settings.TestPage), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "test page not found"})
		return
	}

	c.File(s.settings.TestPage)
}

func (s *Server) handleAuthInfo(c *gin.Context) {
	authCtx, ok := auth.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_name":   authCtx.ClientName(),
		"permissions":   authCtx.Permissions(),
		"authenticated": true,
	})
}

func (s *Server) handleListTools(c *gin.Context) {
	authCtx, _ := auth.FromContext(c.Request.Context())
	list, err := s.dispatcher.ListTools(authCtx)
	if err != nil {
		s.abortWithDispatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tools": list})
}

func (s *Server) handleListResources(c *gin.Context) {
	authCtx, _ := auth.FromContext(c.Request.Context())
	list, err := s.dispatcher.ListResources(authCtx)
	if err != nil {
		s.abortWithDispatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resources": list})
}

func (s *Server) handleToolCall(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxToolCallBodyBytes)

	var body toolCallBody
	if err := c.ShouldBindJSON(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if body.Method != toolsCallMethod {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid method"})
		return
	}
	if body.Params.Arguments == nil {
		body.Params.Arguments = map[string]any{}
	}

	authCtx, _ := auth.FromContext(c.Request.Context())
	result, err := s.dispatcher.Call(c, authCtx, dispatch.ToolCallRequest{
		Name:      body.Params.Name,
		Arguments: body.Params.Arguments,
	})
	if err != nil {
		s.abortWithDispatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, toolResultBody(result))
}

func toolResultBody(result *mcp.CallToolResult) gin.H {
	content := result.Content
	if content == nil {
		content = []mcp.Content{}
	}

	body := gin.H{"content": content}
	if result.IsError {
		body["isError"] = true
	}
	return body
}

func (s *Server) handleListCalls(c *gin.Context) {
	authCtx, _ := auth.FromContext(c.Request.Context())
	if authCtx == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	result, err := s.callLog.List(c.Request.Context(), calllog.ListOptions{
		Page:      page,
		PageSize:  pageSize,
		ToolName:  c.Query("tool"),
		APIKey:    authCtx.Key(),
		SortField: c.Query("sort"),
		SortOrder: c.Query("order"),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries := make([]gin.H, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, gin.H{
			"id":            entry.InvocationID,
			"tool":          entry.ToolName,
			"status":        entry.Status,
			"error_kind":    entry.ErrorKind,
			"duration_ms":   entry.DurationMillis,
			"error_message": entry.ErrorMessage,
			"missing_args":  entry.Missing,
			"occurred_at":   entry.OccurredAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"calls": entries, "total": result.Total})
}

func (s *Server) abortWithDispatchError(c *gin.Context, err error) {
	status := dispatch.HTTPStatus(err)
	message := err.Error()
	if dispatch.KindOf(err) == dispatch.KindInternal {
		message = "Tool execution failed: " + message
		gmw.GetLogger(c).Error("tool call failed", zap.Error(err))
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
