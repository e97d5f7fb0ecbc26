// Package dispatch routes tool calls and resource reads for authenticated callers.
//
// A tool call moves through three stages: Resolving finds the handler,
// Authorizing checks the "tools" scope, and Invoking runs the handler.
// Every stage failure is a typed *Error.
package dispatch

import (
	"context"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	mcp "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/catalog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/ctxkeys"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/tools"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

const tracerName = "github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"

// ToolCallRequest names a tool and carries its raw arguments.
type ToolCallRequest struct {
	Name      string
	Arguments map[string]any
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder sets the call log recorder.
func WithRecorder(recorder calllog.Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithLogger overrides the dispatcher logger.
func WithLogger(logger logSDK.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracer overrides the dispatcher tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// Dispatcher is read-only after construction and safe for concurrent use.
type Dispatcher struct {
	handlers  map[string]tools.Tool
	tools     *catalog.ToolCatalog
	resources *catalog.ResourceCatalog
	recorder  calllog.Recorder
	logger    logSDK.Logger
	tracer    trace.Tracer
}

// New builds a Dispatcher over the given handlers, in registration order.
func New(handlers []tools.Tool, resources *catalog.ResourceCatalog, opts ...Option) (*Dispatcher, error) {
	if resources == nil {
		return nil, errors.New("resource catalog is required")
	}

	defs := make([]mcp.Tool, 0, len(handlers))
	byName := make(map[string]tools.Tool, len(handlers))
	for _, h := range handlers {
		if h == nil {
			return nil, errors.New("tool handler is nil")
		}
		def := h.Definition()
		defs = append(defs, def)
		byName[def.Name] = h
	}

	toolCatalog, err := catalog.NewToolCatalog(defs...)
	if err != nil {
		return nil, errors.Wrap(err, "build tool catalog")
	}

	d := &Dispatcher{
		handlers:  byName,
		tools:     toolCatalog,
		resources: resources,
		logger:    log.Logger.Named("dispatch"),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d, nil
}

// Tools returns the tool catalog.
func (d *Dispatcher) Tools() *catalog.ToolCatalog {
	return d.tools
}

// Resources returns the resource catalog.
func (d *Dispatcher) Resources() *catalog.ResourceCatalog {
	return d.resources
}

// Handler returns the registered handler for name.
func (d *Dispatcher) Handler(name string) (tools.Tool, bool) {
	h, ok := d.handlers[name]
	return h, ok
}

// ListTools returns the tool descriptors visible to a caller holding the "tools" scope.
func (d *Dispatcher) ListTools(authCtx *auth.Context) ([]mcp.Tool, error) {
	if _, err := auth.RequirePermission(authCtx, keys.PermissionTools); err != nil {
		return nil, fromAuthError(err)
	}
	return d.tools.List(), nil
}

// ListResources returns the resource descriptors visible to a caller holding the "resources" scope.
func (d *Dispatcher) ListResources(authCtx *auth.Context) ([]mcp.Resource, error) {
	if _, err := auth.RequirePermission(authCtx, keys.PermissionResources); err != nil {
		return nil, fromAuthError(err)
	}
	return d.resources.List(), nil
}

// ReadResource resolves uri, then checks the "resources" scope.
func (d *Dispatcher) ReadResource(ctx context.Context, authCtx *auth.Context, uri string) ([]mcp.ResourceContents, error) {
	res, ok := d.resources.Get(uri)
	if !ok {
		return nil, newError(KindResourceNotFound, fmt.Sprintf("Resource '%s' not found", uri), nil)
	}
	if _, err := auth.RequirePermission(authCtx, keys.PermissionResources); err != nil {
		return nil, fromAuthError(err)
	}

	d.loggerFor(ctx).Debug("read resource", zap.String("uri", uri))
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      res.Descriptor.URI,
			MIMEType: res.Descriptor.MIMEType,
			Text:     res.Text,
		},
	}, nil
}

// Call runs a tool for an authenticated caller.
func (d *Dispatcher) Call(ctx context.Context, authCtx *auth.Context, req ToolCallRequest) (*mcp.CallToolResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	invocationID := uuid.NewString()
	ctx = context.WithValue(ctx, ctxkeys.InvocationID, invocationID)
	ctx, span := d.tracer.Start(ctx, "dispatch.call", trace.WithAttributes(
		attribute.String("tool_name", req.Name),
		attribute.String("invocation_id", invocationID),
	))
	defer span.End()

	logger := d.loggerFor(ctx).With(
		zap.String("invocation_id", invocationID),
		zap.String("tool", req.Name),
	)

	startAt := time.Now()
	result, err := d.call(ctx, logger, authCtx, req)
	duration := time.Since(startAt)

	var missing []string
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	} else {
		// handlers answer missing arguments with guidance text, the record keeps which ones were absent
		missing = d.tools.MissingRequired(req.Name, req.Arguments)
		if len(missing) > 0 {
			span.SetAttributes(attribute.StringSlice("missing_arguments", missing))
		}
		span.SetStatus(codes.Ok, "")
	}
	d.record(ctx, logger, invocationID, authCtx, req, duration, missing, err)

	return result, err
}

func (d *Dispatcher) call(ctx context.Context, logger logSDK.Logger, authCtx *auth.Context, req ToolCallRequest) (*mcp.CallToolResult, error) {
	// resolving
	handler, ok := d.handlers[req.Name]
	if !ok {
		return nil, newError(KindToolNotFound, fmt.Sprintf("Tool '%s' not found", req.Name), nil)
	}

	// authorizing
	if _, err := auth.RequirePermission(authCtx, keys.PermissionTools); err != nil {
		return nil, fromAuthError(err)
	}

	// invoking
	var callReq mcp.CallToolRequest
	callReq.Params.Name = req.Name
	callReq.Params.Arguments = req.Arguments

	result, err := invoke(ctx, handler, callReq)
	if err != nil {
		logger.Error("tool invocation failed", zap.Error(err))
		return nil, newError(KindInternal, err.Error(), err)
	}
	if result == nil {
		err = errors.Errorf("tool %q returned no result", req.Name)
		logger.Error("tool invocation failed", zap.Error(err))
		return nil, newError(KindInternal, err.Error(), err)
	}

	return result, nil
}

func invoke(ctx context.Context, handler tools.Tool, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.Errorf("tool panicked: %v", r)
		}
	}()

	result, err = handler.Handle(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "handle tool call")
	}
	return result, nil
}

func (d *Dispatcher) record(ctx context.Context, logger logSDK.Logger, invocationID string,
	authCtx *auth.Context, req ToolCallRequest, duration time.Duration, missing []string, callErr error) {
	if d.recorder == nil || req.Name == "" {
		return
	}

	input := calllog.RecordInput{
		InvocationID: invocationID,
		ToolName:     req.Name,
		Status:       calllog.StatusSuccess,
		Duration:     duration,
		Parameters:   req.Arguments,
		Missing:      missing,
	}
	if authCtx != nil {
		input.ClientName = authCtx.ClientName()
		input.APIKey = authCtx.Key()
	}
	if callErr != nil {
		input.Status = calllog.StatusError
		input.ErrorKind = string(KindOf(callErr))
		input.ErrorMessage = callErr.Error()
	}

	if err := d.recorder.Record(ctx, input); err != nil {
		logger.Warn("record tool invocation", zap.Error(err))
	}
}

func (d *Dispatcher) loggerFor(ctx context.Context) logSDK.Logger {
	if authCtx, ok := auth.FromContext(ctx); ok {
		return d.logger.With(zap.String("client", authCtx.ClientName()))
	}
	return d.logger
}
