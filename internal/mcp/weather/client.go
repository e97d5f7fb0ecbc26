// Package weather talks to the National Weather Service public API.
//
// Every failure talking to the upstream collapses into a "no data" result;
// callers decide how to phrase that for the user.
package weather

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/weather-mcp-gateway/library/log"
)

const (
	// DefaultBaseURL is the public NWS endpoint.
	DefaultBaseURL = "https://api.weather.gov"
	// DefaultUserAgent identifies the gateway to the NWS, which requires a User-Agent.
	DefaultUserAgent = "weather-app/1.0"
	// DefaultTimeout bounds every upstream call.
	DefaultTimeout = 30 * time.Second

	acceptGeoJSON = "application/geo+json"
	// DefaultMaxResponseBytes caps an upstream document.
	DefaultMaxResponseBytes = 8 << 20

	// logBodyLimit caps the number of response bytes logged for debugging.
	logBodyLimit = 4096
	tracerName   = "github.com/Laisky/weather-mcp-gateway/internal/mcp/weather"
)

// Option configures the Client instance.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to reach the upstream.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBaseURL overrides the upstream base URL, primarily for testing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if ua := strings.TrimSpace(userAgent); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxResponseBytes overrides the upstream response size cap.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger overrides the default logger used when no contextual logger is present.
func WithLogger(logger logSDK.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer overrides the tracer used for upstream spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Client fetches GeoJSON documents from the NWS.
type Client struct {
	client    *http.Client
	baseURL   string
	userAgent string
	timeout   time.Duration
	maxBody   int64
	logger    logSDK.Logger
	tracer    trace.Tracer
}

// NewClient constructs a Client. Options can customise the HTTP client, endpoint, headers and timeout.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		maxBody:   DefaultMaxResponseBytes,
		logger:    log.Logger.Named("weather"),
		tracer:    otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.client == nil {
		httpcli, err := gutils.NewHTTPClient(
			gutils.WithHTTPClientTimeout(c.timeout),
		)
		if err != nil {
			return nil, errors.Wrap(err, "new weather http client")
		}
		c.client = httpcli
	}

	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid weather base url %q", c.baseURL)
	}

	return c, nil
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AlertsURL builds the active-alerts endpoint for an area code.
func (c *Client) AlertsURL(state string) string {
	return c.baseURL + "/alerts/active/area/" + url.PathEscape(state)
}

// PointsURL builds the grid-point metadata endpoint for a coordinate.
func (c *Client) PointsURL(latitude, longitude float64) string {
	return c.baseURL + "/points/" + FormatNumber(latitude) + "," + FormatNumber(longitude)
}

// Fetch GETs target and decodes a JSON object.
// It returns false on transport errors, timeouts, non-2xx statuses and undecodable bodies.
func (c *Client) Fetch(ctx context.Context, target string) (map[string]any, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := c.logger
	if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
		logger = ctxLogger.Named("weather")
	}

	ctx, span := c.tracer.Start(ctx, "weather.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", target)),
	)
	defer span.End()

	payload, err := c.fetch(ctx, logger, target, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("nws api request failed", zap.Error(err), zap.String("url", target))
		return nil, false
	}

	return payload, true
}

func (c *Client) fetch(ctx context.Context, logger logSDK.Logger, target string, span trace.Span) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create nws request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptGeoJSON)

	logger.Debug("outgoing http request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)

	startAt := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send nws request")
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Wrap(err, "read nws response body")
	}
	if int64(len(body)) > c.maxBody {
		return nil, errors.Errorf("nws response exceeds %d bytes", c.maxBody)
	}

	truncatedBody, truncated := truncateForLog(body, logBodyLimit)
	logger.Debug("incoming http response",
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncatedBody),
		zap.Bool("body_truncated", truncated),
		zap.Duration("cost", time.Since(startAt)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("nws returned status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal nws response")
	}
	if payload == nil {
		return nil, errors.New("nws response is not a json object")
	}

	return payload, nil
}

// FormatNumber renders a float the shortest way that round-trips, so 72 prints as "72".
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncateForLog(data []byte, limit int) (string, bool) {
	if len(data) <= limit {
		return string(data), false
	}
	return string(data[:limit]), true
}
