package calllog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

// Status enumerations for recorded tool calls.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	meterName = "github.com/Laisky/weather-mcp-gateway/internal/mcp/calllog"
	// DefaultCapacity bounds how many records the Service retains.
	DefaultCapacity = 1000
	defaultPage     = 1
	// defaultPageSize sets the fallback page size for list queries.
	defaultPageSize = 20
	// maxPageSize caps the page size for list queries.
	maxPageSize       = 100
	sortFieldDuration = "duration"
)

// Clock provides the current time in UTC.
type Clock func() time.Time

// Recorder accepts tool invocation records.
type Recorder interface {
	Record(ctx context.Context, input RecordInput) error
}

// RecordInput captures the information required to record a tool invocation.
type RecordInput struct {
	InvocationID string
	ToolName     string
	ClientName   string
	APIKey       string
	Status       string
	ErrorKind    string
	Duration     time.Duration
	Parameters   map[string]any
	// Missing lists required arguments the caller left out.
	Missing      []string
	ErrorMessage string
	OccurredAt   time.Time
}

// ListOptions configures the result set returned by List.
type ListOptions struct {
	Page       int
	PageSize   int
	ToolName   string
	ClientName string
	APIKey     string
	SortField  string
	SortOrder  string
	From       time.Time
	To         time.Time
}

// ListResult packages the results of a List query along with the total count.
type ListResult struct {
	Entries []Record
	Total   int64
}

// Option customises a Service.
type Option func(*Service)

// WithCapacity overrides the number of retained records.
func WithCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithMeter overrides the meter used for invocation metrics.
func WithMeter(meter metric.Meter) Option {
	return func(s *Service) {
		if meter != nil {
			s.meter = meter
		}
	}
}

// Service keeps a bounded, in-process history of tool invocations and
// mirrors every record into logs and OpenTelemetry metrics.
// Records live only for the process lifetime.
type Service struct {
	logger   logSDK.Logger
	clock    Clock
	meter    metric.Meter
	capacity int

	calls    metric.Int64Counter
	duration metric.Float64Histogram

	mu      sync.RWMutex
	records []Record
}

// NewService constructs a Service.
func NewService(logger logSDK.Logger, clock Clock, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = log.Logger.Named("call_log_service")
	}
	if clock == nil {
		clock = func() time.Time {
			return time.Now().UTC()
		}
	}

	s := &Service{
		logger:   logger,
		clock:    clock,
		meter:    otel.Meter(meterName),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	var err error
	if s.calls, err = s.meter.Int64Counter("mcp.tool.calls",
		metric.WithDescription("Number of MCP tool invocations"),
	); err != nil {
		return nil, errors.Wrap(err, "create mcp.tool.calls counter")
	}
	if s.duration, err = s.meter.Float64Histogram("mcp.tool.duration",
		metric.WithDescription("MCP tool invocation latency"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, errors.Wrap(err, "create mcp.tool.duration histogram")
	}

	return s, nil
}

// Record stores a tool invocation using the provided input.
func (s *Service) Record(ctx context.Context, input RecordInput) error {
	if s == nil {
		return errors.New("call log service is nil")
	}
	trimmedTool := strings.TrimSpace(input.ToolName)
	if trimmedTool == "" {
		return errors.New("tool name is required")
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = StatusSuccess
	}

	occurred := input.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	}

	record := Record{
		ID:             uuid.New(),
		InvocationID:   input.InvocationID,
		ToolName:       trimmedTool,
		ClientName:     strings.TrimSpace(input.ClientName),
		APIKeyHash:     hashAPIKey(input.APIKey),
		KeyMask:        keys.MaskKey(strings.TrimSpace(input.APIKey)),
		Status:         status,
		ErrorKind:      input.ErrorKind,
		DurationMillis: input.Duration.Milliseconds(),
		Parameters:     cloneParameters(input.Parameters),
		Missing:        slices.Clone(input.Missing),
		ErrorMessage:   strings.TrimSpace(input.ErrorMessage),
		OccurredAt:     occurred,
		CreatedAt:      s.clock(),
	}

	// metrics must be emitted even when the request was cancelled
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("tool_name", record.ToolName),
		attribute.String("status", record.Status),
	)
	s.calls.Add(ctx, 1, attrs)
	s.duration.Record(ctx, float64(input.Duration)/float64(time.Millisecond), attrs)

	s.mu.Lock()
	s.records = append(s.records, record)
	if overflow := len(s.records) - s.capacity; overflow > 0 {
		s.records = slices.Delete(s.records, 0, overflow)
	}
	s.mu.Unlock()

	s.logger.Info("tool invocation",
		zap.String("invocation_id", record.InvocationID),
		zap.String("tool", record.ToolName),
		zap.String("client", record.ClientName),
		zap.String("key", record.KeyMask),
		zap.String("status", record.Status),
		zap.String("error_kind", record.ErrorKind),
		zap.Int64("duration_ms", record.DurationMillis),
		zap.Strings("missing_arguments", record.Missing),
	)
	return nil
}

// List retrieves records that match the provided filters and pagination options.
func (s *Service) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	if s == nil {
		return nil, errors.New("call log service is nil")
	}

	toolName, err := sanitizeOptionalText(opts.ToolName, maxToolNameLength, "tool name")
	if err != nil {
		return nil, errors.Wrap(err, "sanitize tool name")
	}
	clientName, err := sanitizeOptionalText(opts.ClientName, maxClientNameLength, "client name")
	if err != nil {
		return nil, errors.Wrap(err, "sanitize client name")
	}

	page := opts.Page
	if page < 1 {
		page = defaultPage
	}
	size := opts.PageSize
	if size <= 0 {
		size = defaultPageSize
	} else if size > maxPageSize {
		size = maxPageSize
	}
	keyHash := hashAPIKey(opts.APIKey)

	s.mu.RLock()
	matched := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		switch {
		case keyHash != "" && record.APIKeyHash != keyHash:
			continue
		case toolName != "" && record.ToolName != toolName:
			continue
		case clientName != "" && record.ClientName != clientName:
			continue
		case !opts.From.IsZero() && record.OccurredAt.Before(opts.From):
			continue
		case !opts.To.IsZero() && !record.OccurredAt.Before(opts.To):
			continue
		}
		record.Parameters = cloneParameters(record.Parameters)
		record.Missing = slices.Clone(record.Missing)
		matched = append(matched, record)
	}
	s.mu.RUnlock()

	ascending := strings.EqualFold(opts.SortOrder, "ASC")
	byDuration := strings.EqualFold(strings.TrimSpace(opts.SortField), sortFieldDuration)
	slices.SortStableFunc(matched, func(a, b Record) int {
		var c int
		if byDuration {
			c = compareInt64(a.DurationMillis, b.DurationMillis)
		} else {
			c = a.OccurredAt.Compare(b.OccurredAt)
		}
		if !ascending {
			c = -c
		}
		return c
	})

	total := int64(len(matched))
	offset := min((page-1)*size, len(matched))
	end := min(offset+size, len(matched))

	return &ListResult{Entries: matched[offset:end], Total: total}, nil
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// cloneParameters deep-copies tool arguments so callers never share nested values with the log.
func cloneParameters(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	out := make(map[string]any, len(params))
	if err := copier.CopyWithOption(&out, &params, copier.Option{DeepCopy: true}); err != nil {
		return maps.Clone(params)
	}
	return out
}

func hashAPIKey(apiKey string) string {
	trimmed := strings.TrimSpace(apiKey)
	if trimmed == "" {
		return ""
	}

	hashed := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(hashed[:])
}
