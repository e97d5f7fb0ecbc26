package calllog

import (
	"time"

	"github.com/google/uuid"
)

// Record is a single MCP tool invocation kept by the Service.
type Record struct {
	ID             uuid.UUID
	InvocationID   string
	ToolName       string
	ClientName     string
	APIKeyHash     string
	KeyMask        string
	Status         string
	ErrorKind      string
	DurationMillis int64
	Parameters     map[string]any
	Missing        []string
	ErrorMessage   string
	OccurredAt     time.Time
	CreatedAt      time.Time
}
