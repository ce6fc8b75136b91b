// ABOUTME: ToolCallStore interface and data types for quip-gateway call recording
// ABOUTME: Defines ToolCall, ToolUsage and the filter used for aggregation

package store

import (
	"context"
	"time"
)

// Call status values
const (
	CallStatusOK      = "ok"                // handler returned content
	CallStatusInvalid = "invalid_arguments" // rejected before the handler ran
	CallStatusFailed  = "error"             // handler failed or panicked
)

// ToolCall is one recorded tools/call outcome.
type ToolCall struct {
	ID           string
	ToolName     string
	SessionID    string // empty for single-shot requests
	Status       string
	ErrorMessage string
	DurationMS   int64
	CreatedAt    time.Time
}

// ToolUsage aggregates recorded calls for one tool.
type ToolUsage struct {
	ToolName      string  `json:"tool_name"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	InvalidCalls  int64   `json:"invalid_calls"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// UsageFilter narrows usage queries. Nil fields are not applied.
type UsageFilter struct {
	ToolName *string
	Since    *time.Time
	Until    *time.Time
}

// ToolCallStore persists tool calls and answers usage queries.
type ToolCallStore interface {
	RecordToolCall(ctx context.Context, call *ToolCall) error
	ListToolCalls(ctx context.Context, limit int) ([]*ToolCall, error)
	GetToolUsage(ctx context.Context, filter UsageFilter) ([]*ToolUsage, error)
	Close() error
}
