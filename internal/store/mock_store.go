// ABOUTME: Mock ToolCallStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MockStore is an in-memory ToolCallStore implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	calls []*ToolCall

	// Err, when set, is returned by RecordToolCall.
	Err error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// RecordToolCall stores a copy of the call.
func (m *MockStore) RecordToolCall(_ context.Context, call *ToolCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if call.ID == "" {
		return errors.New("tool call id is required")
	}
	c := *call
	m.calls = append(m.calls, &c)
	return nil
}

// ListToolCalls returns the most recent calls, newest first.
func (m *MockStore) ListToolCalls(_ context.Context, limit int) ([]*ToolCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ToolCall, 0, len(m.calls))
	for i := len(m.calls) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		c := *m.calls[i]
		out = append(out, &c)
	}
	return out, nil
}

// GetToolUsage aggregates the stored calls the same way SQLiteStore does.
func (m *MockStore) GetToolUsage(_ context.Context, filter UsageFilter) ([]*ToolUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byTool := make(map[string]*ToolUsage)
	totals := make(map[string]int64)
	for _, c := range m.calls {
		if filter.ToolName != nil && c.ToolName != *filter.ToolName {
			continue
		}
		if filter.Since != nil && c.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !c.CreatedAt.Before(*filter.Until) {
			continue
		}
		u, ok := byTool[c.ToolName]
		if !ok {
			u = &ToolUsage{ToolName: c.ToolName}
			byTool[c.ToolName] = u
		}
		u.Calls++
		switch c.Status {
		case CallStatusFailed:
			u.Failures++
		case CallStatusInvalid:
			u.InvalidCalls++
		}
		totals[c.ToolName] += c.DurationMS
	}

	usage := make([]*ToolUsage, 0, len(byTool))
	for name, u := range byTool {
		u.AvgDurationMS = float64(totals[name]) / float64(u.Calls)
		usage = append(usage, u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].ToolName < usage[j].ToolName })
	return usage, nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Calls returns a snapshot of every recorded call in insertion order.
func (m *MockStore) Calls() []*ToolCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ToolCall, len(m.calls))
	for i, c := range m.calls {
		cp := *c
		out[i] = &cp
	}
	return out
}

// Ensure MockStore implements ToolCallStore interface.
var _ ToolCallStore = (*MockStore)(nil)
