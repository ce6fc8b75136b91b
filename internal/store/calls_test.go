// ABOUTME: Tests for tool call recording and usage aggregation
// ABOUTME: Runs the same scenarios against SQLiteStore and MockStore

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func newCall(tool, status string, durationMS int64, at time.Time) *ToolCall {
	return &ToolCall{
		ID:         uuid.New().String(),
		ToolName:   tool,
		Status:     status,
		DurationMS: durationMS,
		CreatedAt:  at,
	}
}

func implementations(t *testing.T) map[string]ToolCallStore {
	return map[string]ToolCallStore{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestRecordAndListToolCalls(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := newCall("get_dad_joke", CallStatusOK, 12, base)
			first.SessionID = "session-1"
			second := newCall("get_joke", CallStatusFailed, 40, base.Add(time.Second))
			second.ErrorMessage = "upstream returned 503"

			require.NoError(t, s.RecordToolCall(ctx, first))
			require.NoError(t, s.RecordToolCall(ctx, second))

			calls, err := s.ListToolCalls(ctx, 10)
			require.NoError(t, err)
			require.Len(t, calls, 2)

			assert.Equal(t, second.ID, calls[0].ID, "newest first")
			assert.Equal(t, "upstream returned 503", calls[0].ErrorMessage)
			assert.Empty(t, calls[0].SessionID)
			assert.Equal(t, "session-1", calls[1].SessionID)
			assert.Equal(t, int64(12), calls[1].DurationMS)
			assert.True(t, base.Equal(calls[1].CreatedAt))

			limited, err := s.ListToolCalls(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestGetToolUsage(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, c := range []*ToolCall{
				newCall("get_dad_joke", CallStatusOK, 10, base),
				newCall("get_dad_joke", CallStatusOK, 30, base.Add(time.Second)),
				newCall("get_dad_joke", CallStatusFailed, 20, base.Add(2*time.Second)),
				newCall("get_joke", CallStatusInvalid, 0, base.Add(3*time.Second)),
			} {
				require.NoError(t, s.RecordToolCall(ctx, c))
			}

			usage, err := s.GetToolUsage(ctx, UsageFilter{})
			require.NoError(t, err)
			require.Len(t, usage, 2)

			assert.Equal(t, "get_dad_joke", usage[0].ToolName)
			assert.Equal(t, int64(3), usage[0].Calls)
			assert.Equal(t, int64(1), usage[0].Failures)
			assert.Equal(t, int64(0), usage[0].InvalidCalls)
			assert.InDelta(t, 20.0, usage[0].AvgDurationMS, 0.001)

			assert.Equal(t, "get_joke", usage[1].ToolName)
			assert.Equal(t, int64(1), usage[1].InvalidCalls)

			tool := "get_dad_joke"
			since := base.Add(time.Second)
			filtered, err := s.GetToolUsage(ctx, UsageFilter{ToolName: &tool, Since: &since})
			require.NoError(t, err)
			require.Len(t, filtered, 1)
			assert.Equal(t, int64(2), filtered[0].Calls)
		})
	}
}

func TestGetToolUsage_Empty(t *testing.T) {
	s := setupTestStore(t)

	usage, err := s.GetToolUsage(context.Background(), UsageFilter{})
	require.NoError(t, err)
	assert.NotNil(t, usage)
	assert.Empty(t, usage)
}

func TestRecordToolCall_DuplicateID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	call := newCall("get_cat_fact", CallStatusOK, 5, time.Now())
	require.NoError(t, s.RecordToolCall(ctx, call))
	assert.Error(t, s.RecordToolCall(ctx, call))
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
