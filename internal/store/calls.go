// ABOUTME: SQLite implementation for tool call recording
// ABOUTME: Stores call outcomes and aggregates them into per-tool usage

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordToolCall stores a tool call record.
func (s *SQLiteStore) RecordToolCall(ctx context.Context, call *ToolCall) error {
	query := `
		INSERT INTO tool_calls (id, tool_name, session_id, status, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		call.ID,
		call.ToolName,
		nullString(call.SessionID),
		call.Status,
		nullString(call.ErrorMessage),
		call.DurationMS,
		call.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("recorded tool call",
		"id", call.ID,
		"tool_name", call.ToolName,
		"status", call.Status,
		"duration_ms", call.DurationMS,
	)
	return nil
}

// ListToolCalls returns the most recent tool calls, newest first.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, limit int) ([]*ToolCall, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tool_name, session_id, status, error_message, duration_ms, created_at
		FROM tool_calls
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var calls []*ToolCall
	for rows.Next() {
		call, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool call rows: %w", err)
	}

	return calls, nil
}

// GetToolUsage returns per-tool aggregates ordered by tool name.
func (s *SQLiteStore) GetToolUsage(ctx context.Context, filter UsageFilter) ([]*ToolUsage, error) {
	query := `
		SELECT
			tool_name,
			COUNT(*) as calls,
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) as failures,
			COALESCE(SUM(CASE WHEN status = 'invalid_arguments' THEN 1 ELSE 0 END), 0) as invalid_calls,
			COALESCE(AVG(duration_ms), 0) as avg_duration
		FROM tool_calls
		WHERE 1=1
	`
	args := []any{}

	if filter.ToolName != nil {
		query += " AND tool_name = ?"
		args = append(args, *filter.ToolName)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}
	query += " GROUP BY tool_name ORDER BY tool_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tool usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	usage := []*ToolUsage{}
	for rows.Next() {
		var u ToolUsage
		if err := rows.Scan(&u.ToolName, &u.Calls, &u.Failures, &u.InvalidCalls, &u.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		usage = append(usage, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return usage, nil
}

// scanToolCall scans a single tool call row into a ToolCall struct.
func scanToolCall(rows *sql.Rows) (*ToolCall, error) {
	var call ToolCall
	var sessionID, errorMessage sql.NullString
	var createdAtStr string

	err := rows.Scan(
		&call.ID,
		&call.ToolName,
		&sessionID,
		&call.Status,
		&errorMessage,
		&call.DurationMS,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning tool call row: %w", err)
	}

	call.SessionID = sessionID.String
	call.ErrorMessage = errorMessage.String

	call.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &call, nil
}
