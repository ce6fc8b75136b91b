// Package store records tool calls made through the gateway using SQLite.
//
// # Architecture
//
// ToolCallStore is the only interface. SQLiteStore implements it on
// modernc.org/sqlite (pure Go, no cgo); MockStore implements it in memory
// for tests.
//
// Recording is optional: the gateway only opens a store when
// database.path is configured, and a failed write is logged without
// affecting the tool call it describes.
//
// # Data Models
//
//   - ToolCall: one tools/call outcome (tool, session, status, duration)
//   - ToolUsage: per-tool aggregate of calls, failures and average duration
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/quip/calls.db")
//	defer s.Close()
//	usage, err := s.GetToolUsage(ctx, store.UsageFilter{})
package store
