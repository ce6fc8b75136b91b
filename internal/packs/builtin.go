// ABOUTME: Tool definition, content and handler types for in-process tool packs.
// ABOUTME: Handlers receive validated arguments and return ordered text content.

package packs

import (
	"context"
	"encoding/json"
)

// ContentTypeText is the only content block type produced by gateway tools.
const ContentTypeText = "text"

// ToolDefinition describes a tool as advertised to clients.
// It is immutable once registered.
type ToolDefinition struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// Content is a single block of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the ordered content a tool produced.
type Result struct {
	Content []Content `json:"content"`
}

// TextResult builds a Result with one text block per argument, in order.
func TextResult(texts ...string) *Result {
	content := make([]Content, len(texts))
	for i, t := range texts {
		content[i] = Content{Type: ContentTypeText, Text: t}
	}
	return &Result{Content: content}
}

// ToolHandler executes a tool with arguments that already passed schema validation.
// Returns the tool output or an error describing why the tool failed.
type ToolHandler func(ctx context.Context, args map[string]any) (*Result, error)

// BuiltinTool pairs a definition with the handler that serves it.
type BuiltinTool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}
