// ABOUTME: Routes tool calls to registered handlers after validating arguments.
// ABOUTME: Converts handler failures and panics into ToolError so callers stay up.

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrEmptyResult indicates a handler reported success without any content.
var ErrEmptyResult = errors.New("tool returned no content")

// ToolError wraps a failure raised by a tool handler.
// Error returns the handler's own message unchanged.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Router validates and executes tool calls against a Registry.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: cfg.Registry,
		logger:   logger,
	}
}

// RouteToolCall looks up toolName, validates the raw arguments against the
// tool's input schema and invokes its handler.
//
// Errors:
//   - ErrToolNotFound when the tool is not registered
//   - *ArgumentError when arguments are not an object or violate the schema
//   - *ToolError when the handler fails, panics, or returns no content
func (r *Router) RouteToolCall(ctx context.Context, toolName string, arguments json.RawMessage, requestID string) (*Result, error) {
	tool, ok := r.registry.Lookup(toolName)
	if !ok {
		r.logger.Debug("tool not found in registry",
			"tool_name", toolName,
			"request_id", requestID,
		)
		return nil, ErrToolNotFound
	}

	args, err := decodeArguments(toolName, arguments)
	if err != nil {
		return nil, err
	}
	if err := tool.schema.validate(toolName, args); err != nil {
		r.logger.Debug("tool arguments rejected",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
		return nil, err
	}

	r.logger.Info("→ dispatching to tool",
		"tool_name", toolName,
		"pack_id", tool.PackID,
		"request_id", requestID,
	)

	start := time.Now()
	result, err := r.invoke(ctx, tool, args)
	if err != nil {
		r.logger.Warn("tool error",
			"tool_name", toolName,
			"request_id", requestID,
			"duration", time.Since(start),
			"error", err,
		)
		return nil, &ToolError{Tool: toolName, Err: err}
	}
	if result == nil || len(result.Content) == 0 {
		r.logger.Warn("tool returned empty result",
			"tool_name", toolName,
			"request_id", requestID,
		)
		return nil, &ToolError{Tool: toolName, Err: ErrEmptyResult}
	}

	r.logger.Info("← tool responded",
		"tool_name", toolName,
		"request_id", requestID,
		"duration", time.Since(start),
		"blocks", len(result.Content),
	)
	return result, nil
}

// invoke calls the handler, turning a panic into an error.
func (r *Router) invoke(ctx context.Context, tool *Tool, args map[string]any) (result *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panicked",
				"tool_name", tool.Definition.Name,
				"panic", p,
			)
			result = nil
			err = fmt.Errorf("tool panicked: %v", p)
		}
	}()
	return tool.Handler(ctx, args)
}

// HasTool checks if a tool with the given name is registered.
func (r *Router) HasTool(toolName string) bool {
	_, ok := r.registry.Lookup(toolName)
	return ok
}

// GetToolDefinition returns the tool definition for a given tool name.
// Returns nil if the tool is not found.
func (r *Router) GetToolDefinition(toolName string) *ToolDefinition {
	tool, ok := r.registry.Lookup(toolName)
	if !ok {
		return nil
	}
	return tool.Definition
}

// decodeArguments turns the raw arguments into an object. Absent or null
// arguments become an empty object.
func decodeArguments(toolName string, raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, &ArgumentError{Tool: toolName, Problems: []string{"arguments are not valid JSON"}}
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, &ArgumentError{Tool: toolName, Problems: []string{"arguments must be an object"}}
	}
	return args, nil
}
