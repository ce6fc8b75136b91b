// ABOUTME: Method dispatch table for MCP requests and batch reassembly.
// ABOUTME: Converts every failure into a JSON-RPC error response at this boundary.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/quip-gateway/internal/packs"
	"github.com/2389/quip-gateway/internal/store"
)

// supportedProtocolVersions lists the MCP revisions a client may negotiate.
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise when the client's is unknown.
const latestProtocolVersion = "2025-11-25"

// DefaultBatchConcurrency bounds how many batch elements run at once.
const DefaultBatchConcurrency = 8

// CallRecorder persists the outcome of tools/call requests.
type CallRecorder interface {
	RecordToolCall(ctx context.Context, call *store.ToolCall) error
}

// ClientInfo identifies the client as reported in initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ConnState is the handshake state of one logical connection: a single-shot
// HTTP request or a streaming session. It is never shared between clients.
type ConnState struct {
	mu              sync.Mutex
	sessionID       string
	initialized     bool
	protocolVersion string
	clientInfo      ClientInfo
	logLevel        string
}

// NewConnState creates connection state. sessionID is empty for single-shot requests.
func NewConnState(sessionID string) *ConnState {
	return &ConnState{sessionID: sessionID, logLevel: "info"}
}

// SessionID returns the streaming session id, or "" for single-shot requests.
func (c *ConnState) SessionID() string { return c.sessionID }

// Initialized reports whether the client sent notifications/initialized.
func (c *ConnState) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// ProtocolVersion returns the negotiated protocol version, or "" before initialize.
func (c *ConnState) ProtocolVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// Client returns the client info recorded by initialize.
func (c *ConnState) Client() ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientInfo
}

// LogLevel returns the level last set with logging/setLevel.
func (c *ConnState) LogLevel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logLevel
}

// methodHandler serves one JSON-RPC method. A nil *Error means success.
type methodHandler func(ctx context.Context, conn *ConnState, req *Request) (any, *Error)

// DispatcherConfig holds configuration for the Dispatcher.
type DispatcherConfig struct {
	Registry         *packs.Registry
	Router           *packs.Router
	Logger           *slog.Logger
	ServerName       string
	ServerVersion    string
	BatchConcurrency int
	Recorder         CallRecorder // optional
}

// Dispatcher validates messages and routes them to method handlers.
// It holds no per-connection state and is safe for concurrent use.
type Dispatcher struct {
	registry         *packs.Registry
	router           *packs.Router
	logger           *slog.Logger
	serverName       string
	serverVersion    string
	batchConcurrency int
	recorder         CallRecorder
	methods          map[string]methodHandler
}

// NewDispatcher creates a Dispatcher with the standard MCP method table.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "quip-gateway"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "1.0.0"
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	d := &Dispatcher{
		registry:         cfg.Registry,
		router:           cfg.Router,
		logger:           logger,
		serverName:       name,
		serverVersion:    version,
		batchConcurrency: concurrency,
		recorder:         cfg.Recorder,
	}
	d.methods = map[string]methodHandler{
		"initialize":                d.handleInitialize,
		"tools/list":                d.handleToolsList,
		"tools/call":                d.handleToolsCall,
		"notifications/initialized": d.handleInitialized,
		"logging/setLevel":          d.handleSetLevel,
	}
	return d, nil
}

// HandlePayload decodes a wire payload, dispatches every request in it and
// returns the encoded reply. A nil reply means there is nothing to send:
// the payload held only notifications.
func (d *Dispatcher) HandlePayload(ctx context.Context, conn *ConnState, body []byte) []byte {
	messages, isBatch, failure := DecodePayload(body)
	if failure != nil {
		d.logger.Debug("rejected undecodable payload",
			"session_id", conn.SessionID(),
			"error", failure.Error.Data,
		)
		return d.encode(failure)
	}

	if !isBatch {
		resp := d.HandleMessage(ctx, conn, messages[0])
		if resp == nil {
			return nil
		}
		return d.encode(resp)
	}

	responses := make([]*Response, len(messages))
	var g errgroup.Group
	g.SetLimit(d.batchConcurrency)
	for i, msg := range messages {
		g.Go(func() error {
			responses[i] = d.HandleMessage(ctx, conn, msg)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Response, 0, len(responses))
	for _, resp := range responses {
		if resp != nil {
			out = append(out, resp)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return d.encode(out)
}

// HandleMessage validates and dispatches a single message. It returns nil
// for valid notifications, which never get a response.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn *ConnState, raw json.RawMessage) *Response {
	req, verr := ValidateRequest(raw)
	if verr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		d.logger.Debug("invalid request envelope",
			"session_id", conn.SessionID(),
			"errors", verr.Data,
		)
		return errorResponse(id, verr)
	}

	d.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", req.IsNotification(),
		"session_id", conn.SessionID(),
	)

	result, rpcErr := d.dispatch(ctx, conn, req)
	if req.IsNotification() {
		if rpcErr != nil {
			d.logger.Debug("notification failed",
				"method", req.Method,
				"error", rpcErr.Message,
			)
		}
		return nil
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return resultResponse(req.ID, result)
}

// dispatch runs the method handler, recovering panics as InternalError.
func (d *Dispatcher) dispatch(ctx context.Context, conn *ConnState, req *Request) (result any, rpcErr *Error) {
	handler, ok := d.methods[req.Method]
	if !ok {
		return nil, NewMethodNotFound(req.Method)
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("method handler panicked",
				"method", req.Method,
				"panic", p,
			)
			result = nil
			rpcErr = NewInternalError(fmt.Sprintf("internal error: %v", p))
		}
	}()
	return handler(ctx, conn, req)
}

// encode marshals a reply. Response values are built from plain data, so a
// failure here means a tool produced something unencodable.
func (d *Dispatcher) encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("failed to encode response", "error", err)
		data, _ = json.Marshal(errorResponse(nil, NewInternalError("failed to encode response")))
	}
	return data
}

type initializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

// handleInitialize handles the MCP initialize handshake.
func (d *Dispatcher) handleInitialize(_ context.Context, conn *ConnState, req *Request) (any, *Error) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, NewInvalidParams("invalid initialize params: "+err.Error(), nil)
		}
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	conn.mu.Lock()
	conn.protocolVersion = version
	conn.clientInfo = params.ClientInfo
	conn.mu.Unlock()

	d.logger.Info("MCP client initialized",
		"session_id", conn.SessionID(),
		"protocol_version", version,
		"client_name", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
	)

	return map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools":   map[string]any{"listChanged": false},
			"logging": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    d.serverName,
			"version": d.serverVersion,
		},
	}, nil
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []*packs.ToolDefinition `json:"tools"`
}

// handleToolsList handles tools/list requests.
func (d *Dispatcher) handleToolsList(_ context.Context, _ *ConnState, _ *Request) (any, *Error) {
	tools := d.registry.List()
	d.logger.Debug("tools/list", "count", len(tools))
	return ListToolsResult{Tools: tools}, nil
}

func (d *Dispatcher) handleInitialized(_ context.Context, conn *ConnState, _ *Request) (any, *Error) {
	conn.mu.Lock()
	conn.initialized = true
	conn.mu.Unlock()
	return struct{}{}, nil
}

type setLevelParams struct {
	Level string `json:"level"`
}

func (d *Dispatcher) handleSetLevel(_ context.Context, conn *ConnState, req *Request) (any, *Error) {
	var params setLevelParams
	if len(req.Params) > 0 {
		// Acknowledged regardless of content; only a usable level is stored.
		_ = json.Unmarshal(req.Params, &params)
	}
	if params.Level != "" {
		conn.mu.Lock()
		conn.logLevel = params.Level
		conn.mu.Unlock()
	}
	return struct{}{}, nil
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// handleToolsCall handles tools/call requests.
func (d *Dispatcher) handleToolsCall(ctx context.Context, conn *ConnState, req *Request) (any, *Error) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, NewInvalidParams("invalid params: "+err.Error(), nil)
		}
	}
	if params.Name == "" {
		return nil, NewInvalidParams("tool name is required", nil)
	}

	// Generate request ID for correlation
	requestID := uuid.New().String()

	d.logger.Debug("tools/call",
		"tool_name", params.Name,
		"request_id", requestID,
		"session_id", conn.SessionID(),
	)

	start := time.Now()
	result, err := d.router.RouteToolCall(ctx, params.Name, params.Arguments, requestID)
	if errors.Is(err, packs.ErrToolNotFound) {
		return nil, &Error{Code: CodeMethodNotFound, Message: "Unknown tool: " + params.Name}
	}

	rpcErr := d.toolError(params.Name, requestID, err)
	d.record(ctx, conn, requestID, params.Name, time.Since(start), rpcErr)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return result, nil
}

// toolError maps a router error to its JSON-RPC form.
func (d *Dispatcher) toolError(toolName, requestID string, err error) *Error {
	if err == nil {
		return nil
	}

	var argErr *packs.ArgumentError
	if errors.As(err, &argErr) {
		if len(argErr.Missing) > 0 {
			return NewInvalidParams(argErr.Error(), map[string]any{"missing": argErr.Missing})
		}
		return NewInvalidParams(argErr.Error(), map[string]any{"errors": argErr.Problems})
	}

	var toolErr *packs.ToolError
	if errors.As(err, &toolErr) {
		return NewInternalError(toolErr.Error())
	}

	d.logger.Error("unexpected tool routing error",
		"tool_name", toolName,
		"request_id", requestID,
		"error", err,
	)
	return NewInternalError("internal error")
}

// record stores the call outcome. Recording failures are logged and never
// affect the response.
func (d *Dispatcher) record(ctx context.Context, conn *ConnState, requestID, toolName string, elapsed time.Duration, rpcErr *Error) {
	if d.recorder == nil {
		return
	}

	call := &store.ToolCall{
		ID:         requestID,
		ToolName:   toolName,
		SessionID:  conn.SessionID(),
		Status:     store.CallStatusOK,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if rpcErr != nil {
		call.Status = store.CallStatusFailed
		if rpcErr.Code == CodeInvalidParams {
			call.Status = store.CallStatusInvalid
		}
		call.ErrorMessage = rpcErr.Message
	}

	if err := d.recorder.RecordToolCall(context.WithoutCancel(ctx), call); err != nil {
		d.logger.Warn("failed to record tool call",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
	}
}
