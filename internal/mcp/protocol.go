// ABOUTME: JSON-RPC 2.0 request, response and error types used on the MCP wire.
// ABOUTME: Error constructors carry the protocol codes clients switch on.

package mcp

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the only accepted value of the jsonrpc member.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC error codes
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request or notification.
// ID is kept raw so it is echoed back exactly as the client sent it.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and so expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result or
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// envelopeErrors is the data member of an InvalidRequest error.
type envelopeErrors struct {
	Errors []string `json:"errors"`
}

// NewInvalidRequest reports an envelope that failed validation, listing every problem found.
func NewInvalidRequest(diagnostics ...string) *Error {
	return &Error{
		Code:    CodeInvalidRequest,
		Message: "Invalid Request",
		Data:    envelopeErrors{Errors: diagnostics},
	}
}

// NewMethodNotFound reports a method with no handler.
func NewMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + method}
}

// NewInvalidParams reports params that do not fit the method or tool.
func NewInvalidParams(message string, data any) *Error {
	return &Error{Code: CodeInvalidParams, Message: message, Data: data}
}

// NewInternalError reports a failure while serving an otherwise valid request.
func NewInternalError(message string) *Error {
	return &Error{Code: CodeInternalError, Message: message}
}

// resultResponse builds a success response echoing id.
func resultResponse(id json.RawMessage, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// errorResponse builds an error response echoing id, or null when id is unknown.
func errorResponse(id json.RawMessage, rpcErr *Error) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: rpcErr}
}
