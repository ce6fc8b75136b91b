// Package mcp implements the Model Context Protocol endpoint of the gateway.
//
// # Protocol
//
// Clients speak JSON-RPC 2.0 to a single endpoint, /mcp. A payload is one
// request object or a non-empty batch array. Requests without an id are
// notifications and never get a response.
//
// Supported methods:
//
//   - initialize: negotiates the protocol version and reports capabilities
//   - tools/list: every registered tool, in registration order
//   - tools/call: validates arguments and runs the tool
//   - notifications/initialized, logging/setLevel: acknowledged with {}
//
// Errors use the standard codes: -32600 for envelope problems (with every
// diagnostic listed in error.data.errors), -32601 for unknown methods and
// tools, -32602 for bad params or arguments, -32603 for tool failures.
//
// # Delivery Modes
//
// Single-shot: POST /mcp without a session id. The HTTP response carries the
// reply; a notification-only payload gets 202 Accepted.
//
// Streaming: GET /mcp opens a session, either as Server-Sent Events or as a
// WebSocket upgrade. The session id comes back in the Mcp-Session-Id header
// (and in the first event or frame). SSE clients POST payloads with that
// header and receive 202; replies arrive as "message" events. WebSocket
// clients send payloads as frames. A session handles its payloads one at a
// time, so replies leave in the order the payloads arrived.
//
// Idle streams receive a keep-alive (": keepalive" comment or ping frame).
// Sessions end on disconnect, DELETE /mcp, idle timeout or shutdown.
//
// # Architecture
//
//   - Dispatcher: envelope validation, method table, batch fan-out
//   - ConnState: per-connection handshake state, never shared
//   - Server: HTTP endpoint, sessions, keep-alive, discovery routes
//
// # Discovery
//
//	GET  /api/tools[?format=yaml]   tools/list result as JSON or YAML
//	POST /api/tools/{name}          REST shim: body is the arguments object
//	GET  /openapi.json              OpenAPI 3.0 description of the shim
//	GET  /docs                      HTML tool catalog
package mcp
