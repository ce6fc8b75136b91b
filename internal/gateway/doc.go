// Package gateway orchestrates the quip-gateway server components.
//
// # Overview
//
// The gateway package owns every long-lived component: the tool registry and
// router, the JSON-RPC dispatcher, the MCP server, the optional SQLite call
// store and the optional Tailscale node. New wires them from a config.Config;
// Run serves until its context is canceled and then shuts down.
//
// # HTTP Surface
//
//   - /mcp - MCP endpoint (POST single-shot or session delivery, GET stream, DELETE session)
//   - GET /api/tools - tool catalog (JSON, or YAML with ?format=yaml)
//   - POST /api/tools/{name} - REST adapter over tools/call
//   - GET /api/stats/usage - per-tool call aggregates and stream counters
//   - GET /api/stats/calls - recent recorded calls
//   - GET /openapi.json, GET /docs - generated tool documentation
//   - GET /health - liveness
//   - GET /health/ready - ready once at least one tool is registered
//
// The /mcp and /api routes require a bearer token when auth.jwt_secret is set.
//
// # Listeners
//
// Without Tailscale the gateway listens on server.http_addr. With
// tailscale.enabled it joins the tailnet through tsnet and serves on :80,
// on :443 with tailnet certificates (https), or publicly through Funnel.
//
// # Shutdown
//
// Shutdown closes open MCP sessions first so streaming requests return, then
// drains the HTTP server and closes the tailscale node and the store.
package gateway
