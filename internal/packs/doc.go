// Package packs holds the tool registry and the invoker that runs tool calls.
//
// # Overview
//
// Tools are grouped into packs. A pack is a named collection of tools
// registered together at startup; the gateway ships two of them (see
// internal/builtins). Once registered, the set of tools is fixed for the
// life of the process.
//
// # Components
//
//   - Registry: Holds tool definitions and handlers, keyed by unique name
//   - Router: Looks up a tool, validates arguments against its input schema
//     and invokes the handler
//
// # Registration
//
// Tool names are globally unique. Registering a name twice is a startup
// error (ErrToolCollision), as is an input schema that does not compile
// (ErrInvalidSchema). RegisterPack is all-or-nothing.
//
//	registry := packs.NewRegistry(logger)
//	if err := registry.RegisterPack(builtins.JokesPack(client, builtins.DefaultEndpoints())); err != nil {
//		return err
//	}
//
// # Invocation
//
// The router validates arguments before the handler ever runs:
//
//  1. Unknown tool name: ErrToolNotFound
//  2. Arguments not an object, a required property missing, or a schema
//     violation: *ArgumentError
//  3. Handler error or panic: *ToolError carrying the handler's message
//
//	router := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: logger})
//	result, err := router.RouteToolCall(ctx, "get_joke", json.RawMessage(`{"category":"Pun"}`), requestID)
//
// Handlers never share state between calls; the registry is read-only after
// startup so lookups from concurrent requests need no coordination beyond
// the registry's read lock.
package packs
