// ABOUTME: Shared fixtures for mcp tests: stub tools with call counters and server setup.
// ABOUTME: The slow tool sleeps for delay_ms so tests can force completion order.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/quip-gateway/internal/packs"
)

// stubTools counts handler invocations per tool.
type stubTools struct {
	echoCalls atomic.Int32
	slowCalls atomic.Int32
}

func (st *stubTools) pack() *packs.BuiltinPack {
	return &packs.BuiltinPack{
		ID: "stub",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "echo",
					Description: "Echoes its text argument",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"What to echo"}},"required":["text"]}`),
				},
				Handler: func(_ context.Context, args map[string]any) (*packs.Result, error) {
					st.echoCalls.Add(1)
					return packs.TextResult(args["text"].(string)), nil
				},
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "slow",
					Description: "Returns its label after delay_ms",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"label":{"type":"string"},"delay_ms":{"type":"integer","minimum":0}},"required":["label"]}`),
				},
				Handler: func(_ context.Context, args map[string]any) (*packs.Result, error) {
					st.slowCalls.Add(1)
					if d, ok := args["delay_ms"].(float64); ok {
						time.Sleep(time.Duration(d) * time.Millisecond)
					}
					return packs.TextResult(args["label"].(string)), nil
				},
			},
			{
				Definition: &packs.ToolDefinition{Name: "fail", Description: "Always fails"},
				Handler: func(context.Context, map[string]any) (*packs.Result, error) {
					return nil, errors.New("upstream exploded")
				},
			},
			{
				Definition: &packs.ToolDefinition{Name: "boom", Description: "Always panics"},
				Handler: func(context.Context, map[string]any) (*packs.Result, error) {
					panic("kaboom")
				},
			},
		},
	}
}

// setupTestDispatcher creates a dispatcher over the stub tools.
func setupTestDispatcher(t *testing.T, recorder CallRecorder) (*Dispatcher, *packs.Registry, *stubTools) {
	t.Helper()
	stubs := &stubTools{}
	registry := packs.NewRegistry(slog.Default())
	require.NoError(t, registry.RegisterPack(stubs.pack()))

	router := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: slog.Default()})
	d, err := NewDispatcher(DispatcherConfig{
		Registry:      registry,
		Router:        router,
		Logger:        slog.Default(),
		ServerName:    "quip-test",
		ServerVersion: "9.9.9",
		Recorder:      recorder,
	})
	require.NoError(t, err)
	return d, registry, stubs
}

// setupTestServer creates a Server and an httptest server in front of it.
func setupTestServer(t *testing.T, mode Mode, keepalive, idle time.Duration) (*Server, *httptest.Server, *stubTools) {
	t.Helper()
	d, registry, stubs := setupTestDispatcher(t, nil)

	srv, err := NewServer(Config{
		Dispatcher:         d,
		Registry:           registry,
		Logger:             slog.Default(),
		Mode:               mode,
		KeepaliveInterval:  keepalive,
		SessionIdleTimeout: idle,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts, stubs
}

// decodeResponse unmarshals a single response into a generic map.
func decodeResponse(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(data, &resp), "body: %s", data)
	return resp
}

// errorCode extracts error.code from a decoded response, or 0.
func errorCode(resp map[string]any) int {
	e, ok := resp["error"].(map[string]any)
	if !ok {
		return 0
	}
	code, _ := e["code"].(float64)
	return int(code)
}

func errorMessage(resp map[string]any) string {
	e, _ := resp["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

// firstText returns result.content[0].text from a decoded response.
func firstText(resp map[string]any) string {
	result, _ := resp["result"].(map[string]any)
	content, _ := result["content"].([]any)
	if len(content) == 0 {
		return ""
	}
	block, _ := content[0].(map[string]any)
	text, _ := block["text"].(string)
	return text
}

func callPayload(id any, tool string, args string) string {
	idJSON, _ := json.Marshal(id)
	return `{"jsonrpc":"2.0","id":` + string(idJSON) + `,"method":"tools/call","params":{"name":"` + tool + `","arguments":` + args + `}}`
}
