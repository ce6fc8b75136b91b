// ABOUTME: Tests for method dispatch, tool call error mapping and batch handling.
// ABOUTME: Covers id echoing, per-connection state and call recording.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/quip-gateway/internal/store"
)

func dispatchOne(t *testing.T, d *Dispatcher, conn *ConnState, payload string) map[string]any {
	t.Helper()
	reply := d.HandlePayload(context.Background(), conn, []byte(payload))
	require.NotNil(t, reply, "expected a response for %s", payload)
	return decodeResponse(t, reply)
}

func TestHandlePayload_EchoesID(t *testing.T) {
	d, _, _ := setupTestDispatcher(t, nil)

	ids := []string{`1`, `0`, `-42`, `9007199254740993`, `"abc"`, `""`, `"with \"quotes\""`}
	methods := []string{"initialize", "tools/list", "ping-unknown", "tools/call"}

	for _, id := range ids {
		for _, method := range methods {
			t.Run(fmt.Sprintf("%s/%s", method, id), func(t *testing.T) {
				payload := `{"jsonrpc":"2.0","id":` + id + `,"method":"` + method + `"}`
				reply := d.HandlePayload(context.Background(), NewConnState(""), []byte(payload))
				require.NotNil(t, reply)

				var resp struct {
					ID json.RawMessage `json:"id"`
				}
				require.NoError(t, json.Unmarshal(reply, &resp))
				assert.Equal(t, id, string(resp.ID))
			})
		}
	}
}

func TestHandlePayload_ResultXorError(t *testing.T) {
	d, _, _ := setupTestDispatcher(t, nil)

	for _, payload := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"nope"}`,
		`{"jsonrpc":"2.0","id":3,"method":"notifications/initialized"}`,
	} {
		resp := dispatchOne(t, d, NewConnState(""), payload)
		_, hasResult := resp["result"]
		_, hasError := resp["error"]
		assert.True(t, hasResult != hasError, "payload %s: %v", payload, resp)
		assert.Equal(t, "2.0", resp["jsonrpc"])
	}
}

func TestHandlePayload_Notifications(t *testing.T) {
	d, _, stubs := setupTestDispatcher(t, nil)
	conn := NewConnState("")

	reply := d.HandlePayload(context.Background(), conn, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, reply)
	assert.True(t, conn.Initialized(), "notification side effects still happen")

	reply = d.HandlePayload(context.Background(), conn, []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`))
	assert.Nil(t, reply)
	assert.EqualValues(t, 1, stubs.echoCalls.Load())

	reply = d.HandlePayload(context.Background(), conn, []byte(`{"jsonrpc":"2.0","method":"does/not/exist"}`))
	assert.Nil(t, reply, "unknown notification methods are dropped silently")
}

func TestInitialize(t *testing.T) {
	d, _, _ := setupTestDispatcher(t, nil)

	t.Run("echoes supported version", func(t *testing.T) {
		conn := NewConnState("")
		resp := dispatchOne(t, d, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"cli","version":"0.1"}}}`)

		result := resp["result"].(map[string]any)
		assert.Equal(t, "2025-03-26", result["protocolVersion"])
		assert.Equal(t, map[string]any{"name": "quip-test", "version": "9.9.9"}, result["serverInfo"])
		caps := result["capabilities"].(map[string]any)
		assert.Equal(t, map[string]any{"listChanged": false}, caps["tools"])
		assert.Contains(t, caps, "logging")

		assert.Equal(t, "2025-03-26", conn.ProtocolVersion())
		assert.Equal(t, ClientInfo{Name: "cli", Version: "0.1"}, conn.Client())
	})

	t.Run("falls back to latest", func(t *testing.T) {
		resp := dispatchOne(t, d, NewConnState(""), `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
		assert.Equal(t, latestProtocolVersion, resp["result"].(map[string]any)["protocolVersion"])
	})

	t.Run("idempotent", func(t *testing.T) {
		conn := NewConnState("")
		first := dispatchOne(t, d, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
		second := dispatchOne(t, d, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
		assert.Equal(t, first, second)
	})
}

func TestConnStateIsolation(t *testing.T) {
	d, _, _ := setupTestDispatcher(t, nil)
	a, b := NewConnState("a"), NewConnState("b")

	dispatchOne(t, d, a, `{"jsonrpc":"2.0","id":1,"method":"notifications/initialized"}`)
	dispatchOne(t, d, a, `{"jsonrpc":"2.0","id":2,"method":"logging/setLevel","params":{"level":"debug"}}`)

	assert.True(t, a.Initialized())
	assert.Equal(t, "debug", a.LogLevel())
	assert.False(t, b.Initialized())
	assert.Equal(t, "info", b.LogLevel())
}

func TestSetLevelAcknowledgesAnything(t *testing.T) {
	d, _, _ := setupTestDispatcher(t, nil)

	resp := dispatchOne(t, d, NewConnState(""), `{"jsonrpc":"2.0","id":1,"method":"logging/setLevel","params":{"level":7}}`)
	assert.Equal(t, map[string]any{}, resp["result"])
}

func TestToolsList(t *testing.T) {
	d, registry, _ := setupTestDispatcher(t, nil)

	first := d.HandlePayload(context.Background(), NewConnState(""), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	second := d.HandlePayload(context.Background(), NewConnState(""), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	assert.Equal(t, string(first), string(second), "tools/list is idempotent")

	resp := decodeResponse(t, first)
	tools := resp["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, registry.Count())

	var names []string
	for _, tool := range tools {
		m := tool.(map[string]any)
		names = append(names, m["name"].(string))
		assert.Contains(t, m, "inputSchema")
	}
	assert.Equal(t, []string{"echo", "slow", "fail", "boom"}, names)
}

func TestToolsCall(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantCode    int
		wantMessage string
		wantText    string
	}{
		{
			name:     "success",
			payload:  callPayload(1, "echo", `{"text":"hello"}`),
			wantText: "hello",
		},
		{
			name:        "missing required argument",
			payload:     callPayload(1, "echo", `{}`),
			wantCode:    CodeInvalidParams,
			wantMessage: "missing required argument: text",
		},
		{
			name:     "wrong argument type",
			payload:  callPayload(1, "echo", `{"text":5}`),
			wantCode: CodeInvalidParams,
		},
		{
			name:     "non-object arguments",
			payload:  callPayload(1, "echo", `["hello"]`),
			wantCode: CodeInvalidParams,
		},
		{
			name:        "unknown tool",
			payload:     callPayload(1, "nonexistent_tool", `{}`),
			wantCode:    CodeMethodNotFound,
			wantMessage: "Unknown tool: nonexistent_tool",
		},
		{
			name:        "missing name",
			payload:     `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`,
			wantCode:    CodeInvalidParams,
			wantMessage: "tool name is required",
		},
		{
			name:        "no params",
			payload:     `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`,
			wantCode:    CodeInvalidParams,
			wantMessage: "tool name is required",
		},
		{
			name:     "non-string name",
			payload:  `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":3}}`,
			wantCode: CodeInvalidParams,
		},
		{
			name:        "handler error",
			payload:     callPayload(1, "fail", `{}`),
			wantCode:    CodeInternalError,
			wantMessage: "upstream exploded",
		},
		{
			name:     "handler panic",
			payload:  callPayload(1, "boom", `{}`),
			wantCode: CodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := setupTestDispatcher(t, nil)
			resp := dispatchOne(t, d, NewConnState(""), tt.payload)

			if tt.wantCode == 0 {
				require.Nil(t, resp["error"], "%v", resp)
				assert.Equal(t, tt.wantText, firstText(resp))
				return
			}
			assert.Equal(t, tt.wantCode, errorCode(resp), "%v", resp)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, errorMessage(resp))
			}
		})
	}
}

func TestToolsCall_MissingArgumentNeverInvokesHandler(t *testing.T) {
	d, _, stubs := setupTestDispatcher(t, nil)

	for i := 0; i < 5; i++ {
		resp := dispatchOne(t, d, NewConnState(""), callPayload(i, "echo", `{"other":"x"}`))
		require.Equal(t, CodeInvalidParams, errorCode(resp))
		data := resp["error"].(map[string]any)["data"].(map[string]any)
		assert.Equal(t, []any{"text"}, data["missing"])
	}
	assert.EqualValues(t, 0, stubs.echoCalls.Load())
}

func TestBatch(t *testing.T) {
	d, _, stubs := setupTestDispatcher(t, nil)

	t.Run("failure does not abort siblings and order is kept", func(t *testing.T) {
		payload := "[" + callPayload("a", "fail", `{}`) + "," + callPayload("b", "echo", `{"text":"ok"}`) + "]"
		reply := d.HandlePayload(context.Background(), NewConnState(""), []byte(payload))

		var resps []map[string]any
		require.NoError(t, json.Unmarshal(reply, &resps))
		require.Len(t, resps, 2)
		assert.Equal(t, "a", resps[0]["id"])
		assert.Equal(t, CodeInternalError, errorCode(resps[0]))
		assert.Equal(t, "b", resps[1]["id"])
		assert.Equal(t, "ok", firstText(resps[1]))
	})

	t.Run("order follows requests not completion", func(t *testing.T) {
		payload := "[" +
			callPayload(1, "slow", `{"label":"first","delay_ms":80}`) + "," +
			callPayload(2, "slow", `{"label":"second","delay_ms":40}`) + "," +
			callPayload(3, "slow", `{"label":"third","delay_ms":0}`) + "]"
		reply := d.HandlePayload(context.Background(), NewConnState(""), []byte(payload))

		var resps []map[string]any
		require.NoError(t, json.Unmarshal(reply, &resps))
		require.Len(t, resps, 3)
		for i, want := range []string{"first", "second", "third"} {
			assert.EqualValues(t, i+1, resps[i]["id"])
			assert.Equal(t, want, firstText(resps[i]))
		}
	})

	t.Run("notifications contribute no entry", func(t *testing.T) {
		payload := `[{"jsonrpc":"2.0","method":"notifications/initialized"},` + callPayload(7, "echo", `{"text":"x"}`) + `]`
		reply := d.HandlePayload(context.Background(), NewConnState(""), []byte(payload))

		var resps []map[string]any
		require.NoError(t, json.Unmarshal(reply, &resps))
		require.Len(t, resps, 1)
		assert.EqualValues(t, 7, resps[0]["id"])
	})

	t.Run("all notifications produce nothing", func(t *testing.T) {
		payload := `[{"jsonrpc":"2.0","method":"notifications/initialized"},{"jsonrpc":"2.0","method":"logging/setLevel","params":{"level":"warning"}}]`
		assert.Nil(t, d.HandlePayload(context.Background(), NewConnState(""), []byte(payload)))
	})

	t.Run("invalid elements answered individually", func(t *testing.T) {
		reply := d.HandlePayload(context.Background(), NewConnState(""), []byte(`[1, {"id":2,"method":"x"}]`))

		var resps []map[string]any
		require.NoError(t, json.Unmarshal(reply, &resps))
		require.Len(t, resps, 2)
		assert.Nil(t, resps[0]["id"])
		assert.Equal(t, CodeInvalidRequest, errorCode(resps[0]))
		assert.EqualValues(t, 2, resps[1]["id"])
		assert.Equal(t, CodeInvalidRequest, errorCode(resps[1]))
	})

	t.Run("empty batch is one invalid request", func(t *testing.T) {
		resp := dispatchOne(t, d, NewConnState(""), `[]`)
		assert.Equal(t, CodeInvalidRequest, errorCode(resp))
		assert.Nil(t, resp["id"])
	})

	assert.EqualValues(t, 3, stubs.slowCalls.Load())
}

func TestMalformedEnvelope(t *testing.T) {
	d, _, _ := setupTestDispatcher(t, nil)

	resp := dispatchOne(t, d, NewConnState(""), `{"id":1,"method":"x"}`)
	assert.Equal(t, CodeInvalidRequest, errorCode(resp))
	assert.EqualValues(t, 1, resp["id"])
	errs := resp["error"].(map[string]any)["data"].(map[string]any)["errors"].([]any)
	assert.Len(t, errs, 1)
}

func TestUnknownMethod(t *testing.T) {
	d, _, _ := setupTestDispatcher(t, nil)

	resp := dispatchOne(t, d, NewConnState(""), `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	assert.Equal(t, CodeMethodNotFound, errorCode(resp))
	assert.Equal(t, "Method not found: resources/list", errorMessage(resp))
}

func TestToolCallRecording(t *testing.T) {
	recorder := store.NewMockStore()
	d, _, _ := setupTestDispatcher(t, recorder)
	conn := NewConnState("session-xyz")

	dispatchOne(t, d, conn, callPayload(1, "echo", `{"text":"hi"}`))
	dispatchOne(t, d, conn, callPayload(2, "echo", `{}`))
	dispatchOne(t, d, conn, callPayload(3, "fail", `{}`))
	dispatchOne(t, d, conn, callPayload(4, "unknown", `{}`))

	calls := recorder.Calls()
	require.Len(t, calls, 3, "unknown tools are not recorded")
	assert.Equal(t, store.CallStatusOK, calls[0].Status)
	assert.Equal(t, "session-xyz", calls[0].SessionID)
	assert.Equal(t, store.CallStatusInvalid, calls[1].Status)
	assert.Equal(t, store.CallStatusFailed, calls[2].Status)
	assert.Equal(t, "upstream exploded", calls[2].ErrorMessage)
}

func TestToolCallRecordingFailureIsIgnored(t *testing.T) {
	recorder := store.NewMockStore()
	recorder.Err = errors.New("disk full")
	d, _, _ := setupTestDispatcher(t, recorder)

	resp := dispatchOne(t, d, NewConnState(""), callPayload(1, "echo", `{"text":"still works"}`))
	assert.Equal(t, "still works", firstText(resp))
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{})
	assert.Error(t, err)
}
