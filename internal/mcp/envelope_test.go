// ABOUTME: Tests for payload decoding and JSON-RPC envelope validation.
// ABOUTME: Checks that every diagnostic is reported and ids are recovered when possible.

package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
		wantBatch bool
		wantFail  bool
		wantID    string // raw id of the failure response
	}{
		{name: "single object", body: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, wantCount: 1},
		{name: "batch", body: ` [{"a":1}, 2, {"b":3}] `, wantCount: 3, wantBatch: true},
		{name: "empty body", body: "   ", wantFail: true, wantID: "null"},
		{name: "empty batch", body: `[]`, wantFail: true, wantBatch: true, wantID: "null"},
		{name: "scalar payload", body: `42`, wantFail: true, wantID: "null"},
		{name: "truncated object keeps id", body: `{"jsonrpc":"2.0","id":7,"method":"tools/list"`, wantFail: true, wantID: "7"},
		{name: "truncated object keeps string id", body: `{"id":"abc","method":`, wantFail: true, wantID: `"abc"`},
		{name: "float id is not recovered", body: `{"id":1.5,"method":`, wantFail: true, wantID: "null"},
		{name: "garbage", body: `not json at all`, wantFail: true, wantID: "null"},
		{name: "truncated batch", body: `[{"jsonrpc":"2.0","id":1`, wantFail: true, wantID: "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, isBatch, failure := DecodePayload([]byte(tt.body))

			if !tt.wantFail {
				require.Nil(t, failure)
				assert.Len(t, messages, tt.wantCount)
				assert.Equal(t, tt.wantBatch, isBatch)
				return
			}

			require.NotNil(t, failure)
			require.NotNil(t, failure.Error)
			assert.Equal(t, CodeInvalidRequest, failure.Error.Code)

			encoded, err := json.Marshal(failure)
			require.NoError(t, err)
			var decoded struct {
				ID json.RawMessage `json:"id"`
			}
			require.NoError(t, json.Unmarshal(encoded, &decoded))
			assert.Equal(t, tt.wantID, string(decoded.ID))
		})
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErrs  int
		wantID    string
		wantNotif bool
	}{
		{name: "valid request", raw: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, wantID: "1"},
		{name: "valid string id", raw: `{"jsonrpc":"2.0","id":"req-1","method":"tools/list","params":{}}`, wantID: `"req-1"`},
		{name: "valid notification", raw: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, wantNotif: true},
		{name: "missing jsonrpc", raw: `{"id":1,"method":"x"}`, wantErrs: 1, wantID: "1"},
		{name: "wrong version", raw: `{"jsonrpc":"1.0","id":1,"method":"x"}`, wantErrs: 1, wantID: "1"},
		{name: "null id", raw: `{"jsonrpc":"2.0","id":null,"method":"x"}`, wantErrs: 1},
		{name: "float id", raw: `{"jsonrpc":"2.0","id":2.5,"method":"x"}`, wantErrs: 1},
		{name: "object id", raw: `{"jsonrpc":"2.0","id":{},"method":"x"}`, wantErrs: 1},
		{name: "empty method", raw: `{"jsonrpc":"2.0","id":1,"method":""}`, wantErrs: 1, wantID: "1"},
		{name: "numeric method", raw: `{"jsonrpc":"2.0","id":1,"method":5}`, wantErrs: 1, wantID: "1"},
		{name: "array params", raw: `{"jsonrpc":"2.0","id":1,"method":"x","params":[1]}`, wantErrs: 1, wantID: "1"},
		{name: "everything wrong", raw: `{"jsonrpc":2,"id":true,"params":"p"}`, wantErrs: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rpcErr := ValidateRequest(json.RawMessage(tt.raw))
			require.NotNil(t, req)
			assert.Equal(t, tt.wantID, string(req.ID))

			if tt.wantErrs == 0 {
				require.Nil(t, rpcErr)
				assert.Equal(t, tt.wantNotif, req.IsNotification())
				return
			}

			require.NotNil(t, rpcErr)
			assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
			assert.Equal(t, "Invalid Request", rpcErr.Message)
			data, ok := rpcErr.Data.(envelopeErrors)
			require.True(t, ok)
			assert.Len(t, data.Errors, tt.wantErrs, "errors: %v", data.Errors)
		})
	}
}

func TestValidateRequest_NotAnObject(t *testing.T) {
	for _, raw := range []string{`1`, `"x"`, `null`, `[]`} {
		req, rpcErr := ValidateRequest(json.RawMessage(raw))
		assert.Nil(t, req, raw)
		require.NotNil(t, rpcErr, raw)
		assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
	}
}
