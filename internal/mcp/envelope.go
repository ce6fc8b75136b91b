// ABOUTME: Decodes wire payloads into single or batched JSON-RPC messages and validates envelopes.
// ABOUTME: Malformed payloads get an InvalidRequest reply with a best-effort id.

package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// DecodePayload splits a wire payload into its messages. A payload is either
// one JSON object or a non-empty array of elements. Elements are returned
// raw so each can be validated on its own.
//
// When the payload cannot be decoded at all the returned response is the
// InvalidRequest to send back, with the id recovered from the bytes when
// possible.
func DecodePayload(body []byte) (messages []json.RawMessage, isBatch bool, failure *Response) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, errorResponse(nil, NewInvalidRequest("request body is empty"))
	}

	if !json.Valid(trimmed) {
		return nil, false, errorResponse(bestEffortID(trimmed), NewInvalidRequest("payload is not valid JSON"))
	}

	switch trimmed[0] {
	case '{':
		return []json.RawMessage{json.RawMessage(trimmed)}, false, nil
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, true, errorResponse(nil, NewInvalidRequest("batch could not be decoded: "+err.Error()))
		}
		if len(elements) == 0 {
			return nil, true, errorResponse(nil, NewInvalidRequest("batch must contain at least one request"))
		}
		return elements, true, nil
	default:
		return nil, false, errorResponse(nil, NewInvalidRequest("payload must be a request object or an array of requests"))
	}
}

// bestEffortID pulls a usable id out of a payload that failed to parse.
// gjson stops at the first malformed token, so an id written before the
// damage is still found.
func bestEffortID(body []byte) json.RawMessage {
	if len(body) == 0 || body[0] != '{' {
		return nil
	}
	id := gjson.GetBytes(body, "id")
	if !id.Exists() || !validIDToken(id.Type, id.Raw) {
		return nil
	}
	return json.RawMessage(id.Raw)
}

// validIDToken accepts JSON strings and integers.
func validIDToken(kind gjson.Type, raw string) bool {
	switch kind {
	case gjson.String:
		return json.Valid([]byte(raw))
	case gjson.Number:
		return !strings.ContainsAny(raw, ".eE")
	default:
		return false
	}
}

// ValidateRequest checks one message against the JSON-RPC 2.0 envelope rules
// and reports every violation it finds, not just the first.
//
// The returned request is non-nil whenever the message was a JSON object.
// On failure its ID is set only if the id member itself was valid, so the
// error can still be correlated.
func ValidateRequest(raw json.RawMessage) (*Request, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, NewInvalidRequest("request must be a JSON object")
	}

	req := &Request{}
	var diagnostics []string

	if v, ok := fields["jsonrpc"]; !ok {
		diagnostics = append(diagnostics, `jsonrpc is required and must be "2.0"`)
	} else if err := json.Unmarshal(v, &req.JSONRPC); err != nil || req.JSONRPC != JSONRPCVersion {
		diagnostics = append(diagnostics, fmt.Sprintf(`jsonrpc must be "2.0", got %s`, compact(v)))
	}

	if v, ok := fields["id"]; ok {
		parsed := gjson.ParseBytes(v)
		if validIDToken(parsed.Type, parsed.Raw) {
			req.ID = json.RawMessage(parsed.Raw)
		} else {
			diagnostics = append(diagnostics, fmt.Sprintf("id must be a string or an integer, got %s", compact(v)))
		}
	}

	if v, ok := fields["method"]; !ok {
		diagnostics = append(diagnostics, "method is required")
	} else if err := json.Unmarshal(v, &req.Method); err != nil {
		diagnostics = append(diagnostics, fmt.Sprintf("method must be a string, got %s", compact(v)))
	} else if req.Method == "" {
		diagnostics = append(diagnostics, "method must not be empty")
	}

	if v, ok := fields["params"]; ok {
		if gjson.ParseBytes(v).IsObject() {
			req.Params = v
		} else {
			diagnostics = append(diagnostics, fmt.Sprintf("params must be an object, got %s", compact(v)))
		}
	}

	if len(diagnostics) > 0 {
		return req, NewInvalidRequest(diagnostics...)
	}
	return req, nil
}

// compact renders a raw JSON value for a diagnostic, truncated to stay readable.
func compact(v json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	s := buf.String()
	if len(s) > 64 {
		s = s[:61] + "..."
	}
	return s
}
