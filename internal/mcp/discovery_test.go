// ABOUTME: Tests for the discovery routes and the REST tool-call shim.
// ABOUTME: Checks the JSON, YAML, OpenAPI and HTML renderings of the registry.

package mcp

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestListToolsRoute(t *testing.T) {
	_, ts, _ := setupTestServer(t, ModeBoth, time.Minute, 0)

	resp, body := get(t, ts.URL+"/api/tools")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var doc ListToolsResult
	require.NoError(t, json.Unmarshal(body, &doc))
	require.Len(t, doc.Tools, 4)
	assert.Equal(t, "echo", doc.Tools[0].Name)

	resp, body = get(t, ts.URL+"/api/tools?format=yaml")
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	var fromYAML struct {
		Tools []struct {
			Name        string         `yaml:"name"`
			InputSchema map[string]any `yaml:"inputSchema"`
		} `yaml:"tools"`
	}
	require.NoError(t, yaml.Unmarshal(body, &fromYAML))
	require.Len(t, fromYAML.Tools, 4)
	assert.Equal(t, "slow", fromYAML.Tools[1].Name)
	assert.Equal(t, "object", fromYAML.Tools[1].InputSchema["type"])
}

func TestRESTShim(t *testing.T) {
	_, ts, stubs := setupTestServer(t, ModeBoth, time.Minute, 0)

	call := func(name, body string) (int, map[string]any) {
		resp, err := http.Post(ts.URL+"/api/tools/"+name, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, decodeResponse(t, data)
	}

	status, body := call("echo", `{"text":"via rest"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "via rest", firstText(body))
	assert.True(t, strings.HasPrefix(body["id"].(string), "rest-"))

	status, body = call("echo", ``)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidParams, errorCode(body))

	status, body = call("nope", `{}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Unknown tool: nope", errorMessage(body))

	status, _ = call("fail", `{}`)
	assert.Equal(t, http.StatusInternalServerError, status)

	status, body = call("echo", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRequest, errorCode(body))

	assert.EqualValues(t, 1, stubs.echoCalls.Load())
}

func TestOpenAPIRoute(t *testing.T) {
	_, ts, _ := setupTestServer(t, ModeBoth, time.Minute, 0)

	_, body := get(t, ts.URL+"/openapi.json")

	var doc struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Title   string `json:"title"`
			Version string `json:"version"`
		} `json:"info"`
		Paths map[string]map[string]struct {
			OperationID string `json:"operationId"`
			RequestBody struct {
				Content map[string]struct {
					Schema map[string]any `json:"schema"`
				} `json:"content"`
			} `json:"requestBody"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Equal(t, "quip-test", doc.Info.Title)
	assert.Len(t, doc.Paths, 5)

	echo := doc.Paths["/api/tools/echo"]["post"]
	assert.Equal(t, "echo", echo.OperationID)
	schema := echo.RequestBody.Content["application/json"].Schema
	assert.Equal(t, []any{"text"}, schema["required"])
}

func TestDocsRoute(t *testing.T) {
	_, ts, _ := setupTestServer(t, ModeBoth, time.Minute, 0)

	resp, body := get(t, ts.URL+"/docs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	html := string(body)
	assert.Contains(t, html, "<h1>quip-test tools</h1>")
	assert.Contains(t, html, "<code>echo</code>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "What to echo")
	assert.Contains(t, html, "<em>No arguments.</em>")
}

func TestToolCatalogMarkdown(t *testing.T) {
	_, registry, _ := setupTestDispatcher(t, nil)
	md := toolCatalogMarkdown("x", registry.List())
	assert.True(t, strings.HasPrefix(md, "# x tools\n"))
	assert.Contains(t, md, "| `text` | string | yes | What to echo |")
}
