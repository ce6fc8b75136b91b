// ABOUTME: Discovery routes describing registered tools as JSON, YAML, OpenAPI and HTML.
// ABOUTME: Also serves the REST shim that turns POST /api/tools/{name} into a tools/call.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/2389/quip-gateway/internal/packs"
)

// handleListTools serves the tools/list result over plain HTTP.
// ?format=yaml renders the same document as YAML.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	doc := ListToolsResult{Tools: s.registry.List()}

	if r.URL.Query().Get("format") != "yaml" {
		s.writeJSON(w, http.StatusOK, s.dispatcher.encode(doc))
		return
	}

	out, err := toYAML(doc)
	if err != nil {
		s.logger.Error("failed to render tools as yaml", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(out)
}

// toYAML re-encodes a JSON-shaped value as YAML so raw schemas render as
// structured documents rather than byte strings.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// handleCallToolREST adapts a plain POST of an arguments object into a
// tools/call request and answers with the JSON-RPC response.
func (s *Server) handleCallToolREST(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil || int64(len(body)) > MaxRequestBodySize {
		http.Error(w, "Bad Request: unreadable or oversized body", http.StatusBadRequest)
		return
	}
	args := bytes.TrimSpace(body)
	if len(args) == 0 {
		args = []byte("{}")
	}
	if !json.Valid(args) {
		resp := errorResponse(nil, NewInvalidRequest("request body is not valid JSON"))
		s.writeJSON(w, http.StatusBadRequest, s.dispatcher.encode(resp))
		return
	}

	id, _ := json.Marshal("rest-" + uuid.New().String())
	params, _ := json.Marshal(CallToolParams{Name: name, Arguments: args})
	raw, _ := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  "tools/call",
		Params:  params,
	})

	resp := s.dispatcher.HandleMessage(context.WithoutCancel(r.Context()), NewConnState(""), raw)
	s.writeJSON(w, restStatus(resp), s.dispatcher.encode(resp))
}

// restStatus maps a JSON-RPC outcome onto an HTTP status for the REST shim.
func restStatus(resp *Response) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Code {
	case CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleOpenAPI describes the REST shim as an OpenAPI 3.0 document.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dispatcher.encode(s.openAPIDocument()))
}

func (s *Server) openAPIDocument() map[string]any {
	paths := map[string]any{
		"/api/tools": map[string]any{
			"get": map[string]any{
				"operationId": "listTools",
				"summary":     "List registered tools",
				"responses": map[string]any{
					"200": map[string]any{"description": "The tools/list result"},
				},
			},
		},
	}

	for _, def := range s.registry.List() {
		paths["/api/tools/"+def.Name] = map[string]any{
			"post": map[string]any{
				"operationId": def.Name,
				"summary":     def.Description,
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{"schema": def.InputSchema},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "JSON-RPC response carrying the tool result"},
					"400": map[string]any{"description": "Invalid arguments"},
					"500": map[string]any{"description": "Tool failure"},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   s.dispatcher.serverName,
			"version": s.dispatcher.serverVersion,
		},
		"paths": paths,
	}
}

// handleDocs renders the tool catalog as HTML.
func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	md := toolCatalogMarkdown(s.dispatcher.serverName, s.registry.List())

	var body bytes.Buffer
	renderer := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := renderer.Convert([]byte(md), &body); err != nil {
		s.logger.Error("failed to render docs", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s tools</title></head><body>\n", html.EscapeString(s.dispatcher.serverName))
	_, _ = w.Write(body.Bytes())
	fmt.Fprint(w, "</body></html>\n")
}

// schemaProperty is the part of a property schema shown in the docs table.
type schemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum"`
}

// toolCatalogMarkdown builds the Markdown source for the docs page.
func toolCatalogMarkdown(serverName string, defs []*packs.ToolDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s tools\n\n", serverName)
	fmt.Fprintf(&b, "%d tools are available over `POST /mcp` (`tools/call`) and `POST /api/tools/{name}`.\n\n", len(defs))

	for _, def := range defs {
		fmt.Fprintf(&b, "## `%s`\n\n", def.Name)
		if def.Description != "" {
			b.WriteString(def.Description + "\n\n")
		}

		var schema struct {
			Properties map[string]schemaProperty `json:"properties"`
			Required   []string                  `json:"required"`
		}
		_ = json.Unmarshal(def.InputSchema, &schema)
		if len(schema.Properties) == 0 {
			b.WriteString("_No arguments._\n\n")
			continue
		}

		required := make(map[string]bool, len(schema.Required))
		for _, name := range schema.Required {
			required[name] = true
		}
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("| Argument | Type | Required | Description |\n|---|---|---|---|\n")
		for _, name := range names {
			prop := schema.Properties[name]
			desc := prop.Description
			if len(prop.Enum) > 0 {
				values := make([]string, len(prop.Enum))
				for i, v := range prop.Enum {
					values[i] = fmt.Sprint(v)
				}
				desc = strings.TrimSpace(desc + " One of: " + strings.Join(values, ", ") + ".")
			}
			req := "no"
			if required[name] {
				req = "yes"
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", name, prop.Type, req, strings.ReplaceAll(desc, "|", `\|`))
		}
		b.WriteString("\n")
	}
	return b.String()
}
