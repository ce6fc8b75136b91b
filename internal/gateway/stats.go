// ABOUTME: HTTP handlers for recorded tool call statistics
// ABOUTME: GET /api/stats/usage aggregates per tool; GET /api/stats/calls lists recent calls

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/quip-gateway/internal/auth"
	"github.com/2389/quip-gateway/internal/store"
)

// usageResponse is the body of GET /api/stats/usage.
type usageResponse struct {
	Usage   []*store.ToolUsage `json:"usage"`
	Streams streamStats        `json:"streams"`
}

type streamStats struct {
	OpenSessions   int   `json:"open_sessions"`
	KeepalivesSent int64 `json:"keepalives_sent"`
}

// callJSON is the wire form of a recorded call.
type callJSON struct {
	ID           string    `json:"id"`
	ToolName     string    `json:"tool_name"`
	SessionID    string    `json:"session_id,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

func (g *Gateway) registerStatsRoutes(mux *http.ServeMux, verifier auth.TokenVerifier) {
	protect := auth.Middleware(verifier, g.logger)
	mux.Handle("GET /api/stats/usage", protect(http.HandlerFunc(g.handleUsage)))
	mux.Handle("GET /api/stats/calls", protect(http.HandlerFunc(g.handleRecentCalls)))
}

// handleUsage returns per-tool aggregates. Query parameters:
// tool (exact name), since and until (RFC 3339).
func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	var filter store.UsageFilter
	q := r.URL.Query()

	if tool := q.Get("tool"); tool != "" {
		filter.ToolName = &tool
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, p.name+" must be an RFC 3339 timestamp")
			return
		}
		*p.dst = &t
	}

	usage := []*store.ToolUsage{}
	if g.store != nil {
		var err error
		usage, err = g.store.GetToolUsage(r.Context(), filter)
		if err != nil {
			g.logger.Error("failed to query tool usage", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to query usage")
			return
		}
	}

	stats := g.mcpServer.Stats()
	writeJSONBody(w, http.StatusOK, usageResponse{
		Usage: usage,
		Streams: streamStats{
			OpenSessions:   stats.OpenSessions,
			KeepalivesSent: stats.KeepalivesSent,
		},
	})
}

// handleRecentCalls lists recorded calls, newest first. ?limit caps the count.
func (g *Gateway) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	out := []callJSON{}
	if g.store != nil {
		calls, err := g.store.ListToolCalls(r.Context(), limit)
		if err != nil {
			g.logger.Error("failed to list tool calls", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list calls")
			return
		}
		for _, c := range calls {
			out = append(out, callJSON{
				ID:           c.ID,
				ToolName:     c.ToolName,
				SessionID:    c.SessionID,
				Status:       c.Status,
				ErrorMessage: c.ErrorMessage,
				DurationMS:   c.DurationMS,
				CreatedAt:    c.CreatedAt,
			})
		}
	}

	writeJSONBody(w, http.StatusOK, map[string]any{"calls": out})
}

func writeJSONBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONBody(w, status, map[string]string{"error": msg})
}
