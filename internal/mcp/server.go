// ABOUTME: MCP HTTP endpoint bridging single-shot POSTs and streaming sessions to the dispatcher.
// ABOUTME: Serves SSE and WebSocket sessions with keep-alive and idle teardown on one address.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/quip-gateway/internal/auth"
	"github.com/2389/quip-gateway/internal/packs"
)

// SessionHeader carries the streaming session id on requests and responses.
const SessionHeader = "Mcp-Session-Id"

// Transport defaults
const (
	DefaultKeepaliveInterval  = 30 * time.Second
	DefaultSessionIdleTimeout = 30 * time.Minute
)

// Mode selects which delivery modes the endpoint accepts.
type Mode string

const (
	ModeSingle    Mode = "single"
	ModeStreaming Mode = "streaming"
	ModeBoth      Mode = "both"
)

// ParseMode validates a configured transport mode. Empty means ModeBoth.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeBoth, nil
	case ModeSingle, ModeStreaming, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q (want single, streaming or both)", s)
	}
}

func (m Mode) allowsSingle() bool    { return m == ModeSingle || m == ModeBoth }
func (m Mode) allowsStreaming() bool { return m == ModeStreaming || m == ModeBoth }

// Config holds configuration for the MCP server.
type Config struct {
	Dispatcher         *Dispatcher
	Registry           *packs.Registry
	Logger             *slog.Logger
	Mode               Mode
	KeepaliveInterval  time.Duration
	SessionIdleTimeout time.Duration      // 0 disables the idle timeout
	TokenVerifier      auth.TokenVerifier // nil disables authentication
}

// Stats is a snapshot of streaming activity.
type Stats struct {
	OpenSessions   int   `json:"open_sessions"`
	KeepalivesSent int64 `json:"keepalives_sent"`
}

// Server implements the MCP endpoint and the tool discovery surface.
type Server struct {
	dispatcher        *Dispatcher
	registry          *packs.Registry
	logger            *slog.Logger
	mode              Mode
	keepaliveInterval time.Duration
	idleTimeout       time.Duration
	verifier          auth.TokenVerifier
	sessions          *sessionStore
	upgrader          websocket.Upgrader

	keepalivesSent atomic.Int64
	closed         atomic.Bool
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}

	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.KeepaliveInterval
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	idle := cfg.SessionIdleTimeout
	if idle < 0 {
		idle = 0
	}

	return &Server{
		dispatcher:        cfg.Dispatcher,
		registry:          cfg.Registry,
		logger:            logger,
		mode:              mode,
		keepaliveInterval: interval,
		idleTimeout:       idle,
		verifier:          cfg.TokenVerifier,
		sessions:          newSessionStore(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}, nil
}

// RegisterRoutes registers the MCP endpoint and discovery routes on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	protect := auth.Middleware(s.verifier, s.logger)

	mux.Handle("/mcp", protect(http.HandlerFunc(s.handleMCP)))
	mux.Handle("GET /api/tools", protect(http.HandlerFunc(s.handleListTools)))
	mux.Handle("POST /api/tools/{name}", protect(http.HandlerFunc(s.handleCallToolREST)))
	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)
	mux.HandleFunc("GET /docs", s.handleDocs)
}

// Stats returns the current streaming activity.
func (s *Server) Stats() Stats {
	return Stats{
		OpenSessions:   s.sessions.count(),
		KeepalivesSent: s.keepalivesSent.Load(),
	}
}

// Close tears down every open session and refuses new ones.
func (s *Server) Close() {
	s.closed.Store(true)
	for _, sess := range s.sessions.drain() {
		if sess.close("server shutdown") {
			s.logger.Info("MCP session closed", "session_id", sess.id, "reason", "server shutdown")
		}
	}
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// requestSessionID reads the session id from the header or the sessionId query parameter.
func requestSessionID(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("sessionId")
}

// handlePost processes JSON-RPC payloads sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := requestSessionID(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeJSON(w, http.StatusOK, s.dispatcher.encode(errorResponse(nil, NewInvalidRequest("failed to read request body"))))
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeJSON(w, http.StatusOK, s.dispatcher.encode(errorResponse(nil, NewInvalidRequest("request body too large"))))
		return
	}

	if sessionID != "" {
		s.handleSessionPost(w, r, sessionID, body)
		return
	}

	if !s.mode.allowsSingle() {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}

	// Handlers finish even if the client hangs up; the reply is then simply lost.
	ctx := context.WithoutCancel(r.Context())
	reply := s.dispatcher.HandlePayload(ctx, NewConnState(""), body)
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleSessionPost queues a payload on a streaming session. The response is
// delivered on the session's stream, not in this HTTP response.
func (s *Server) handleSessionPost(w http.ResponseWriter, r *http.Request, sessionID string, body []byte) {
	if !s.mode.allowsStreaming() {
		http.Error(w, "Bad Request: sessions are not enabled", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if err := sess.enqueue(r.Context(), body); err != nil {
		if errors.Is(err, errSessionClosed) {
			http.Error(w, "Not Found", http.StatusNotFound)
		}
		return
	}

	s.logger.Debug("queued payload on session", "session_id", sessionID, "bytes", len(body))
	w.WriteHeader(http.StatusAccepted)
}

// handleGet opens a streaming session over WebSocket or SSE.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.mode.allowsStreaming() {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.closed.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}

	if accept := r.Header.Get("Accept"); accept != "" &&
		!strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "*/*") {
		http.Error(w, "Not Acceptable: use text/event-stream or a WebSocket upgrade", http.StatusNotAcceptable)
		return
	}

	s.handleSSE(w, r)
}

// handleSSE streams a session as Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	writer, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sess := s.openSession("sse")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(SessionHeader, sess.id)
	w.WriteHeader(http.StatusOK)

	if err := writer.writeEvent("endpoint", []byte("/mcp?sessionId="+sess.id)); err != nil {
		s.closeSession(sess, "write failed")
		return
	}

	go sess.run(context.WithoutCancel(r.Context()), s.dispatcher)
	s.streamLoop(r.Context(), sess, writer)
}

// sessionNotice tells a WebSocket client which session it was assigned.
type sessionNotice struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
}

// handleWebSocket streams a session over a WebSocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.openSession("websocket")

	conn, err := s.upgrader.Upgrade(w, r, http.Header{SessionHeader: []string{sess.id}})
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.closeSession(sess, "upgrade failed")
		return
	}
	defer conn.Close()

	writer := &wsWriter{conn: conn}
	notice, _ := json.Marshal(sessionNotice{
		JSONRPC: JSONRPCVersion,
		Method:  "notifications/session",
		Params:  map[string]string{"sessionId": sess.id},
	})
	if err := writer.writeMessage(notice); err != nil {
		s.closeSession(sess, "write failed")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go sess.run(ctx, s.dispatcher)
	go s.readFrames(ctx, sess, conn)

	s.streamLoop(r.Context(), sess, writer)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, sess.reason()),
		time.Now().Add(wsWriteTimeout))
}

// readFrames queues every inbound frame on the session until the client
// disconnects or the session closes.
func (s *Server) readFrames(ctx context.Context, sess *session, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.closeSession(sess, "client disconnected")
			return
		}
		if err := sess.enqueue(ctx, data); err != nil {
			return
		}
	}
}

// handleDelete terminates a session.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := requestSessionID(r)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	if !s.mode.allowsStreaming() {
		http.Error(w, "Bad Request: sessions are not enabled", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	s.closeSession(sess, "client requested")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) openSession(transport string) *session {
	sess := newSession(transport)
	s.sessions.add(sess)
	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"transport", transport,
	)
	return sess
}

// closeSession tears a session down and forgets it. Safe to call repeatedly.
func (s *Server) closeSession(sess *session, reason string) {
	if !sess.close(reason) {
		return
	}
	s.sessions.remove(sess.id)
	s.logger.Info("MCP session closed",
		"session_id", sess.id,
		"transport", sess.transport,
		"reason", reason,
		"duration", time.Since(sess.createdAt),
	)
}

// writeJSON writes an already encoded JSON body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
