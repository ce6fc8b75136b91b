// ABOUTME: Writers that push session output to SSE and WebSocket clients.
// ABOUTME: The stream loop interleaves responses, keep-alives and the idle check.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds a single WebSocket frame write.
const wsWriteTimeout = 10 * time.Second

// streamWriter delivers session output to one connected client.
// Only the stream loop calls it, so implementations need no locking.
type streamWriter interface {
	writeMessage(data []byte) error
	writeKeepalive() error
}

// sseWriter writes Server-Sent Events to a flushing ResponseWriter.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) writeEvent(event string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeMessage(data []byte) error {
	return s.writeEvent("message", data)
}

func (s *sseWriter) writeKeepalive() error {
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// wsWriter writes text frames to a WebSocket connection.
type wsWriter struct {
	conn *websocket.Conn
}

func (s *wsWriter) writeMessage(data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsWriter) writeKeepalive() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// streamLoop forwards session replies to w until the client goes away, the
// session is closed or it sits idle past the configured timeout. Keep-alives
// are sent only when nothing else was written for a full interval.
func (s *Server) streamLoop(ctx context.Context, sess *session, w streamWriter) {
	keepalive := time.NewTicker(s.keepaliveInterval)
	defer keepalive.Stop()

	var idleCheck <-chan time.Time
	if s.idleTimeout > 0 {
		t := time.NewTicker(min(s.idleTimeout, s.keepaliveInterval))
		defer t.Stop()
		idleCheck = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.closeSession(sess, "client disconnected")
			return
		case <-sess.done:
			return
		case msg := <-sess.outbox:
			if err := w.writeMessage(msg); err != nil {
				s.logger.Debug("stream write failed", "session_id", sess.id, "error", err)
				s.closeSession(sess, "write failed")
				return
			}
			sess.touch()
			keepalive.Reset(s.keepaliveInterval)
		case <-keepalive.C:
			if err := w.writeKeepalive(); err != nil {
				s.closeSession(sess, "keepalive failed")
				return
			}
			s.keepalivesSent.Add(1)
		case <-idleCheck:
			if sess.idleFor() >= s.idleTimeout {
				s.closeSession(sess, "idle timeout")
				return
			}
		}
	}
}
