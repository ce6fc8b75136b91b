// ABOUTME: Streaming session lifecycle: id minting, sequential processing and teardown.
// ABOUTME: Each session owns one worker so its responses leave in arrival order.

package mcp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// sessionInboxSize bounds how many payloads may wait for the session worker.
const sessionInboxSize = 64

// errSessionClosed is returned when a payload arrives after teardown.
var errSessionClosed = errors.New("session closed")

// session is one streaming client conversation.
type session struct {
	id        string
	transport string // "sse" or "websocket"
	conn      *ConnState
	createdAt time.Time

	inbox  chan []byte
	outbox chan []byte
	done   chan struct{}

	closeOnce    sync.Once
	closeReason  atomic.Value // string
	lastActivity atomic.Int64 // unix nanos
}

func newSession(transport string) *session {
	id := uuid.New().String()
	s := &session{
		id:        id,
		transport: transport,
		conn:      NewConnState(id),
		createdAt: time.Now(),
		inbox:     make(chan []byte, sessionInboxSize),
		outbox:    make(chan []byte),
		done:      make(chan struct{}),
	}
	s.touch()
	return s
}

func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// enqueue hands a payload to the session worker. It blocks while the inbox
// is full and gives up when ctx ends or the session closes.
func (s *session) enqueue(ctx context.Context, body []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	s.touch()
	select {
	case s.inbox <- body:
		return nil
	case <-s.done:
		return errSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close tears the session down once. Later calls are no-ops.
func (s *session) close(reason string) bool {
	closed := false
	s.closeOnce.Do(func() {
		s.closeReason.Store(reason)
		close(s.done)
		closed = true
	})
	return closed
}

func (s *session) reason() string {
	r, _ := s.closeReason.Load().(string)
	return r
}

// run processes queued payloads one at a time until the session closes.
// A reply produced after close is dropped.
func (s *session) run(ctx context.Context, d *Dispatcher) {
	for {
		select {
		case <-s.done:
			return
		case body := <-s.inbox:
			reply := d.HandlePayload(ctx, s.conn, body)
			if reply == nil {
				continue
			}
			select {
			case s.outbox <- reply:
			case <-s.done:
				return
			}
		}
	}
}

// sessionStore manages active streaming sessions (in-memory).
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (st *sessionStore) add(s *session) {
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
}

func (st *sessionStore) get(id string) (*session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	return s, ok
}

func (st *sessionStore) remove(id string) (*session, bool) {
	st.mu.Lock()
	s, existed := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	return s, existed
}

func (st *sessionStore) count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// drain removes and returns every session.
func (st *sessionStore) drain() []*session {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*session, 0, len(st.sessions))
	for id, s := range st.sessions {
		out = append(out, s)
		delete(st.sessions, id)
	}
	return out
}
