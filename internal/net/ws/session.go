package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MurkesM/ARPG/internal/replication"
	"github.com/MurkesM/ARPG/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	// maxMessageSize bounds what the authority reads from an observer.
	maxMessageSize = 64 * 1024
	// maxSnapshotSize bounds what an observer reads from the authority. A
	// snapshot carries every character.
	maxSnapshotSize = 32 << 20

	// DefaultSendBuffer is the number of envelopes queued per observer
	// before it is disconnected as too slow.
	DefaultSendBuffer = 1024
)

// session is one observer connection on the authority. Deliver is called on
// the tick goroutine and never blocks; a full queue closes the session.
type session struct {
	id     string
	conn   *websocket.Conn
	logger telemetry.Logger

	mu     sync.Mutex
	send   chan replication.Envelope
	closed bool
	reason string
}

func newSession(id string, conn *websocket.Conn, buffer int, logger telemetry.Logger) *session {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &session{id: id, conn: conn, logger: logger, send: make(chan replication.Envelope, buffer)}
}

// Deliver implements replication.Subscriber.
func (s *session) Deliver(env replication.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- env:
	default:
		s.logger.Printf("[ws] observer %s send queue full; closing", s.id)
		s.closeLocked("slow_consumer")
	}
}

func (s *session) close(reason string) {
	s.mu.Lock()
	s.closeLocked(reason)
	s.mu.Unlock()
}

func (s *session) closeLocked(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	close(s.send)
}

func (s *session) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case env, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, s.closeReason()))
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				s.logger.Printf("[ws] write to %s failed: %v", s.id, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
