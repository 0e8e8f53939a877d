package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the observer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the observer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size. Observers only ever send tiny
	// authenticate frames.
	maxMessageSize = 4 << 10

	// Outbound message buffer per session.
	sendBufferSize = 64
)

// session is one observer connection. Until an authenticate frame
// arrives the session is anonymous and receives nothing but its
// welcome message.
type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    atomic.Bool

	mu     sync.Mutex
	userID string
}

func newSession(id string, conn *websocket.Conn) *session {
	return &session{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *session) user() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *session) setUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// safeSend queues data for the write pump without panicking on a closed
// channel. It reports false when the session is closed or its buffer
// full.
func (c *session) safeSend(data []byte) (sent bool) {
	// There is a window between the closed check and the send where
	// close may run; recover covers it.
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once, which ends the write pump
// and tears the connection down.
func (c *session) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}
