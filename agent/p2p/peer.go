package p2p

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 30 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 25 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20

	// Outbound message buffer per peer.
	sendBufferSize = 64

	// Handshake timeout when dialing a bootstrap peer.
	dialTimeout = 10 * time.Second
)

// peer is one websocket connection to a remote agent. Until the remote
// hello arrives the peer is unidentified and receives no broadcasts.
type peer struct {
	conn     *websocket.Conn
	addr     string // dial URL when outbound, remote address when inbound
	outbound bool
	send     chan []byte

	closeOnce sync.Once
	closed    atomic.Bool

	mu          sync.Mutex
	agentID     string
	validatorID string
}

func newPeer(conn *websocket.Conn, addr string, outbound bool) *peer {
	return &peer{
		conn:     conn,
		addr:     addr,
		outbound: outbound,
		send:     make(chan []byte, sendBufferSize),
	}
}

func (p *peer) identity() (agentID, validatorID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agentID, p.validatorID
}

func (p *peer) setIdentity(agentID, validatorID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agentID = agentID
	p.validatorID = validatorID
}

// safeSend queues data for the write pump without panicking on a closed
// channel. It reports false when the peer is closed or its buffer full.
func (p *peer) safeSend(data []byte) (sent bool) {
	// There is a window between the closed check and the send where
	// close may run; recover covers it.
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if p.closed.Load() {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once, which ends the write pump
// and tears the connection down.
func (p *peer) close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.send)
	})
}
