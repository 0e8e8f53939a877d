package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/async"
	"github.com/trinnode/Sentinel/runtime/messagehandler"
	"github.com/trinnode/Sentinel/runtime/version"
	"github.com/trinnode/Sentinel/shared/event"
)

var log = logrus.WithField("prefix", "p2p")

// Config holds the peer fabric parameters.
type Config struct {
	AgentID           string
	ValidatorID       string
	Port              int
	DiscoveryInterval time.Duration
	BootstrapPeers    []string
}

// Service listens for inbound peers, dials bootstrap peers, and routes
// inbound envelopes onto the message feed. One connection is kept per
// remote agent id; a newer connection replaces the older one.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	server   *http.Server
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	lock    sync.RWMutex
	peers   map[string]*peer
	pending map[*peer]struct{}

	messageFeed event.Feed[*api.Envelope]
	limiter     *rateLimiter
	failStatus  error
}

// NewService validates the configuration and prepares the fabric.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.AgentID == "" || cfg.ValidatorID == "" {
		return nil, errors.New("p2p requires agent and validator ids")
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, errors.Errorf("p2p port %d outside of usable range 1024-65535", cfg.Port)
	}
	if cfg.DiscoveryInterval <= 0 {
		return nil, errors.New("p2p discovery interval must be positive")
	}
	peers, err := ParseBootstrapPeers(cfg.BootstrapPeers)
	if err != nil {
		return nil, err
	}
	cfg.BootstrapPeers = peers

	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		peers:   make(map[string]*peer),
		pending: make(map[*peer]struct{}),
		limiter: newRateLimiter(),
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
	s.server = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: s}
	return s, nil
}

// Start opens the listener, dials the bootstrap set, and schedules the
// reconnect sweep.
func (s *Service) Start() {
	log.WithFields(logrus.Fields{
		"addr":           s.server.Addr,
		"bootstrapPeers": len(s.cfg.BootstrapPeers),
	}).Info("Starting peer fabric")
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", s.server.Addr, err)
			s.failStatus = err
		}
	}()
	s.dialBootstrapPeers()
	async.RunEvery(s.ctx, s.cfg.DiscoveryInterval, s.dialBootstrapPeers)
}

// ServeHTTP upgrades an inbound peer connection.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	p := newPeer(conn, r.RemoteAddr, false /* outbound */)
	s.addPending(p)
	go s.writePump(p)
	go s.readPump(p)
	s.sendHello(p)
}

func (s *Service) dialBootstrapPeers() {
	for _, u := range s.cfg.BootstrapPeers {
		if s.isConnected(u) {
			continue
		}
		go s.dialPeer(u)
	}
}

func (s *Service) dialPeer(rawURL string) {
	ctx, cancel := context.WithTimeout(s.ctx, dialTimeout)
	defer cancel()
	conn, resp, err := s.dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		dialFailures.Inc()
		log.WithError(err).WithField("peer", rawURL).Debug("Could not dial bootstrap peer")
		return
	}
	p := newPeer(conn, rawURL, true /* outbound */)
	s.addPending(p)
	go s.writePump(p)
	go s.readPump(p)
	s.sendHello(p)
}

func (s *Service) isConnected(rawURL string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for p := range s.pending {
		if p.outbound && p.addr == rawURL {
			return true
		}
	}
	for _, p := range s.peers {
		if p.outbound && p.addr == rawURL {
			return true
		}
	}
	return false
}

func (s *Service) addPending(p *peer) {
	s.lock.Lock()
	s.pending[p] = struct{}{}
	s.lock.Unlock()
}

func (s *Service) sendHello(p *peer) {
	env, err := api.NewEnvelope(api.MsgPeerHello, s.cfg.AgentID, &api.PeerHello{
		AgentID:     s.cfg.AgentID,
		ValidatorID: s.cfg.ValidatorID,
		Version:     version.GetBuildData(),
	})
	if err != nil {
		log.WithError(err).Error("Could not build peer hello")
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.WithError(err).Error("Could not marshal peer hello")
		return
	}
	p.safeSend(data)
}

func (s *Service) readPump(p *peer) {
	defer func() {
		s.removePeer(p)
		_ = p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			agentID, _ := p.identity()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("agent", agentID).Debug("Peer read failed")
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		env := &api.Envelope{}
		if err := json.Unmarshal(data, env); err != nil {
			log.WithError(err).Warn("Dropping malformed peer message")
			continue
		}
		s.handleEnvelope(p, env)
	}
}

func (s *Service) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Service) handleEnvelope(p *peer, env *api.Envelope) {
	if env.From == "" || env.From == s.cfg.AgentID {
		return
	}
	switch env.Type {
	case api.MsgPeerHello:
		hello := &api.PeerHello{}
		if err := json.Unmarshal(env.Data, hello); err != nil {
			log.WithError(err).Warn("Dropping malformed peer hello")
			return
		}
		if hello.AgentID == "" || hello.AgentID == s.cfg.AgentID {
			p.close()
			return
		}
		s.identifyPeer(p, hello)
	default:
		if !s.limiter.allow(env.From) {
			messagesDropped.Inc()
			log.WithField("agent", env.From).Warn("Peer exceeded message rate limit")
			return
		}
		messagesReceived.WithLabelValues(env.Type).Inc()
		messagehandler.SafelyHandleMessage(s.ctx, s.republish, env)
	}
}

func (s *Service) republish(_ context.Context, env *api.Envelope) error {
	s.messageFeed.Send(env)
	return nil
}

func (s *Service) identifyPeer(p *peer, hello *api.PeerHello) {
	p.setIdentity(hello.AgentID, hello.ValidatorID)

	s.lock.Lock()
	delete(s.pending, p)
	old, exists := s.peers[hello.AgentID]
	s.peers[hello.AgentID] = p
	s.lock.Unlock()

	if exists && old != p {
		log.WithField("agent", hello.AgentID).Debug("Replacing existing peer connection")
		old.close()
	}
	connectedPeersGauge.Set(float64(s.PeerCount()))
	log.WithFields(logrus.Fields{
		"agent":     hello.AgentID,
		"validator": hello.ValidatorID,
	}).Info("Peer connected")
}

func (s *Service) removePeer(p *peer) {
	agentID, _ := p.identity()

	s.lock.Lock()
	delete(s.pending, p)
	if agentID != "" {
		if cur, ok := s.peers[agentID]; ok && cur == p {
			delete(s.peers, agentID)
		}
	}
	s.lock.Unlock()

	p.close()
	connectedPeersGauge.Set(float64(s.PeerCount()))
	if agentID != "" {
		log.WithField("agent", agentID).Info("Peer disconnected")
	}
}

// Broadcast hands the envelope to every identified peer's outbound
// buffer. Full or closed peers are skipped.
func (s *Service) Broadcast(env *api.Envelope) int {
	data, err := json.Marshal(env)
	if err != nil {
		log.WithError(err).Error("Could not marshal broadcast envelope")
		return 0
	}

	s.lock.RLock()
	targets := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		targets = append(targets, p)
	}
	s.lock.RUnlock()

	sent := 0
	for _, p := range targets {
		if p.safeSend(data) {
			sent++
		} else {
			messagesDropped.Inc()
		}
	}
	messagesSent.WithLabelValues(env.Type).Add(float64(sent))
	return sent
}

// MessageFeed exposes inbound peer envelopes for subscription.
func (s *Service) MessageFeed() *event.Feed[*api.Envelope] {
	return &s.messageFeed
}

// PeerCount returns the number of identified peers.
func (s *Service) PeerCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.peers)
}

// ConnectedPeers returns the agent ids of identified peers.
func (s *Service) ConnectedPeers() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

// Stop closes the listener and every peer connection.
func (s *Service) Stop() error {
	log.Info("Stopping peer fabric")
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)

	s.lock.Lock()
	targets := make([]*peer, 0, len(s.peers)+len(s.pending))
	for _, p := range s.peers {
		targets = append(targets, p)
	}
	for p := range s.pending {
		targets = append(targets, p)
	}
	s.lock.Unlock()
	for _, p := range targets {
		p.close()
	}

	s.limiter.free()
	return err
}

// Status returns an error if the fabric listener failed.
func (s *Service) Status() error {
	return s.failStatus
}
