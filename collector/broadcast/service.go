// Package broadcast pushes collector events to websocket observers.
// Every send is scoped to the user owning the underlying records, so a
// session only sees updates after it authenticates as that user.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/collector/types"
)

var log = logrus.WithField("prefix", "broadcast")

// Service is the observer hub. Delivery is fan-out and best-effort: a
// session with a full buffer or dead socket is evicted and the message
// dropped for it, never queued.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	upgrader websocket.Upgrader

	lock     sync.RWMutex
	sessions map[*session]struct{}
	byUser   map[string]map[*session]struct{}
}

// NewService prepares the hub.
func NewService(ctx context.Context) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Observers connect from arbitrary dashboard origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
		byUser:   make(map[string]map[*session]struct{}),
	}
}

// Start satisfies the service registry. Sessions arrive through the
// HTTP handler, not a background loop.
func (s *Service) Start() {
	log.Debug("Broadcast hub ready")
}

// Stop closes every observer session.
func (s *Service) Stop() error {
	s.cancel()
	s.lock.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for c := range s.sessions {
		targets = append(targets, c)
	}
	s.lock.Unlock()
	for _, c := range targets {
		c.close()
	}
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

// Handler upgrades observer connections. Mount it on the collector's
// /ws route.
func (s *Service) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Debug("Websocket upgrade failed")
			return
		}
		c := newSession(uuid.NewString(), conn)
		s.register(c)
		go s.writePump(c)
		go s.readPump(c)
		s.sendWelcome(c)
	}
}

func (s *Service) register(c *session) {
	s.lock.Lock()
	s.sessions[c] = struct{}{}
	s.lock.Unlock()
	sessionsGauge.Set(float64(s.SessionCount()))
	log.WithField("clientId", c.id).Debug("Observer connected")
}

func (s *Service) unregister(c *session) {
	userID := c.user()
	s.lock.Lock()
	delete(s.sessions, c)
	if userID != "" {
		if set, ok := s.byUser[userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(s.byUser, userID)
			}
		}
	}
	s.lock.Unlock()

	c.close()
	sessionsGauge.Set(float64(s.SessionCount()))
	log.WithField("clientId", c.id).Debug("Observer disconnected")
}

// authenticate binds a session to a user. Re-authenticating moves the
// session between users.
func (s *Service) authenticate(c *session, userID string) {
	if userID == "" {
		return
	}
	prev := c.user()
	if prev == userID {
		return
	}
	c.setUser(userID)

	s.lock.Lock()
	if prev != "" {
		if set, ok := s.byUser[prev]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(s.byUser, prev)
			}
		}
	}
	set, ok := s.byUser[userID]
	if !ok {
		set = make(map[*session]struct{})
		s.byUser[userID] = set
	}
	set[c] = struct{}{}
	s.lock.Unlock()

	log.WithFields(logrus.Fields{
		"clientId": c.id,
		"userId":   userID,
	}).Debug("Observer authenticated")
}

func (s *Service) sendWelcome(c *session) {
	msg := api.NewBroadcastMessage(api.MsgWelcome, &api.Welcome{
		ClientID: c.id,
		Message:  "Connected to Sentinel collector",
	})
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("Could not marshal welcome message")
		return
	}
	if c.safeSend(data) {
		messagesSent.WithLabelValues(api.MsgWelcome).Inc()
	}
}

func (s *Service) readPump(c *session) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("clientId", c.id).Debug("Observer read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		// authenticate is the only meaningful inbound frame.
		var frame struct {
			Type string `json:"type"`
			Data struct {
				UserID string `json:"userId"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == api.MsgAuthenticate {
			s.authenticate(c, frame.Data.UserID)
		}
	}
}

func (s *Service) writePump(c *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast delivers msg to every session authenticated as userID.
// Sessions that cannot take the message are evicted.
func (s *Service) Broadcast(userID string, msg *api.BroadcastMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("Could not marshal broadcast message")
		return
	}

	s.lock.RLock()
	targets := make([]*session, 0, len(s.byUser[userID]))
	for c := range s.byUser[userID] {
		targets = append(targets, c)
	}
	s.lock.RUnlock()

	for _, c := range targets {
		if c.safeSend(data) {
			messagesSent.WithLabelValues(msg.Type).Inc()
			continue
		}
		messagesDropped.Inc()
		s.unregister(c)
	}
}

// SendValidatorUpdate announces a validator status transition to the
// owning user. Extra carries transition fields such as alertId.
func (s *Service) SendValidatorUpdate(userID, validatorID, status string, extra map[string]interface{}) {
	s.Broadcast(userID, api.NewBroadcastMessage(api.MsgValidatorUpdate, &api.ValidatorUpdate{
		ValidatorID: validatorID,
		Status:      status,
		Extra:       extra,
	}))
}

// SendAlertNotification pushes a freshly created alert to its owner.
func (s *Service) SendAlertNotification(userID string, alert *types.Alert) {
	s.Broadcast(userID, api.NewBroadcastMessage(api.MsgAlert, alert))
}

// SendAgentUpdate announces agent liveness after an accepted report.
func (s *Service) SendAgentUpdate(userID string, update *api.AgentUpdate) {
	s.Broadcast(userID, api.NewBroadcastMessage(api.MsgAgentUpdate, update))
}

// SendConsensusUpdate describes the state of an open consensus window.
func (s *Service) SendConsensusUpdate(userID, validatorID string, u *api.ConsensusUpdate) {
	u.ValidatorID = validatorID
	s.Broadcast(userID, api.NewBroadcastMessage(api.MsgConsensusUpdate, u))
}

// SessionCount returns the number of connected sessions, authenticated
// or not.
func (s *Service) SessionCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.sessions)
}
