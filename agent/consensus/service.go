// Package consensus implements the inter-agent confirmation protocol.
// When a local probe sees the beacon node down, the requester polls
// every connected peer for an independent verdict; the responder
// answers inbound polls from the latest local observation.
package consensus

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/agent/p2p"
	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/health"
	"github.com/trinnode/Sentinel/runtime/messagehandler"
)

var log = logrus.WithField("prefix", "consensus")

// Prober is the local probe surface the responder answers from.
type Prober interface {
	// LatestResult returns the most recent probe observation, nil
	// before the first cycle completes.
	LatestResult() *health.Result
	// Probe runs one synchronous probe cycle.
	Probe(ctx context.Context) *health.Result
}

// Config holds the consensus protocol parameters.
type Config struct {
	AgentID     string
	ValidatorID string
	P2P         p2p.P2P
	Prober      Prober
}

// Service routes peer envelopes between the requester and responder
// halves of the protocol over one shared fabric.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	pending   *pendingRequests
	responder *responder
}

// NewService validates the configuration and prepares the router.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.AgentID == "" || cfg.ValidatorID == "" {
		return nil, errors.New("consensus requires agent and validator ids")
	}
	if cfg.P2P == nil {
		return nil, errors.New("consensus requires a peer fabric")
	}
	if cfg.Prober == nil {
		return nil, errors.New("consensus requires a prober")
	}
	ctx, cancel := context.WithCancel(ctx)
	r, err := newResponder(cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		pending:   newPendingRequests(),
		responder: r,
	}, nil
}

// Start subscribes to the peer fabric and routes envelopes until the
// service stops.
func (s *Service) Start() {
	go s.listenForEnvelopes()
}

func (s *Service) listenForEnvelopes() {
	ch := make(chan *api.Envelope, 64)
	sub := s.cfg.P2P.MessageFeed().Subscribe(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case env := <-ch:
			messagehandler.SafelyHandleMessage(s.ctx, s.dispatch, env)
		case err := <-sub.Err():
			if err != nil {
				log.WithError(err).Error("Peer message subscription failed")
			}
			return
		case <-s.ctx.Done():
			log.Debug("Context closed, exiting envelope router")
			return
		}
	}
}

func (s *Service) dispatch(ctx context.Context, env *api.Envelope) error {
	switch env.Type {
	case api.MsgConsensusRequest:
		req := &api.ConsensusRequest{}
		if err := json.Unmarshal(env.Data, req); err != nil {
			return errors.Wrap(err, "malformed consensus request")
		}
		s.responder.handleRequest(ctx, req)
	case api.MsgConsensusResponse:
		resp := &api.ConsensusResponse{}
		if err := json.Unmarshal(env.Data, resp); err != nil {
			return errors.Wrap(err, "malformed consensus response")
		}
		s.handleResponse(resp)
	default:
		// peer_hello is consumed by the fabric; health_report is
		// reserved. Nothing to do here.
	}
	return nil
}

func (s *Service) handleResponse(resp *api.ConsensusResponse) {
	if resp.RequesterID != s.cfg.AgentID {
		return
	}
	if !s.pending.deliver(resp) {
		log.WithFields(logrus.Fields{
			"consensusId": resp.ConsensusID,
			"agent":       resp.AgentID,
		}).Debug("Dropping late or unknown consensus response")
		return
	}
	responsesReceived.WithLabelValues(agreeLabel(resp.Agree)).Inc()
}

// Stop terminates the envelope router and abandons pending requests.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy; a quiet fabric is not an error.
func (s *Service) Status() error {
	return nil
}

func agreeLabel(agree bool) string {
	if agree {
		return "true"
	}
	return "false"
}
