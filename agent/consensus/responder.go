package consensus

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/health"
)

// seenRequestsCacheSize bounds the answered-poll dedup cache. Polls are
// answered at most once even when the requester's broadcast reaches us
// through a replaced connection.
const seenRequestsCacheSize = 1024

type responder struct {
	cfg  *Config
	seen *lru.Cache
}

func newResponder(cfg *Config) (*responder, error) {
	seen, err := lru.New(seenRequestsCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not build seen-requests cache")
	}
	return &responder{cfg: cfg, seen: seen}, nil
}

// handleRequest answers a peer's consensus poll from the latest local
// probe observation, probing synchronously if none exists yet. Polls
// for other validators are silently dropped.
func (r *responder) handleRequest(ctx context.Context, req *api.ConsensusRequest) {
	if req.ValidatorID != r.cfg.ValidatorID {
		return
	}
	if req.ConsensusID == "" {
		log.WithField("agent", req.AgentID).Warn("Dropping consensus request with no consensus id")
		return
	}
	if seen, _ := r.seen.ContainsOrAdd(req.ConsensusID, struct{}{}); seen {
		return
	}

	result := r.cfg.Prober.LatestResult()
	if result == nil {
		log.Debug("No local observation yet, probing for consensus answer")
		result = r.cfg.Prober.Probe(ctx)
	}
	agree := result.Status == health.Unhealthy

	resp := &api.ConsensusResponse{
		ConsensusID: req.ConsensusID,
		ValidatorID: req.ValidatorID,
		AgentID:     r.cfg.AgentID,
		RequesterID: req.AgentID,
		Agree:       agree,
		Timestamp:   result.Timestamp,
	}
	if agree {
		resp.Evidence = result
	}
	env, err := api.NewEnvelope(api.MsgConsensusResponse, r.cfg.AgentID, resp)
	if err != nil {
		log.WithError(err).Error("Could not build consensus response")
		return
	}
	r.cfg.P2P.Broadcast(env)
	requestsAnswered.WithLabelValues(agreeLabel(agree)).Inc()
	log.WithFields(logrus.Fields{
		"consensusId": req.ConsensusID,
		"requester":   req.AgentID,
		"agree":       agree,
	}).Info("Answered consensus request")
}
