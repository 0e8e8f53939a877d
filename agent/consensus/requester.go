package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/health"
)

// Tally is the outcome of one consensus poll. Responses holds the last
// vote received from each peer; a peer answering twice overwrites its
// earlier vote.
type Tally struct {
	AgreeCount int
	TotalPeers int
	Responses  []api.ConsensusResponse
}

// Quorum applies the self-inclusive rule: the requester counts as one
// agreeing voter on top of AgreeCount, so threshold=2 means one peer
// must confirm. A poll that found no peers at all always passes --
// fabric absence must never block alerting.
func (t *Tally) Quorum(threshold int) bool {
	if t.TotalPeers == 0 {
		return true
	}
	return t.AgreeCount+1 >= threshold
}

// pendingRequests tracks open polls by consensus id so inbound votes
// can find their waiting requester.
type pendingRequests struct {
	mu      sync.Mutex
	entries map[string]map[string]api.ConsensusResponse
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{entries: make(map[string]map[string]api.ConsensusResponse)}
}

func (p *pendingRequests) register(consensusID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[consensusID] = make(map[string]api.ConsensusResponse)
}

// deliver files a vote under its consensus id, reporting false when no
// poll is waiting (late or unknown).
func (p *pendingRequests) deliver(resp *api.ConsensusResponse) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	votes, ok := p.entries[resp.ConsensusID]
	if !ok {
		return false
	}
	votes[resp.AgentID] = *resp
	return true
}

// remove closes the poll and snapshots its votes.
func (p *pendingRequests) remove(consensusID string) []api.ConsensusResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	votes := p.entries[consensusID]
	delete(p.entries, consensusID)
	out := make([]api.ConsensusResponse, 0, len(votes))
	for _, v := range votes {
		out = append(out, v)
	}
	return out
}

// RequestConsensus polls every connected peer for confirmation of an
// unhealthy observation and waits the full timeout before tallying.
// The window never closes early; late answers would otherwise be lost
// to peers with slower probe cycles. Returns immediately with a zero
// tally when no peers are connected.
func (s *Service) RequestConsensus(ctx context.Context, validatorID string, evidence []health.Result, timeout time.Duration) (*Tally, error) {
	ctx, span := trace.StartSpan(ctx, "consensus.RequestConsensus")
	defer span.End()

	totalPeers := s.cfg.P2P.PeerCount()
	if totalPeers == 0 {
		log.Debug("No peers connected, skipping consensus poll")
		return &Tally{}, nil
	}

	consensusID := uuid.New().String()
	req := &api.ConsensusRequest{
		ConsensusID: consensusID,
		ValidatorID: validatorID,
		AgentID:     s.cfg.AgentID,
		Status:      health.Unhealthy,
		Timestamp:   time.Now().UTC(),
		Evidence:    evidence,
	}
	env, err := api.NewEnvelope(api.MsgConsensusRequest, s.cfg.AgentID, req)
	if err != nil {
		return nil, errors.Wrap(err, "could not build consensus request")
	}

	s.pending.register(consensusID)
	requestsSent.Inc()
	sent := s.cfg.P2P.Broadcast(env)
	log.WithFields(logrus.Fields{
		"consensusId": consensusID,
		"peers":       sent,
		"timeout":     timeout,
	}).Info("Requesting consensus from peers")

	select {
	case <-time.After(timeout):
	case <-ctx.Done():
		s.pending.remove(consensusID)
		return nil, errors.Wrap(ctx.Err(), "consensus poll aborted")
	}

	responses := s.pending.remove(consensusID)
	tally := &Tally{TotalPeers: totalPeers, Responses: responses}
	for _, r := range responses {
		if r.Agree {
			tally.AgreeCount++
		}
	}
	log.WithFields(logrus.Fields{
		"consensusId": consensusID,
		"agree":       tally.AgreeCount,
		"responses":   len(responses),
		"totalPeers":  totalPeers,
	}).Info("Consensus poll complete")
	return tally, nil
}
