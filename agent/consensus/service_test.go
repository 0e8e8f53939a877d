package consensus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/health"
	"github.com/trinnode/Sentinel/shared/event"
	"github.com/trinnode/Sentinel/testing/assert"
	"github.com/trinnode/Sentinel/testing/require"
)

type fakeFabric struct {
	mu        sync.Mutex
	peerCount int
	sent      []*api.Envelope
	feed      event.Feed[*api.Envelope]
}

func (f *fakeFabric) Broadcast(env *api.Envelope) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return f.peerCount
}

func (f *fakeFabric) MessageFeed() *event.Feed[*api.Envelope] {
	return &f.feed
}

func (f *fakeFabric) PeerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peerCount
}

func (f *fakeFabric) ConnectedPeers() []string {
	return nil
}

func (f *fakeFabric) sentEnvelopes() []*api.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*api.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeProber struct {
	mu     sync.Mutex
	latest *health.Result
	probed int
}

func (f *fakeProber) LatestResult() *health.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func (f *fakeProber) Probe(_ context.Context) *health.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed++
	return &health.Result{
		ValidatorID: "val-1",
		Status:      health.Unhealthy,
		Timestamp:   time.Now().UTC(),
		Error:       "connection refused",
	}
}

func (f *fakeProber) probeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probed
}

func newTestService(t *testing.T, fabric *fakeFabric, prober *fakeProber) *Service {
	s, err := NewService(context.Background(), &Config{
		AgentID:     "agent-1",
		ValidatorID: "val-1",
		P2P:         fabric,
		Prober:      prober,
	})
	require.NoError(t, err)
	return s
}

func unhealthyEvidence() []health.Result {
	return []health.Result{{
		ValidatorID: "val-1",
		Status:      health.Unhealthy,
		Timestamp:   time.Now().UTC(),
		Error:       "connection refused",
	}}
}

func TestRequestConsensus_NoPeersReturnsImmediately(t *testing.T) {
	fabric := &fakeFabric{peerCount: 0}
	s := newTestService(t, fabric, &fakeProber{})

	started := time.Now()
	tally, err := s.RequestConsensus(context.Background(), "val-1", unhealthyEvidence(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.TotalPeers)
	assert.Equal(t, 0, tally.AgreeCount)
	assert.Equal(t, 0, len(tally.Responses))
	if time.Since(started) > time.Second {
		t.Fatal("zero-peer poll should not wait for the timeout")
	}
	assert.Equal(t, 0, len(fabric.sentEnvelopes()), "no request should be broadcast without peers")
}

func TestRequestConsensus_TalliesVotes(t *testing.T) {
	fabric := &fakeFabric{peerCount: 3}
	s := newTestService(t, fabric, &fakeProber{})

	done := make(chan *Tally, 1)
	go func() {
		tally, err := s.RequestConsensus(context.Background(), "val-1", unhealthyEvidence(), 300*time.Millisecond)
		require.NoError(t, err)
		done <- tally
	}()

	// Wait for the request broadcast, then vote as three peers. One
	// peer flips its vote; the latest wins.
	var req *api.ConsensusRequest
	for i := 0; i < 100; i++ {
		if envs := fabric.sentEnvelopes(); len(envs) > 0 {
			req = &api.ConsensusRequest{}
			require.NoError(t, json.Unmarshal(envs[0].Data, req))
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, req, "consensus request never broadcast")
	assert.Equal(t, health.Unhealthy, req.Status)
	assert.Equal(t, "agent-1", req.AgentID)

	vote := func(agentID string, agree bool) {
		s.handleResponse(&api.ConsensusResponse{
			ConsensusID: req.ConsensusID,
			ValidatorID: "val-1",
			AgentID:     agentID,
			RequesterID: "agent-1",
			Agree:       agree,
			Timestamp:   time.Now().UTC(),
		})
	}
	vote("agent-2", true)
	vote("agent-3", false)
	vote("agent-3", true) // overwrites the earlier disagreement
	vote("agent-4", false)

	tally := <-done
	assert.Equal(t, 3, tally.TotalPeers)
	assert.Equal(t, 2, tally.AgreeCount)
	assert.Equal(t, 3, len(tally.Responses), "one vote per agent id")
}

func TestRequestConsensus_WaitsFullTimeout(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	s := newTestService(t, fabric, &fakeProber{})

	started := time.Now()
	timeout := 200 * time.Millisecond
	_, err := s.RequestConsensus(context.Background(), "val-1", unhealthyEvidence(), timeout)
	require.NoError(t, err)
	if elapsed := time.Since(started); elapsed < timeout {
		t.Fatalf("poll returned after %v, want at least %v", elapsed, timeout)
	}
}

func TestRequestConsensus_LateResponseDropped(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	s := newTestService(t, fabric, &fakeProber{})

	tally, err := s.RequestConsensus(context.Background(), "val-1", unhealthyEvidence(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.AgreeCount)

	envs := fabric.sentEnvelopes()
	require.Equal(t, 1, len(envs))
	req := &api.ConsensusRequest{}
	require.NoError(t, json.Unmarshal(envs[0].Data, req))

	// The poll is closed; a late vote finds nobody waiting.
	s.handleResponse(&api.ConsensusResponse{
		ConsensusID: req.ConsensusID,
		ValidatorID: "val-1",
		AgentID:     "agent-2",
		RequesterID: "agent-1",
		Agree:       true,
	})
	assert.Equal(t, false, s.pending.deliver(&api.ConsensusResponse{ConsensusID: req.ConsensusID}))
}

func TestRequestConsensus_CancelledContext(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	s := newTestService(t, fabric, &fakeProber{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.RequestConsensus(ctx, "val-1", unhealthyEvidence(), time.Minute)
	assert.ErrorContains(t, "consensus poll aborted", err)
}

func TestResponder_AgreesFromLatestResult(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	prober := &fakeProber{latest: &health.Result{
		ValidatorID: "val-1",
		Status:      health.Unhealthy,
		Timestamp:   time.Now().UTC(),
		Error:       "connection refused",
	}}
	s := newTestService(t, fabric, prober)

	s.responder.handleRequest(context.Background(), &api.ConsensusRequest{
		ConsensusID: "c-1",
		ValidatorID: "val-1",
		AgentID:     "agent-2",
		Status:      health.Unhealthy,
	})

	envs := fabric.sentEnvelopes()
	require.Equal(t, 1, len(envs))
	assert.Equal(t, api.MsgConsensusResponse, envs[0].Type)
	resp := &api.ConsensusResponse{}
	require.NoError(t, json.Unmarshal(envs[0].Data, resp))
	assert.Equal(t, true, resp.Agree)
	assert.Equal(t, "agent-1", resp.AgentID)
	assert.Equal(t, "agent-2", resp.RequesterID)
	require.NotNil(t, resp.Evidence, "agreeing vote carries evidence")
	assert.Equal(t, health.Unhealthy, resp.Evidence.Status)
	assert.Equal(t, 0, prober.probeCalls(), "latest result should be used without probing")
}

func TestResponder_DisagreesWithoutEvidence(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	prober := &fakeProber{latest: &health.Result{
		ValidatorID: "val-1",
		Status:      health.Healthy,
		Timestamp:   time.Now().UTC(),
	}}
	s := newTestService(t, fabric, prober)

	s.responder.handleRequest(context.Background(), &api.ConsensusRequest{
		ConsensusID: "c-2",
		ValidatorID: "val-1",
		AgentID:     "agent-2",
	})

	envs := fabric.sentEnvelopes()
	require.Equal(t, 1, len(envs))
	resp := &api.ConsensusResponse{}
	require.NoError(t, json.Unmarshal(envs[0].Data, resp))
	assert.Equal(t, false, resp.Agree)
	assert.Equal(t, (*health.Result)(nil), resp.Evidence)
}

func TestResponder_ProbesWhenNoLocalObservation(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	prober := &fakeProber{}
	s := newTestService(t, fabric, prober)

	s.responder.handleRequest(context.Background(), &api.ConsensusRequest{
		ConsensusID: "c-3",
		ValidatorID: "val-1",
		AgentID:     "agent-2",
	})

	assert.Equal(t, 1, prober.probeCalls())
	require.Equal(t, 1, len(fabric.sentEnvelopes()))
}

func TestResponder_DropsForeignValidator(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	s := newTestService(t, fabric, &fakeProber{})

	s.responder.handleRequest(context.Background(), &api.ConsensusRequest{
		ConsensusID: "c-4",
		ValidatorID: "other-validator",
		AgentID:     "agent-2",
	})
	assert.Equal(t, 0, len(fabric.sentEnvelopes()))
}

func TestResponder_DropsMissingConsensusID(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	s := newTestService(t, fabric, &fakeProber{})

	s.responder.handleRequest(context.Background(), &api.ConsensusRequest{
		ValidatorID: "val-1",
		AgentID:     "agent-2",
	})
	assert.Equal(t, 0, len(fabric.sentEnvelopes()))
}

func TestResponder_AnswersEachPollOnce(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	prober := &fakeProber{latest: &health.Result{Status: health.Unhealthy}}
	s := newTestService(t, fabric, prober)

	req := &api.ConsensusRequest{
		ConsensusID: "c-5",
		ValidatorID: "val-1",
		AgentID:     "agent-2",
	}
	s.responder.handleRequest(context.Background(), req)
	s.responder.handleRequest(context.Background(), req)
	assert.Equal(t, 1, len(fabric.sentEnvelopes()))
}

func TestService_RoutesEnvelopesFromFabric(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	prober := &fakeProber{latest: &health.Result{Status: health.Unhealthy}}
	s := newTestService(t, fabric, prober)
	s.Start()
	defer func() {
		require.NoError(t, s.Stop())
	}()

	env, err := api.NewEnvelope(api.MsgConsensusRequest, "agent-2", &api.ConsensusRequest{
		ConsensusID: "c-6",
		ValidatorID: "val-1",
		AgentID:     "agent-2",
	})
	require.NoError(t, err)

	// The router subscribes asynchronously; send until it picks the
	// envelope up.
	answered := func() bool { return len(fabric.sentEnvelopes()) > 0 }
	for i := 0; i < 100 && !answered(); i++ {
		fabric.feed.Send(env)
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, true, answered(), "request envelope never routed to responder")
	resp := &api.ConsensusResponse{}
	require.NoError(t, json.Unmarshal(fabric.sentEnvelopes()[0].Data, resp))
	assert.Equal(t, true, resp.Agree)
}

func TestService_IgnoresForeignRequesterResponses(t *testing.T) {
	fabric := &fakeFabric{peerCount: 1}
	s := newTestService(t, fabric, &fakeProber{})

	s.pending.register("c-7")
	s.handleResponse(&api.ConsensusResponse{
		ConsensusID: "c-7",
		AgentID:     "agent-2",
		RequesterID: "someone-else",
		Agree:       true,
	})
	assert.Equal(t, 0, len(s.pending.remove("c-7")))
}

func TestTally_Quorum(t *testing.T) {
	tests := []struct {
		name      string
		tally     Tally
		threshold int
		want      bool
	}{
		{"self vote alone meets threshold one", Tally{TotalPeers: 3}, 1, true},
		{"no agreement below threshold", Tally{TotalPeers: 3}, 2, false},
		{"one peer agrees at threshold two", Tally{AgreeCount: 1, TotalPeers: 3}, 2, true},
		{"two agreements below threshold four", Tally{AgreeCount: 2, TotalPeers: 5}, 4, false},
		{"no peers is always quorum", Tally{}, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tally.Quorum(tt.threshold))
		})
	}
}
