package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/trinnode/Sentinel/agent/consensus"
	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/health"
	"github.com/trinnode/Sentinel/shared/event"
	"github.com/trinnode/Sentinel/testing/assert"
	"github.com/trinnode/Sentinel/testing/require"
)

type fakeRequester struct {
	mu    sync.Mutex
	tally *consensus.Tally
	err   error
	calls int
}

func (f *fakeRequester) RequestConsensus(_ context.Context, _ string, _ []health.Result, _ time.Duration) (*consensus.Tally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.tally, f.err
}

func (f *fakeRequester) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResults struct {
	feed event.Feed[*health.Result]
}

func (f *fakeResults) ResultFeed() *event.Feed[*health.Result] {
	return &f.feed
}

type recordingCollector struct {
	*httptest.Server
	mu       sync.Mutex
	requests []api.ReportRequest
	statuses []int
}

// newCollector answers each request with the next status in statuses,
// repeating the last one. 2xx responses carry a report id.
func newCollector(statuses ...int) *recordingCollector {
	rc := &recordingCollector{statuses: statuses}
	rc.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := api.ReportRequest{}
		_ = json.NewDecoder(r.Body).Decode(&req)

		rc.mu.Lock()
		rc.requests = append(rc.requests, req)
		idx := len(rc.requests) - 1
		if idx >= len(rc.statuses) {
			idx = len(rc.statuses) - 1
		}
		status := rc.statuses[idx]
		rc.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 200 && status <= 299 {
			_ = json.NewEncoder(w).Encode(&api.ReportResponse{Success: true, ReportID: "report-1"})
		} else {
			_ = json.NewEncoder(w).Encode(&api.ErrorResponse{Error: "rejected"})
		}
	}))
	return rc
}

func (rc *recordingCollector) received() []api.ReportRequest {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]api.ReportRequest, len(rc.requests))
	copy(out, rc.requests)
	return out
}

func newTestService(t *testing.T, collectorURL string, req Requester, threshold int) *Service {
	s, err := NewService(context.Background(), &Config{
		AgentID:          "agent-1",
		AgentAPIKey:      "key-1",
		ValidatorID:      "val-1",
		CollectorURL:     collectorURL,
		RequestTimeout:   2 * time.Second,
		MaxRetries:       3,
		Threshold:        threshold,
		ConsensusTimeout: time.Second,
		Requester:        req,
		Results:          &fakeResults{},
	})
	require.NoError(t, err)
	s.client.backoffBase = time.Millisecond
	return s
}

func healthyResult() *health.Result {
	return &health.Result{ValidatorID: "val-1", Status: health.Healthy, Timestamp: time.Now().UTC()}
}

func unhealthyResult() *health.Result {
	return &health.Result{
		ValidatorID: "val-1",
		Status:      health.Unhealthy,
		Timestamp:   time.Now().UTC(),
		Error:       "connection refused",
	}
}

func TestHandleResult_SteadyHealthySuppressed(t *testing.T) {
	collector := newCollector(http.StatusOK)
	defer collector.Close()
	s := newTestService(t, collector.URL, &fakeRequester{}, 2)

	s.handleResult(healthyResult())
	s.handleResult(healthyResult())
	s.handleResult(healthyResult())

	reqs := collector.received()
	require.Equal(t, 1, len(reqs), "steady healthy state must be reported once, then suppressed")
	assert.Equal(t, health.Healthy, reqs[0].Status)
	assert.Equal(t, health.Healthy, s.LastReported())
}

func TestHandleResult_UnhealthyWithQuorum(t *testing.T) {
	collector := newCollector(http.StatusOK)
	defer collector.Close()
	requester := &fakeRequester{tally: &consensus.Tally{AgreeCount: 2, TotalPeers: 2}}
	s := newTestService(t, collector.URL, requester, 2)

	s.handleResult(unhealthyResult())

	reqs := collector.received()
	require.Equal(t, 1, len(reqs))
	assert.Equal(t, health.Unhealthy, reqs[0].Status)
	assert.Equal(t, "agent-1", reqs[0].AgentID)
	assert.Equal(t, "key-1", reqs[0].AgentAPIKey)
	assert.StringContains(t, "connection refused", reqs[0].Message)
	assert.StringContains(t, "confirmed by 2/2 peers", reqs[0].Message)
	assert.Equal(t, 1, requester.callCount())
}

func TestHandleResult_QuorumNotMetSuppresses(t *testing.T) {
	collector := newCollector(http.StatusOK)
	defer collector.Close()
	requester := &fakeRequester{tally: &consensus.Tally{AgreeCount: 0, TotalPeers: 3}}
	s := newTestService(t, collector.URL, requester, 2)

	s.handleResult(unhealthyResult())

	assert.Equal(t, 0, len(collector.received()), "unconfirmed observation must not be reported")
	assert.Equal(t, health.Status(""), s.LastReported())
}

func TestHandleResult_NoPeersSubmitsUnilaterally(t *testing.T) {
	collector := newCollector(http.StatusOK)
	defer collector.Close()
	requester := &fakeRequester{tally: &consensus.Tally{}}
	s := newTestService(t, collector.URL, requester, 2)

	s.handleResult(unhealthyResult())

	reqs := collector.received()
	require.Equal(t, 1, len(reqs))
	assert.Equal(t, health.Unhealthy, reqs[0].Status)
	assert.StringContains(t, "connection refused", reqs[0].Message)
}

func TestHandleResult_ThresholdOneSkipsPoll(t *testing.T) {
	collector := newCollector(http.StatusOK)
	defer collector.Close()
	requester := &fakeRequester{}
	s := newTestService(t, collector.URL, requester, 1)

	s.handleResult(unhealthyResult())

	require.Equal(t, 1, len(collector.received()))
	assert.Equal(t, 0, requester.callCount(), "threshold one must not poll peers")
}

func TestHandleResult_RecoveryAfterUnhealthy(t *testing.T) {
	collector := newCollector(http.StatusOK)
	defer collector.Close()
	requester := &fakeRequester{tally: &consensus.Tally{AgreeCount: 1, TotalPeers: 1}}
	s := newTestService(t, collector.URL, requester, 2)

	s.handleResult(unhealthyResult())
	s.handleResult(healthyResult())
	s.handleResult(healthyResult())

	reqs := collector.received()
	require.Equal(t, 2, len(reqs))
	assert.Equal(t, health.Unhealthy, reqs[0].Status)
	assert.Equal(t, health.Healthy, reqs[1].Status)
}

func TestSubmit_AuthRejectionIsTerminal(t *testing.T) {
	collector := newCollector(http.StatusUnauthorized)
	defer collector.Close()
	s := newTestService(t, collector.URL, &fakeRequester{}, 1)

	s.handleResult(unhealthyResult())

	assert.Equal(t, 1, len(collector.received()), "401 must not be retried")
	assert.Equal(t, health.Status(""), s.LastReported(), "rejected submission must not move state")
	assert.ErrorContains(t, "rejected credentials", s.Status())
}

func TestSubmit_RetriesServerFaults(t *testing.T) {
	collector := newCollector(http.StatusInternalServerError, http.StatusInternalServerError, http.StatusOK)
	defer collector.Close()
	s := newTestService(t, collector.URL, &fakeRequester{}, 1)

	s.handleResult(unhealthyResult())

	assert.Equal(t, 3, len(collector.received()))
	assert.Equal(t, health.Unhealthy, s.LastReported())
	assert.NoError(t, s.Status())
}

func TestSubmit_ExhaustedRetriesKeepState(t *testing.T) {
	collector := newCollector(http.StatusInternalServerError)
	defer collector.Close()
	s := newTestService(t, collector.URL, &fakeRequester{}, 1)

	s.handleResult(unhealthyResult())

	assert.Equal(t, 3, len(collector.received()), "one request per retry")
	assert.Equal(t, health.Status(""), s.LastReported())
	assert.ErrorContains(t, "after 3 attempts", s.Status())
}

func TestRun_ActsOnLatestQueuedResult(t *testing.T) {
	collector := newCollector(http.StatusOK)
	defer collector.Close()
	results := &fakeResults{}
	s, err := NewService(context.Background(), &Config{
		AgentID:          "agent-1",
		AgentAPIKey:      "key-1",
		ValidatorID:      "val-1",
		CollectorURL:     collector.URL,
		RequestTimeout:   2 * time.Second,
		MaxRetries:       1,
		Threshold:        1,
		ConsensusTimeout: time.Second,
		Requester:        &fakeRequester{},
		Results:          results,
	})
	require.NoError(t, err)
	s.client.backoffBase = time.Millisecond

	s.Start()
	defer func() {
		require.NoError(t, s.Stop())
	}()

	// The subscription is established asynchronously; send until the
	// loop picks something up.
	for i := 0; i < 100; i++ {
		if results.feed.Send(healthyResult()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(collector.received()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	reqs := collector.received()
	require.NotEqual(t, 0, len(reqs), "feed-driven result never reported")
	assert.Equal(t, health.Healthy, reqs[0].Status)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(context.Background(), &Config{
		AgentAPIKey: "k", ValidatorID: "v",
		Requester: &fakeRequester{}, Results: &fakeResults{},
		CollectorURL: "http://localhost:3001", Threshold: 1,
	})
	assert.ErrorContains(t, "agent id", err)

	_, err = NewService(context.Background(), &Config{
		AgentID: "a", AgentAPIKey: "k", ValidatorID: "v",
		Requester: &fakeRequester{}, Results: &fakeResults{},
		CollectorURL: "not a url", Threshold: 1,
	})
	assert.ErrorContains(t, "invalid collector url", err)
}
