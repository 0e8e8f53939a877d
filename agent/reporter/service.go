// Package reporter watches the probe result feed and tells the
// collector about status transitions. Unhealthy verdicts are submitted
// only after the peer consensus poll confirms them; recovery needs no
// confirmation, a single healthy witness cancels an open window.
package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/agent/consensus"
	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/health"
	"github.com/trinnode/Sentinel/shared/event"
)

var log = logrus.WithField("prefix", "reporter")

// Requester is the consensus poll surface the reporter drives.
type Requester interface {
	RequestConsensus(ctx context.Context, validatorID string, evidence []health.Result, timeout time.Duration) (*consensus.Tally, error)
}

// ResultProvider exposes the probe result feed.
type ResultProvider interface {
	ResultFeed() *event.Feed[*health.Result]
}

// Config holds the reporter parameters.
type Config struct {
	AgentID     string
	AgentAPIKey string
	ValidatorID string

	CollectorURL     string
	RequestTimeout   time.Duration
	MaxRetries       int
	Threshold        int
	ConsensusTimeout time.Duration

	Requester Requester
	Results   ResultProvider
}

// Service is the reporting loop.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	client *Client

	lock         sync.RWMutex
	lastReported health.Status
	lastErr      error
}

// NewService validates the configuration and builds the collector client.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.AgentID == "" || cfg.AgentAPIKey == "" || cfg.ValidatorID == "" {
		return nil, errors.New("reporter requires agent id, api key and validator id")
	}
	if cfg.Requester == nil || cfg.Results == nil {
		return nil, errors.New("reporter requires a consensus requester and a result feed")
	}
	if cfg.Threshold < 1 {
		return nil, errors.New("consensus threshold must be at least 1")
	}
	client, err := NewClient(cfg.CollectorURL, cfg.RequestTimeout, cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		client: client,
	}, nil
}

// Start begins consuming probe results.
func (s *Service) Start() {
	log.WithFields(logrus.Fields{
		"collector": s.cfg.CollectorURL,
		"threshold": s.cfg.Threshold,
	}).Info("Starting reporter")
	go s.run()
}

func (s *Service) run() {
	ch := make(chan *health.Result, 8)
	sub := s.cfg.Results.ResultFeed().Subscribe(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case res := <-ch:
			// A consensus poll can outlast several probe cycles;
			// act on the newest observation, not the backlog.
			res = drainToLatest(ch, res)
			s.handleResult(res)
		case err := <-sub.Err():
			if err != nil {
				log.WithError(err).Error("Probe result subscription failed")
			}
			return
		case <-s.ctx.Done():
			log.Debug("Context closed, exiting reporter loop")
			return
		}
	}
}

func drainToLatest(ch <-chan *health.Result, res *health.Result) *health.Result {
	for {
		select {
		case newer := <-ch:
			res = newer
		default:
			return res
		}
	}
}

func (s *Service) handleResult(res *health.Result) {
	if res.Status == health.Unhealthy {
		s.reportUnhealthy(res)
		return
	}
	if s.LastReported() == health.Healthy {
		// Steady healthy state is never reported.
		return
	}
	s.submit(health.Healthy, "Beacon node is healthy")
}

func (s *Service) reportUnhealthy(res *health.Result) {
	var tally *consensus.Tally
	if s.cfg.Threshold > 1 {
		var err error
		tally, err = s.cfg.Requester.RequestConsensus(s.ctx, s.cfg.ValidatorID, []health.Result{*res}, s.cfg.ConsensusTimeout)
		if err != nil {
			log.WithError(err).Error("Consensus poll failed")
			return
		}
		if !tally.Quorum(s.cfg.Threshold) {
			consensusRejections.Inc()
			log.WithFields(logrus.Fields{
				"agree":      tally.AgreeCount,
				"totalPeers": tally.TotalPeers,
				"threshold":  s.cfg.Threshold,
			}).Info("Peers did not confirm unhealthy observation, suppressing report")
			return
		}
	}
	s.submit(health.Unhealthy, unhealthyMessage(res, tally))
}

func unhealthyMessage(res *health.Result, tally *consensus.Tally) string {
	msg := "Beacon node is unhealthy"
	if res.Error != "" {
		msg = fmt.Sprintf("Beacon node is unhealthy: %s", res.Error)
	}
	if tally != nil && tally.TotalPeers > 0 {
		msg = fmt.Sprintf("%s (confirmed by %d/%d peers)", msg, tally.AgreeCount, tally.TotalPeers)
	}
	return msg
}

func (s *Service) submit(status health.Status, message string) {
	resp, err := s.client.SubmitReport(s.ctx, &api.ReportRequest{
		AgentID:     s.cfg.AgentID,
		AgentAPIKey: s.cfg.AgentAPIKey,
		ValidatorID: s.cfg.ValidatorID,
		Status:      status,
		Message:     message,
	})
	if err != nil {
		submitFailures.Inc()
		s.setLastErr(err)
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
			log.WithError(err).Warn("Collector rejected report, check agent credentials")
		} else {
			log.WithError(err).Error("Could not submit report")
		}
		return
	}
	s.setLastErr(nil)
	reportsSubmitted.WithLabelValues(string(status)).Inc()

	s.lock.Lock()
	s.lastReported = status
	s.lock.Unlock()

	log.WithFields(logrus.Fields{
		"status":   status,
		"reportId": resp.ReportID,
	}).Info("Report accepted by collector")
}

// LastReported returns the last status the collector accepted, empty
// before the first successful submission.
func (s *Service) LastReported() health.Status {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastReported
}

func (s *Service) setLastErr(err error) {
	s.lock.Lock()
	s.lastErr = err
	s.lock.Unlock()
}

// Stop ends the reporting loop. In-flight submissions are aborted.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status surfaces collector reachability: the error of the most recent
// failed submission, cleared by the next success.
func (s *Service) Status() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastErr
}
