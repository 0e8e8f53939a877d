// Package probe implements the periodic beacon node health check loop.
// A probe cycle retries the health endpoint a configured number of times
// before declaring the node unhealthy; every cycle result is published on
// a feed consumed by the reporter and the consensus responder.
package probe

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/health"
	"github.com/trinnode/Sentinel/shared/event"
)

var log = logrus.WithField("prefix", "probe")

// NodeClient is the beacon node surface the probe depends on.
type NodeClient interface {
	Health(ctx context.Context) error
	HeadSlot(ctx context.Context) (uint64, error)
	NodeURL() string
}

// Config holds the probe loop parameters.
type Config struct {
	Client      NodeClient
	ValidatorID string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	RetryDelay  time.Duration
}

// Service runs the probe loop for a single validator's beacon node.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	lock       sync.RWMutex
	latest     *health.Result
	resultFeed event.Feed[*health.Result]
}

// NewService validates the configuration and prepares the probe loop.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.Client == nil {
		return nil, errors.New("probe requires a beacon node client")
	}
	if cfg.ValidatorID == "" {
		return nil, errors.New("probe requires a validator id")
	}
	if cfg.Interval <= 0 || cfg.Timeout <= 0 {
		return nil, errors.New("probe interval and timeout must be positive")
	}
	if cfg.Retries < 1 {
		return nil, errors.New("probe retries must be at least 1")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
	}, nil
}

// Start begins the probe loop with an immediate first cycle.
func (s *Service) Start() {
	log.WithFields(logrus.Fields{
		"beaconNode": s.cfg.Client.NodeURL(),
		"interval":   s.cfg.Interval,
	}).Info("Starting health probe")
	go s.run()
}

func (s *Service) run() {
	s.probeAndPublish()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.probeAndPublish()
		case <-s.ctx.Done():
			log.Debug("Context closed, exiting probe loop")
			return
		}
	}
}

func (s *Service) probeAndPublish() {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("r", r).Error("Panicked during health probe! Recovering...")
			debug.PrintStack()
		}
	}()
	// An in-flight cycle runs to completion even if the service stops;
	// each attempt is bounded by the configured timeout.
	res := s.Probe(context.Background())
	s.publish(res)
}

// Probe runs one full probe cycle: up to Retries attempts against the
// health endpoint, each bounded by Timeout, with a fixed delay between
// attempts. The reported response time spans the whole cycle. On a
// healthy verdict the chain head is fetched best-effort; its failure
// never downgrades the verdict.
func (s *Service) Probe(ctx context.Context) *health.Result {
	started := time.Now()
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err := s.cfg.Client.Health(attemptCtx)
		cancel()
		if err == nil {
			res := &health.Result{
				ValidatorID:  s.cfg.ValidatorID,
				Status:       health.Healthy,
				ResponseTime: time.Since(started),
				Timestamp:    time.Now().UTC(),
			}
			headCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout/2)
			slot, err := s.cfg.Client.HeadSlot(headCtx)
			cancel()
			if err != nil {
				log.WithError(err).Debug("Could not fetch chain head")
			} else {
				res.BlockHeight = slot
			}
			return res
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Debug("Health check attempt failed")
		if attempt < s.cfg.Retries {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-ctx.Done():
				return s.unhealthyResult(started, lastErr)
			}
		}
	}
	return s.unhealthyResult(started, lastErr)
}

func (s *Service) unhealthyResult(started time.Time, lastErr error) *health.Result {
	res := &health.Result{
		ValidatorID:  s.cfg.ValidatorID,
		Status:       health.Unhealthy,
		ResponseTime: time.Since(started),
		Timestamp:    time.Now().UTC(),
	}
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	return res
}

func (s *Service) publish(res *health.Result) {
	s.lock.Lock()
	prev := s.latest
	s.latest = res
	s.lock.Unlock()

	healthChecksTotal.WithLabelValues(string(res.Status)).Inc()
	responseTimeSeconds.Observe(res.ResponseTime.Seconds())
	if res.BlockHeight > 0 {
		beaconBlockHeight.Set(float64(res.BlockHeight))
	}

	if prev == nil || prev.Status != res.Status {
		log.WithFields(logrus.Fields{
			"status":       res.Status,
			"responseTime": res.ResponseTime,
		}).Info("Beacon node health changed")
	}
	s.resultFeed.Send(res)
}

// ResultFeed exposes the probe result feed for subscription.
func (s *Service) ResultFeed() *event.Feed[*health.Result] {
	return &s.resultFeed
}

// LatestResult returns the most recent probe result, nil before the
// first cycle completes.
func (s *Service) LatestResult() *health.Result {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.latest
}

// Stop ends the probe loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports a running probe as healthy; an unreachable
// beacon node is a probe verdict, not a service failure.
func (s *Service) Status() error {
	return nil
}
