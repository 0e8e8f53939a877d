// Package aggregator reduces accepted agent reports into consensus
// decisions. Unhealthy reports open a per-validator window; when enough
// distinct agents agree the aggregator raises exactly one alert, and a
// healthy report or the aging sweep tears the window down.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/async"
	"github.com/trinnode/Sentinel/collector/db/iface"
	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/health"
)

var log = logrus.WithField("prefix", "aggregator")

// Broadcaster is the push-plane capability the aggregator needs.
type Broadcaster interface {
	SendValidatorUpdate(userID, validatorID, status string, extra map[string]interface{})
	SendAlertNotification(userID string, alert *types.Alert)
	SendConsensusUpdate(userID, validatorID string, u *api.ConsensusUpdate)
}

// Dispatcher is the webhook capability the aggregator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, event string, payload interface{}) error
}

// Config options for the aggregator.
type Config struct {
	Database    iface.Database
	Broadcaster Broadcaster
	Webhooks    Dispatcher

	// Threshold is the number of distinct unhealthy agents required
	// for quorum.
	Threshold int
	// WindowTTL bounds how long a window may wait for quorum.
	WindowTTL time.Duration
	// SweepInterval is the cadence of the aging sweep.
	SweepInterval time.Duration
}

// Service holds the open consensus windows.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	lock    sync.Mutex
	windows map[string]*window
}

// NewService validates the configuration and prepares the aggregator.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.Database == nil {
		return nil, errors.New("aggregator requires a database")
	}
	if cfg.Broadcaster == nil || cfg.Webhooks == nil {
		return nil, errors.New("aggregator requires broadcaster and webhook dispatcher")
	}
	if cfg.Threshold < 1 {
		return nil, errors.New("threshold must be at least 1")
	}
	if cfg.WindowTTL <= 0 || cfg.SweepInterval <= 0 {
		return nil, errors.New("window ttl and sweep interval must be positive")
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		windows: make(map[string]*window),
	}, nil
}

// Start schedules the aging sweep.
func (s *Service) Start() {
	log.WithFields(logrus.Fields{
		"threshold": s.cfg.Threshold,
		"windowTTL": s.cfg.WindowTTL,
	}).Info("Starting consensus aggregator")
	async.RunEvery(s.ctx, s.cfg.SweepInterval, s.sweep)
}

// Stop halts the aging sweep. Open windows are abandoned; their reports
// keep their submitted statuses.
func (s *Service) Stop() error {
	defer s.cancel()
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

func windowKey(validatorID string) string {
	return "validator_" + validatorID
}

// ProcessReport folds one accepted report into the validator's window.
// The caller has already authenticated the agent and persisted the
// report. The returned error is a storage fault the caller should
// surface; broadcast and webhook failures are swallowed here.
func (s *Service) ProcessReport(ctx context.Context, report *types.AgentReport, validator *types.Validator) error {
	ctx, span := trace.StartSpan(ctx, "aggregator.ProcessReport")
	defer span.End()

	switch report.Status {
	case health.Unhealthy:
		return s.processUnhealthy(ctx, report, validator)
	case health.Healthy:
		return s.processHealthy(ctx, report, validator)
	default:
		// Terminal statuses are aggregator-produced; inbound ones are
		// accepted by the wire contract but carry no transition.
		log.WithFields(logrus.Fields{
			"validator": report.ValidatorID,
			"status":    report.Status,
		}).Debug("Ignoring report with terminal status")
		return nil
	}
}

func (s *Service) processUnhealthy(ctx context.Context, report *types.AgentReport, validator *types.Validator) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := windowKey(report.ValidatorID)
	w, ok := s.windows[key]
	if !ok {
		w = newWindow(report.ValidatorID, report.CreatedAt)
		s.windows[key] = w
		windowsOpen.Set(float64(len(s.windows)))
		log.WithField("validator", report.ValidatorID).Info("Opened consensus window")
	}
	w.upsert(report)
	unhealthy := w.unhealthyCount()

	if unhealthy >= s.cfg.Threshold && !w.consensusReached {
		w.consensusReached = true
		if err := s.reachConsensus(ctx, w, validator, unhealthy); err != nil {
			// The quorum step failed before the alert existed; undo the
			// latch so a retried report can trigger it again.
			w.consensusReached = false
			return err
		}
		delete(s.windows, key)
		windowsOpen.Set(float64(len(s.windows)))
		windowsClosed.WithLabelValues("quorum").Inc()
		return nil
	}

	s.cfg.Broadcaster.SendConsensusUpdate(validator.UserID, report.ValidatorID, &api.ConsensusUpdate{
		TotalReports:     len(w.reports),
		UnhealthyReports: unhealthy,
		Threshold:        s.cfg.Threshold,
		ConsensusReached: false,
	})
	return nil
}

// reachConsensus performs the quorum transition: one alert, a terminal
// status for every window report, then the push-plane and webhook
// notifications. Called with the window lock held.
func (s *Service) reachConsensus(ctx context.Context, w *window, validator *types.Validator, unhealthy int) error {
	alert := &types.Alert{
		ID:          uuid.NewString(),
		ValidatorID: w.validatorID,
		UserID:      validator.UserID,
		Status:      types.AlertPending,
		Message: fmt.Sprintf("Validator %s is unhealthy. Consensus reached with %d agent reports.",
			validator.Name, unhealthy),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.cfg.Database.SaveAlert(ctx, alert); err != nil {
		return errors.Wrap(err, "could not save alert")
	}
	alertsCreated.Inc()

	if err := s.cfg.Database.UpdateAgentReportStatus(ctx, w.reportIDs(), health.ConsensusReached, true); err != nil {
		// The alert exists and must be announced; the stale report
		// statuses are a recoverable inconsistency.
		log.WithError(err).WithField("validator", w.validatorID).Error("Could not finalize window reports")
	}

	s.cfg.Broadcaster.SendValidatorUpdate(validator.UserID, w.validatorID, "unhealthy", map[string]interface{}{
		"alertId":     alert.ID,
		"reportCount": unhealthy,
	})
	s.cfg.Broadcaster.SendAlertNotification(validator.UserID, alert)

	if err := s.cfg.Webhooks.Dispatch(ctx, validator.UserID, api.EventValidatorUnhealthy, map[string]interface{}{
		"validator": validator,
		"alert":     alert,
		"consensusData": map[string]interface{}{
			"reportCount": unhealthy,
			"agentIds":    w.agentIDs(),
			"threshold":   s.cfg.Threshold,
		},
	}); err != nil {
		log.WithError(err).WithField("validator", w.validatorID).Error("Could not dispatch webhook")
	}

	log.WithFields(logrus.Fields{
		"validator": w.validatorID,
		"alertId":   alert.ID,
		"reports":   unhealthy,
		"threshold": s.cfg.Threshold,
	}).Info("Consensus reached, alert created")
	return nil
}

func (s *Service) processHealthy(ctx context.Context, report *types.AgentReport, validator *types.Validator) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := windowKey(report.ValidatorID)
	w, ok := s.windows[key]
	if !ok {
		// Steady healthy state, nothing to cancel.
		return nil
	}

	// Rewrite first so a storage fault keeps the window alive for a
	// retried report.
	if err := s.cfg.Database.UpdateAgentReportStatus(ctx, w.reportIDs(), health.ConsensusFailed, false); err != nil {
		return errors.Wrap(err, "could not cancel window reports")
	}
	delete(s.windows, key)
	windowsOpen.Set(float64(len(s.windows)))
	windowsClosed.WithLabelValues("recovery").Inc()

	s.cfg.Broadcaster.SendValidatorUpdate(validator.UserID, report.ValidatorID, "healthy", map[string]interface{}{
		"consensusCancelled": true,
	})
	log.WithField("validator", report.ValidatorID).Info("Consensus window cancelled by healthy report")
	return nil
}

// sweep drops windows older than WindowTTL that never reached quorum.
// Aged windows close silently: their reports become ConsensusFailed and
// no broadcast is sent.
func (s *Service) sweep() {
	now := time.Now()
	s.lock.Lock()
	defer s.lock.Unlock()

	for key, w := range s.windows {
		if w.consensusReached || !w.olderThan(s.cfg.WindowTTL, now) {
			continue
		}
		if err := s.cfg.Database.UpdateAgentReportStatus(s.ctx, w.reportIDs(), health.ConsensusFailed, false); err != nil {
			log.WithError(err).WithField("validator", w.validatorID).Error("Could not expire window reports")
			continue
		}
		delete(s.windows, key)
		windowsClosed.WithLabelValues("aged").Inc()
		log.WithFields(logrus.Fields{
			"validator": w.validatorID,
			"openedAt":  w.openedAt,
		}).Info("Consensus window aged out")
	}
	windowsOpen.Set(float64(len(s.windows)))
}

// OpenWindows returns the number of windows currently awaiting quorum.
func (s *Service) OpenWindows() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.windows)
}
