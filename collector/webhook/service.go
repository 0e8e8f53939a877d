// Package webhook delivers signed event notifications to user
// configured HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/collector/db/iface"
	"github.com/trinnode/Sentinel/collector/types"
)

var log = logrus.WithField("prefix", "webhook")

// defaultDeliveryTimeout bounds a single endpoint POST.
const defaultDeliveryTimeout = 10 * time.Second

// Config options for the webhook dispatcher.
type Config struct {
	Database iface.ReadOnlyDatabase
	// DeliveryTimeout bounds each POST; zero means the 10s default.
	DeliveryTimeout time.Duration
}

// Service fans events out to every active, subscribing webhook config
// of the owning user. Deliveries are mutually independent: one slow or
// failing endpoint never delays or fails another, and no delivery is
// ever retried.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	hc     *http.Client
}

// NewService initializes the dispatcher.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Database == nil {
		return nil, errors.New("webhook dispatcher requires a database")
	}
	timeout := cfg.DeliveryTimeout
	if timeout == 0 {
		timeout = defaultDeliveryTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		hc:     &http.Client{Timeout: timeout},
	}, nil
}

// Start satisfies the service registry. The dispatcher has no
// background loops.
func (s *Service) Start() {
	log.Debug("Webhook dispatcher ready")
}

// Stop satisfies the service registry.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

// Dispatch sends event to every active config of userID subscribed to
// it. The error covers config loading only; delivery failures are
// logged and swallowed so they cannot affect the triggering event.
func (s *Service) Dispatch(ctx context.Context, userID, event string, payload interface{}) error {
	ctx, span := trace.StartSpan(ctx, "webhook.Dispatch")
	defer span.End()

	configs, err := s.cfg.Database.WebhookConfigs(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "could not load webhook configs")
	}
	body, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, cfg := range configs {
		if !cfg.IsActive || !cfg.SubscribesTo(event) {
			continue
		}
		wg.Add(1)
		go func(cfg *types.WebhookConfig) {
			defer wg.Done()
			s.deliver(ctx, cfg, event, body)
		}(cfg)
	}
	wg.Wait()
	return nil
}

// SendTest delivers a webhook.test event to a single config regardless
// of its event subscriptions, so endpoints can be verified before any
// real alert fires.
func (s *Service) SendTest(ctx context.Context, cfg *types.WebhookConfig) error {
	body, err := encodeEvent(api.EventWebhookTest, map[string]string{
		"message": "Sentinel webhook test delivery",
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, cfg, api.EventWebhookTest, body)
}

func encodeEvent(event string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(&api.WebhookEvent{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not encode webhook event")
	}
	return body, nil
}

func (s *Service) deliver(ctx context.Context, cfg *types.WebhookConfig, event string, body []byte) error {
	start := time.Now()
	err := s.post(ctx, cfg, body)
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		webhookDeliveries.WithLabelValues(event, "failure").Inc()
		log.WithError(err).WithFields(logrus.Fields{
			"webhookId": cfg.ID,
			"url":       cfg.URL,
			"event":     event,
		}).Error("Webhook delivery failed")
		return err
	}
	webhookDeliveries.WithLabelValues(event, "success").Inc()
	log.WithFields(logrus.Fields{
		"webhookId": cfg.ID,
		"event":     event,
	}).Debug("Webhook delivered")
	return nil
}

func (s *Service) post(ctx context.Context, cfg *types.WebhookConfig, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "could not build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.Header.Set("User-Agent", api.WebhookUserAgent)
	if cfg.Secret != "" {
		req.Header.Set(api.HeaderSignature, Sign(body, cfg.Secret))
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close webhook response body")
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
