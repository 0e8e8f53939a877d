// Package ingress is the collector's HTTP front door: it authenticates
// report submissions, persists them, and hands them to the aggregator
// before acknowledging the agent.
package ingress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	cache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/collector/db/iface"
	"github.com/trinnode/Sentinel/collector/types"
)

var log = logrus.WithField("prefix", "ingress")

const (
	// authCacheTTL bounds how stale a revoked credential can be.
	authCacheTTL = 30 * time.Second

	// shutdownTimeout for in-flight requests on Stop.
	shutdownTimeout = 2 * time.Second
)

// Processor folds an accepted report into consensus state.
type Processor interface {
	ProcessReport(ctx context.Context, report *types.AgentReport, validator *types.Validator) error
}

// AgentNotifier announces agent liveness to observers.
type AgentNotifier interface {
	SendAgentUpdate(userID string, update *api.AgentUpdate)
}

// Config options for the ingress server.
type Config struct {
	Host        string
	Port        int
	CORSDomains []string

	Database    iface.Database
	Aggregator  Processor
	Broadcaster AgentNotifier

	// WSHandler, when set, is mounted on GET /ws for observers.
	WSHandler http.HandlerFunc
}

// Service serves the collector HTTP API.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	server *http.Server
	// authCache holds credential snapshots only, never liveness, so
	// lastSeen writes cannot invalidate it.
	authCache    *cache.Cache
	startFailure error
}

// NewService sets up the router and server.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.Database == nil {
		return nil, errors.New("ingress requires a database")
	}
	if cfg.Aggregator == nil {
		return nil, errors.New("ingress requires an aggregator")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, errors.Errorf("http port %d outside of usable range", cfg.Port)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		authCache: cache.New(authCacheTTL, 2*authCacheTTL),
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/report", s.handleReport).Methods(http.MethodPost)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	if cfg.WSHandler != nil {
		router.HandleFunc("/ws", cfg.WSHandler).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSDomains,
		AllowedMethods:   []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowCredentials: true,
		MaxAge:           600,
		AllowedHeaders:   []string{"*"},
	})
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: time.Second,
	}
	return s, nil
}

// Start the ingress server.
func (s *Service) Start() {
	go func() {
		log.WithField("address", s.server.Addr).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("Failed to start HTTP server")
			s.startFailure = err
		}
	}()
}

// Stop the ingress server with a graceful shutdown.
func (s *Service) Stop() error {
	defer s.cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(s.ctx, shutdownTimeout)
	defer shutdownCancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("Existing connections terminated")
			return nil
		}
		return err
	}
	return nil
}

// Status returns an error if the server failed to bind.
func (s *Service) Status() error {
	return s.startFailure
}
