package ingress

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/collector/db"
	"github.com/trinnode/Sentinel/collector/types"
)

// agentAuth is the credential snapshot kept in the TTL cache.
type agentAuth struct {
	apiKey      string
	isActive    bool
	validatorID string
}

// rejection maps an authorization failure to its HTTP reply.
type rejection struct {
	code   int
	reason string
	public string
}

func (r *rejection) Error() string {
	return r.public
}

func reject(code int, reason, public string) *rejection {
	return &rejection{code: code, reason: reason, public: public}
}

func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "ingress.handleReport")
	defer span.End()

	req := &api.ReportRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.rejectReport(w, reject(http.StatusBadRequest, "malformed", "malformed JSON body"))
		return
	}
	if req.AgentID == "" || req.AgentAPIKey == "" || req.ValidatorID == "" || req.Status == "" {
		s.rejectReport(w, reject(http.StatusBadRequest, "malformed", "agentId, agentApiKey, validatorId and status are required"))
		return
	}
	if !req.Status.Valid() {
		s.rejectReport(w, reject(http.StatusBadRequest, "malformed", "status must be one of HEALTHY, UNHEALTHY, CONSENSUS_REACHED, CONSENSUS_FAILED"))
		return
	}

	validator, rej := s.authorize(ctx, req)
	if rej != nil {
		s.rejectReport(w, rej)
		return
	}

	report := &types.AgentReport{
		ID:          uuid.NewString(),
		AgentID:     req.AgentID,
		ValidatorID: req.ValidatorID,
		Status:      req.Status,
		Message:     req.Message,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.cfg.Database.SaveAgentReport(ctx, report); err != nil {
		log.WithError(err).Error("Could not persist agent report")
		s.rejectReport(w, reject(http.StatusInternalServerError, "storage", "could not persist report"))
		return
	}

	// The aggregator runs before the acknowledgement so the reportId in
	// the response already reflects any consensus transition.
	if err := s.cfg.Aggregator.ProcessReport(ctx, report, validator); err != nil {
		log.WithError(err).WithField("reportId", report.ID).Error("Could not process report")
		s.rejectReport(w, reject(http.StatusInternalServerError, "storage", "could not process report"))
		return
	}

	reportsReceived.WithLabelValues(string(req.Status)).Inc()
	writeJSON(w, http.StatusOK, &api.ReportResponse{Success: true, ReportID: report.ID})

	if s.cfg.Broadcaster != nil {
		s.cfg.Broadcaster.SendAgentUpdate(validator.UserID, &api.AgentUpdate{
			AgentID:     req.AgentID,
			ValidatorID: req.ValidatorID,
			Status:      "active",
			LastSeen:    report.CreatedAt,
		})
	}
}

// authorize checks the submitting agent's credentials and scope against
// the registry, via the TTL cache when warm.
func (s *Service) authorize(ctx context.Context, req *api.ReportRequest) (*types.Validator, *rejection) {
	auth, err := s.agentAuth(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, reject(http.StatusUnauthorized, "auth", "unknown agent")
		}
		log.WithError(err).Error("Could not load agent")
		return nil, reject(http.StatusInternalServerError, "storage", "internal error")
	}
	if !auth.isActive {
		return nil, reject(http.StatusUnauthorized, "auth", "agent is not active")
	}
	if subtle.ConstantTimeCompare([]byte(auth.apiKey), []byte(req.AgentAPIKey)) != 1 {
		return nil, reject(http.StatusUnauthorized, "auth", "invalid api key")
	}
	if auth.validatorID != req.ValidatorID {
		return nil, reject(http.StatusForbidden, "scope", "agent is not registered for this validator")
	}

	validator, err := s.validator(ctx, req.ValidatorID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, reject(http.StatusForbidden, "scope", "unknown validator")
		}
		log.WithError(err).Error("Could not load validator")
		return nil, reject(http.StatusInternalServerError, "storage", "internal error")
	}
	if !validator.IsActive {
		return nil, reject(http.StatusForbidden, "scope", "validator is not active")
	}
	return validator, nil
}

func (s *Service) agentAuth(ctx context.Context, agentID string) (*agentAuth, error) {
	key := "agent_" + agentID
	if cached, ok := s.authCache.Get(key); ok {
		return cached.(*agentAuth), nil
	}
	agent, err := s.cfg.Database.Agent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	auth := &agentAuth{
		apiKey:      agent.APIKey,
		isActive:    agent.IsActive,
		validatorID: agent.ValidatorID,
	}
	s.authCache.SetDefault(key, auth)
	return auth, nil
}

func (s *Service) validator(ctx context.Context, validatorID string) (*types.Validator, error) {
	key := "validator_" + validatorID
	if cached, ok := s.authCache.Get(key); ok {
		return cached.(*types.Validator), nil
	}
	validator, err := s.cfg.Database.Validator(ctx, validatorID)
	if err != nil {
		return nil, err
	}
	s.authCache.SetDefault(key, validator)
	return validator, nil
}

func (s *Service) rejectReport(w http.ResponseWriter, rej *rejection) {
	reportsRejected.WithLabelValues(rej.reason).Inc()
	writeJSON(w, rej.code, &api.ErrorResponse{Error: rej.public})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("Could not write JSON response")
	}
}
