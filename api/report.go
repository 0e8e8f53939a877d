// Package api defines the JSON wire contracts spoken between agents,
// their peers, the collector, and downstream consumers.
package api

import (
	"github.com/trinnode/Sentinel/health"
)

// ReportRequest is the body of POST /api/report. AgentAPIKey travels in
// the body rather than a header so a report is a single self-contained
// document.
type ReportRequest struct {
	AgentID     string        `json:"agentId"`
	AgentAPIKey string        `json:"agentApiKey"`
	ValidatorID string        `json:"validatorId"`
	Status      health.Status `json:"status"`
	Message     string        `json:"message,omitempty"`
	Signature   string        `json:"signature,omitempty"`
}

// ReportResponse acknowledges an accepted report.
type ReportResponse struct {
	Success  bool   `json:"success"`
	ReportID string `json:"reportId"`
}

// ErrorResponse carries a rejection reason for any non-2xx ingress reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
