// Package types holds the durable records the collector persists:
// validators and agents imported from the management layer, the agent
// reports feeding consensus, the alerts consensus produces, and the
// webhook subscriptions alerts fan out to.
package types

import (
	"time"

	"github.com/trinnode/Sentinel/health"
)

// Validator is an externally owned monitoring target. The collector
// never creates or edits validators; it imports them at startup.
type Validator struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Name          string    `json:"name"`
	BeaconNodeURL string    `json:"beaconNodeUrl"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Agent is a registered probing process. APIKey is the per-validator
// credential shared by every agent watching the same validator.
type Agent struct {
	ID          string    `json:"id"`
	ValidatorID string    `json:"validatorId"`
	APIKey      string    `json:"apiKey"`
	IsActive    bool      `json:"isActive"`
	LastSeen    time.Time `json:"lastSeen"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AgentReport is one accepted status submission. Status starts as
// HEALTHY or UNHEALTHY and is rewritten to a consensus status when the
// report's window terminates. Consensus marks reports that were part
// of a quorum.
type AgentReport struct {
	ID          string        `json:"id"`
	AgentID     string        `json:"agentId"`
	ValidatorID string        `json:"validatorId"`
	Status      health.Status `json:"status"`
	Message     string        `json:"message,omitempty"`
	Consensus   bool          `json:"consensus"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// AlertStatus tracks an alert through its lifecycle. The collector only
// ever creates PENDING alerts; acknowledgement and resolution belong to
// the management layer.
type AlertStatus string

const (
	// AlertPending marks a newly created alert nobody has acted on.
	AlertPending AlertStatus = "PENDING"
	// AlertAcknowledged marks an alert an operator has seen.
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	// AlertResolved marks a closed alert.
	AlertResolved AlertStatus = "RESOLVED"
)

// Alert is the durable record of one consensus event.
type Alert struct {
	ID          string      `json:"id"`
	ValidatorID string      `json:"validatorId"`
	UserID      string      `json:"userId"`
	Status      AlertStatus `json:"status"`
	Message     string      `json:"message"`
	CreatedAt   time.Time   `json:"createdAt"`
	ResolvedAt  *time.Time  `json:"resolvedAt,omitempty"`
}

// WebhookConfig is a user-configured HTTP sink for event deliveries.
type WebhookConfig struct {
	ID       string   `json:"id"`
	UserID   string   `json:"userId"`
	URL      string   `json:"url"`
	Secret   string   `json:"secret,omitempty"`
	Events   []string `json:"events"`
	IsActive bool     `json:"isActive"`
}

// SubscribesTo reports whether the config opted into the named event.
func (w *WebhookConfig) SubscribesTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
