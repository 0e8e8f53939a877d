package api

import "time"

// Broadcast message types pushed to websocket observers.
const (
	MsgWelcome         = "welcome"
	MsgValidatorUpdate = "validator_update"
	MsgAlert           = "alert"
	MsgAgentUpdate     = "agent_update"
	MsgConsensusUpdate = "consensus_update"
	// MsgAuthenticate is the only inbound observer message; it binds a
	// session to a user so scoped updates can reach it.
	MsgAuthenticate = "authenticate"
)

// BroadcastMessage is the envelope for every push-plane frame.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewBroadcastMessage stamps a payload for delivery.
func NewBroadcastMessage(msgType string, data interface{}) *BroadcastMessage {
	return &BroadcastMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Welcome greets a freshly connected observer session.
type Welcome struct {
	ClientID string `json:"clientId"`
	Message  string `json:"message,omitempty"`
}

// Authenticate binds an observer session to a user.
type Authenticate struct {
	UserID string `json:"userId"`
}

// ValidatorUpdate announces a validator status transition. Extra holds
// transition-specific fields such as alertId or consensusCancelled.
type ValidatorUpdate struct {
	ValidatorID string                 `json:"validatorId"`
	Status      string                 `json:"status"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// AgentUpdate announces agent liveness after an accepted report.
type AgentUpdate struct {
	AgentID     string    `json:"agentId"`
	ValidatorID string    `json:"validatorId"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"lastSeen"`
}

// ConsensusUpdate describes the state of an open consensus window.
type ConsensusUpdate struct {
	ValidatorID      string `json:"validatorId"`
	TotalReports     int    `json:"totalReports"`
	UnhealthyReports int    `json:"unhealthyReports"`
	Threshold        int    `json:"threshold"`
	ConsensusReached bool   `json:"consensusReached"`
}
