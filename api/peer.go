package api

import (
	"encoding/json"
	"time"

	"github.com/trinnode/Sentinel/health"
)

// Peer message types carried in Envelope.Type.
const (
	MsgPeerHello         = "peer_hello"
	MsgConsensusRequest  = "consensus_request"
	MsgConsensusResponse = "consensus_response"
	// MsgHealthReport is reserved for gossiping raw probe results between
	// peers. No current component emits it.
	MsgHealthReport = "health_report"
)

// Envelope frames every message on a peer socket. Data holds the
// type-specific payload, decoded lazily by the consumer.
type Envelope struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a framed peer message.
func NewEnvelope(msgType, from string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:      msgType,
		From:      from,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// PeerHello identifies an agent to the remote end right after the
// socket opens.
type PeerHello struct {
	AgentID     string `json:"agentId"`
	ValidatorID string `json:"validatorId"`
	Version     string `json:"version,omitempty"`
}

// ConsensusRequest asks peers watching the same validator to vote on a
// suspected failure. Evidence carries the requester's recent probe
// results.
type ConsensusRequest struct {
	ConsensusID string          `json:"consensusId"`
	ValidatorID string          `json:"validatorId"`
	AgentID     string          `json:"agentId"`
	Status      health.Status   `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Evidence    []health.Result `json:"evidence,omitempty"`
}

// ConsensusResponse is a single peer's vote. Evidence is attached only
// when the peer agrees, carrying its own corroborating observation.
type ConsensusResponse struct {
	ConsensusID string         `json:"consensusId"`
	ValidatorID string         `json:"validatorId"`
	AgentID     string         `json:"agentId"`
	RequesterID string         `json:"requesterId"`
	Agree       bool           `json:"agree"`
	Timestamp   time.Time      `json:"timestamp"`
	Evidence    *health.Result `json:"evidence,omitempty"`
}
