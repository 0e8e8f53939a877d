package health

import (
	"encoding/json"
	"time"
)

// Result is a single probe observation of a beacon node. ResponseTime
// travels as integer milliseconds on the wire.
type Result struct {
	ValidatorID  string        `json:"validatorId"`
	Status       Status        `json:"status"`
	ResponseTime time.Duration `json:"responseTime"`
	Timestamp    time.Time     `json:"timestamp"`
	Error        string        `json:"error,omitempty"`
	BlockHeight  uint64        `json:"beaconBlockHeight,omitempty"`
}

type resultJSON struct {
	ValidatorID  string    `json:"validatorId"`
	Status       Status    `json:"status"`
	ResponseTime int64     `json:"responseTime"`
	Timestamp    time.Time `json:"timestamp"`
	Error        string    `json:"error,omitempty"`
	BlockHeight  uint64    `json:"beaconBlockHeight,omitempty"`
}

// MarshalJSON encodes ResponseTime as milliseconds.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		ValidatorID:  r.ValidatorID,
		Status:       r.Status,
		ResponseTime: r.ResponseTime.Milliseconds(),
		Timestamp:    r.Timestamp,
		Error:        r.Error,
		BlockHeight:  r.BlockHeight,
	})
}

// UnmarshalJSON decodes ResponseTime from milliseconds.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ValidatorID = raw.ValidatorID
	r.Status = raw.Status
	r.ResponseTime = time.Duration(raw.ResponseTime) * time.Millisecond
	r.Timestamp = raw.Timestamp
	r.Error = raw.Error
	r.BlockHeight = raw.BlockHeight
	return nil
}

// IsHealthy is a convenience accessor for the probe verdict.
func (r *Result) IsHealthy() bool {
	return r.Status == Healthy
}
