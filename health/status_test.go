package health

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/trinnode/Sentinel/testing/assert"
	"github.com/trinnode/Sentinel/testing/require"
)

func TestStatus_Valid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{Healthy, true},
		{Unhealthy, true},
		{ConsensusReached, true},
		{ConsensusFailed, true},
		{Status(""), false},
		{Status("healthy"), false},
		{Status("DEGRADED"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Valid(), "Valid(%q)", tt.status)
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.Equal(t, false, Healthy.Terminal())
	assert.Equal(t, false, Unhealthy.Terminal())
	assert.Equal(t, true, ConsensusReached.Terminal())
	assert.Equal(t, true, ConsensusFailed.Terminal())
}

func TestResult_ResponseTimeInMilliseconds(t *testing.T) {
	r := Result{
		ValidatorID:  "val-1",
		Status:       Unhealthy,
		ResponseTime: 1500 * time.Millisecond,
		Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Error:        "connection refused",
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.StringContains(t, `"responseTime":1500`, string(b))
	assert.StringContains(t, `"status":"UNHEALTHY"`, string(b))

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, r.ResponseTime, back.ResponseTime)
	assert.Equal(t, r.Error, back.Error)
}

func TestResult_OmitsEmptyOptionalFields(t *testing.T) {
	r := Result{ValidatorID: "val-1", Status: Healthy, Timestamp: time.Now()}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.StringNotContains(t, "error", string(b))
	assert.StringNotContains(t, "beaconBlockHeight", string(b))
}
