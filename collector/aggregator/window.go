package aggregator

import (
	"sort"
	"time"

	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/health"
)

// window is the in-memory consensus state for one validator. It exists
// only while at least one unhealthy report is pending and is destroyed
// on quorum, on recovery, or when it ages out.
type window struct {
	validatorID string
	// reports holds at most one entry per agent; a newer report from
	// the same agent replaces the older one.
	reports map[string]*types.AgentReport
	// consensusReached latches the quorum transition so it can never
	// fire twice for the same window.
	consensusReached bool
	// openedAt is the creation time of the earliest report.
	openedAt time.Time
}

func newWindow(validatorID string, openedAt time.Time) *window {
	return &window{
		validatorID: validatorID,
		reports:     make(map[string]*types.AgentReport),
		openedAt:    openedAt,
	}
}

func (w *window) upsert(report *types.AgentReport) {
	w.reports[report.AgentID] = report
	if report.CreatedAt.Before(w.openedAt) {
		w.openedAt = report.CreatedAt
	}
}

func (w *window) unhealthyCount() int {
	n := 0
	for _, r := range w.reports {
		if r.Status == health.Unhealthy {
			n++
		}
	}
	return n
}

func (w *window) reportIDs() []string {
	ids := make([]string, 0, len(w.reports))
	for _, r := range w.reports {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

func (w *window) agentIDs() []string {
	ids := make([]string, 0, len(w.reports))
	for id := range w.reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *window) olderThan(ttl time.Duration, now time.Time) bool {
	return now.Sub(w.openedAt) > ttl
}
