package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/health"
)

// AgentReport retrieves a report by id. Returns ErrNotFound when the
// id is unknown.
func (s *Store) AgentReport(ctx context.Context, id string) (*types.AgentReport, error) {
	_, span := trace.StartSpan(ctx, "collectorDB.AgentReport")
	defer span.End()
	r := &types.AgentReport{}
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(agentReportsBucket).Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "agent report %q", id)
		}
		return decode(enc, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// SaveAgentReport persists an accepted report and advances the
// submitting agent's lastSeen in the same transaction, so a report is
// never on disk without the liveness it proves.
func (s *Store) SaveAgentReport(ctx context.Context, report *types.AgentReport) error {
	_, span := trace.StartSpan(ctx, "collectorDB.SaveAgentReport")
	defer span.End()
	if report.ID == "" || report.AgentID == "" || report.ValidatorID == "" {
		return errors.New("report is missing id, agentId or validatorId")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		enc, err := encode(report)
		if err != nil {
			return err
		}
		if err := tx.Bucket(agentReportsBucket).Put([]byte(report.ID), enc); err != nil {
			return err
		}
		idxKey := timeIndexKey(report.ValidatorID, report.CreatedAt, report.ID)
		if err := tx.Bucket(reportsByValidatorBucket).Put(idxKey, []byte(report.ID)); err != nil {
			return err
		}
		return touchAgentLastSeen(tx, report.AgentID, *report)
	})
}

// AgentReportsByValidator returns up to limit reports for a validator,
// newest first. A non-positive limit returns everything.
func (s *Store) AgentReportsByValidator(ctx context.Context, validatorID string, limit int) ([]*types.AgentReport, error) {
	_, span := trace.StartSpan(ctx, "collectorDB.AgentReportsByValidator")
	defer span.End()
	var reports []*types.AgentReport
	err := s.db.View(func(tx *bolt.Tx) error {
		reportsBkt := tx.Bucket(agentReportsBucket)
		c := tx.Bucket(reportsByValidatorBucket).Cursor()
		prefix := indexPrefix(validatorID)

		// Walk the time-ordered index backwards from the end of the
		// prefix range for newest-first ordering.
		for k, id := seekLast(c, prefix); k != nil && hasPrefix(k, prefix); k, id = c.Prev() {
			enc := reportsBkt.Get(id)
			if enc == nil {
				continue
			}
			r := &types.AgentReport{}
			if err := decode(enc, r); err != nil {
				return err
			}
			reports = append(reports, r)
			if limit > 0 && len(reports) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// seekLast positions the cursor on the last key within the prefix range.
func seekLast(c *bolt.Cursor, prefix []byte) ([]byte, []byte) {
	// Seek to the first key past the prefix range, then step back.
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			if k, _ := c.Seek(end); k == nil {
				return c.Last()
			}
			return c.Prev()
		}
		end = end[:i]
	}
	return c.Last()
}

// UpdateAgentReportStatus rewrites the status and consensus flag of the
// given reports in one transaction. Used when a consensus window
// terminates and every attached report receives its final status.
func (s *Store) UpdateAgentReportStatus(ctx context.Context, ids []string, status health.Status, consensus bool) error {
	_, span := trace.StartSpan(ctx, "collectorDB.UpdateAgentReportStatus")
	defer span.End()
	if len(ids) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(agentReportsBucket)
		for _, id := range ids {
			enc := bkt.Get([]byte(id))
			if enc == nil {
				return errors.Wrapf(ErrNotFound, "agent report %q", id)
			}
			r := &types.AgentReport{}
			if err := decode(enc, r); err != nil {
				return err
			}
			r.Status = status
			r.Consensus = consensus
			enc, err := encode(r)
			if err != nil {
				return err
			}
			if err := bkt.Put([]byte(id), enc); err != nil {
				return err
			}
		}
		return nil
	})
}
