package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/collector/types"
)

// Agent retrieves an agent by id. Returns ErrNotFound when the id is
// unknown.
func (s *Store) Agent(ctx context.Context, id string) (*types.Agent, error) {
	_, span := trace.StartSpan(ctx, "collectorDB.Agent")
	defer span.End()
	a := &types.Agent{}
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(agentsBucket).Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "agent %q", id)
		}
		return decode(enc, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SaveAgent upserts an agent record. An existing lastSeen is never
// moved backwards, so registry re-imports cannot erase liveness.
func (s *Store) SaveAgent(ctx context.Context, a *types.Agent) error {
	_, span := trace.StartSpan(ctx, "collectorDB.SaveAgent")
	defer span.End()
	if a.ID == "" {
		return errors.New("agent has no id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putAgent(tx, a)
	})
}

func putAgent(tx *bolt.Tx, a *types.Agent) error {
	bkt := tx.Bucket(agentsBucket)
	if enc := bkt.Get([]byte(a.ID)); enc != nil {
		existing := &types.Agent{}
		if err := decode(enc, existing); err != nil {
			return err
		}
		if existing.LastSeen.After(a.LastSeen) {
			a.LastSeen = existing.LastSeen
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = existing.CreatedAt
		}
	}
	enc, err := encode(a)
	if err != nil {
		return err
	}
	return bkt.Put([]byte(a.ID), enc)
}

// touchAgentLastSeen advances lastSeen inside an open transaction.
// Time never moves backwards here even if callers race.
func touchAgentLastSeen(tx *bolt.Tx, agentID string, seen types.AgentReport) error {
	bkt := tx.Bucket(agentsBucket)
	enc := bkt.Get([]byte(agentID))
	if enc == nil {
		return errors.Wrapf(ErrNotFound, "agent %q", agentID)
	}
	a := &types.Agent{}
	if err := decode(enc, a); err != nil {
		return err
	}
	if !seen.CreatedAt.After(a.LastSeen) {
		return nil
	}
	a.LastSeen = seen.CreatedAt
	enc, err := encode(a)
	if err != nil {
		return err
	}
	return bkt.Put([]byte(agentID), enc)
}
