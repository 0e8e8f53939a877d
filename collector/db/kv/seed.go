package kv

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/shared/params"
)

// ImportSeedRegistry upserts the registry's validators, agents and
// webhook configurations in a single transaction. Existing records keep
// their creation times, and agents keep their lastSeen, so repeated
// imports at boot are harmless.
func (s *Store) ImportSeedRegistry(ctx context.Context, reg *params.SeedRegistry) error {
	_, span := trace.StartSpan(ctx, "collectorDB.ImportSeedRegistry")
	defer span.End()
	now := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, sv := range reg.Validators {
			v := &types.Validator{
				ID:            sv.ID,
				UserID:        sv.UserID,
				Name:          sv.Name,
				BeaconNodeURL: sv.BeaconNodeURL,
				IsActive:      sv.IsActive,
				CreatedAt:     now,
			}
			if enc := tx.Bucket(validatorsBucket).Get([]byte(sv.ID)); enc != nil {
				existing := &types.Validator{}
				if err := decode(enc, existing); err != nil {
					return err
				}
				v.CreatedAt = existing.CreatedAt
			}
			if err := putValidator(tx, v); err != nil {
				return err
			}
		}
		for _, sa := range reg.Agents {
			a := &types.Agent{
				ID:          sa.ID,
				ValidatorID: sa.ValidatorID,
				APIKey:      sa.APIKey,
				IsActive:    sa.IsActive,
				CreatedAt:   now,
			}
			if enc := tx.Bucket(agentsBucket).Get([]byte(sa.ID)); enc != nil {
				existing := &types.Agent{}
				if err := decode(enc, existing); err != nil {
					return err
				}
				a.CreatedAt = existing.CreatedAt
				a.LastSeen = existing.LastSeen
			}
			if err := putAgent(tx, a); err != nil {
				return err
			}
		}
		for _, sw := range reg.Webhooks {
			w := &types.WebhookConfig{
				ID:       sw.ID,
				UserID:   sw.UserID,
				URL:      sw.URL,
				Secret:   sw.Secret,
				Events:   sw.Events,
				IsActive: sw.IsActive,
			}
			enc, err := encode(w)
			if err != nil {
				return err
			}
			if err := tx.Bucket(webhookConfigsBucket).Put([]byte(w.ID), enc); err != nil {
				return err
			}
			if err := tx.Bucket(webhooksByUserBucket).Put(plainIndexKey(w.UserID, w.ID), []byte(w.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"validators": len(reg.Validators),
		"agents":     len(reg.Agents),
		"webhooks":   len(reg.Webhooks),
	}).Info("Imported seed registry")
	return nil
}
