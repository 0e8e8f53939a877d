package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/collector/types"
)

// SaveWebhookConfig persists a webhook configuration and indexes it
// under its owning user.
func (s *Store) SaveWebhookConfig(ctx context.Context, cfg *types.WebhookConfig) error {
	_, span := trace.StartSpan(ctx, "collectorDB.SaveWebhookConfig")
	defer span.End()
	if cfg.ID == "" || cfg.UserID == "" {
		return errors.New("webhook config is missing id or userId")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		enc, err := encode(cfg)
		if err != nil {
			return err
		}
		if err := tx.Bucket(webhookConfigsBucket).Put([]byte(cfg.ID), enc); err != nil {
			return err
		}
		idxKey := plainIndexKey(cfg.UserID, cfg.ID)
		return tx.Bucket(webhooksByUserBucket).Put(idxKey, []byte(cfg.ID))
	})
}

// WebhookConfigs returns every webhook configuration owned by a user.
func (s *Store) WebhookConfigs(ctx context.Context, userID string) ([]*types.WebhookConfig, error) {
	_, span := trace.StartSpan(ctx, "collectorDB.WebhookConfigs")
	defer span.End()
	var configs []*types.WebhookConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		cfgBkt := tx.Bucket(webhookConfigsBucket)
		c := tx.Bucket(webhooksByUserBucket).Cursor()
		prefix := indexPrefix(userID)
		for k, id := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, id = c.Next() {
			enc := cfgBkt.Get(id)
			if enc == nil {
				continue
			}
			w := &types.WebhookConfig{}
			if err := decode(enc, w); err != nil {
				return err
			}
			configs = append(configs, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return configs, nil
}
