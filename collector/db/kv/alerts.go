package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/collector/types"
)

// SaveAlert persists an alert and indexes it under its validator.
// Saving an existing id overwrites the record, which is how an alert
// moves through PENDING, ACKNOWLEDGED and RESOLVED.
func (s *Store) SaveAlert(ctx context.Context, alert *types.Alert) error {
	_, span := trace.StartSpan(ctx, "collectorDB.SaveAlert")
	defer span.End()
	if alert.ID == "" || alert.ValidatorID == "" {
		return errors.New("alert is missing id or validatorId")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		enc, err := encode(alert)
		if err != nil {
			return err
		}
		if err := tx.Bucket(alertsBucket).Put([]byte(alert.ID), enc); err != nil {
			return err
		}
		idxKey := timeIndexKey(alert.ValidatorID, alert.CreatedAt, alert.ID)
		return tx.Bucket(alertsByValidatorBucket).Put(idxKey, []byte(alert.ID))
	})
}

// Alerts returns every alert raised for a validator, newest first.
func (s *Store) Alerts(ctx context.Context, validatorID string) ([]*types.Alert, error) {
	_, span := trace.StartSpan(ctx, "collectorDB.Alerts")
	defer span.End()
	var alerts []*types.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		alertsBkt := tx.Bucket(alertsBucket)
		c := tx.Bucket(alertsByValidatorBucket).Cursor()
		prefix := indexPrefix(validatorID)
		for k, id := seekLast(c, prefix); k != nil && hasPrefix(k, prefix); k, id = c.Prev() {
			enc := alertsBkt.Get(id)
			if enc == nil {
				continue
			}
			a := &types.Alert{}
			if err := decode(enc, a); err != nil {
				return err
			}
			alerts = append(alerts, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
