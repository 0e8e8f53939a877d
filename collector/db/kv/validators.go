package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/collector/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found in db")

// Validator retrieves a validator by id. Returns ErrNotFound when the
// id is unknown.
func (s *Store) Validator(ctx context.Context, id string) (*types.Validator, error) {
	_, span := trace.StartSpan(ctx, "collectorDB.Validator")
	defer span.End()
	v := &types.Validator{}
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(validatorsBucket).Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "validator %q", id)
		}
		return decode(enc, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// SaveValidator upserts a validator record.
func (s *Store) SaveValidator(ctx context.Context, v *types.Validator) error {
	_, span := trace.StartSpan(ctx, "collectorDB.SaveValidator")
	defer span.End()
	if v.ID == "" {
		return errors.New("validator has no id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putValidator(tx, v)
	})
}

func putValidator(tx *bolt.Tx, v *types.Validator) error {
	enc, err := encode(v)
	if err != nil {
		return err
	}
	return tx.Bucket(validatorsBucket).Put([]byte(v.ID), enc)
}
