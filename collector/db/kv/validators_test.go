package kv

import (
	"context"
	"testing"
	"time"

	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/testing/require"
)

func TestStore_ValidatorCRUD(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.Validator(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	want := &types.Validator{
		ID:            "validator-1",
		UserID:        "user-1",
		Name:          "Mainnet Validator",
		BeaconNodeURL: "http://localhost:5052",
		IsActive:      true,
		CreatedAt:     time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, db.SaveValidator(ctx, want))

	got, err := db.Validator(ctx, "validator-1")
	require.NoError(t, err)
	require.Equal(t, want.UserID, got.UserID)
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.BeaconNodeURL, got.BeaconNodeURL)
	require.Equal(t, true, got.IsActive)
	require.Equal(t, true, got.CreatedAt.Equal(want.CreatedAt))
}

func TestStore_SaveValidator_RequiresID(t *testing.T) {
	db := setupDB(t)
	err := db.SaveValidator(context.Background(), &types.Validator{Name: "anonymous"})
	require.ErrorContains(t, "validator has no id", err)
}

func TestStore_SaveValidator_Overwrites(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveValidator(ctx, &types.Validator{ID: "validator-1", IsActive: true}))
	require.NoError(t, db.SaveValidator(ctx, &types.Validator{ID: "validator-1", IsActive: false}))

	got, err := db.Validator(ctx, "validator-1")
	require.NoError(t, err)
	require.Equal(t, false, got.IsActive)
}
