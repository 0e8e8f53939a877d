package kv

import (
	"context"
	"testing"

	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/testing/require"
)

func TestStore_WebhookConfigsByUser(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveWebhookConfig(ctx, &types.WebhookConfig{
		ID:       "webhook-1",
		UserID:   "user-1",
		URL:      "https://hooks.example.com/a",
		Secret:   "s3cret",
		Events:   []string{"validator.unhealthy"},
		IsActive: true,
	}))
	require.NoError(t, db.SaveWebhookConfig(ctx, &types.WebhookConfig{
		ID:     "webhook-2",
		UserID: "user-1",
		URL:    "https://hooks.example.com/b",
		Events: []string{"webhook.test"},
	}))
	require.NoError(t, db.SaveWebhookConfig(ctx, &types.WebhookConfig{
		ID:     "webhook-3",
		UserID: "user-2",
		URL:    "https://hooks.example.com/c",
	}))

	configs, err := db.WebhookConfigs(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, len(configs))
	for _, c := range configs {
		require.Equal(t, "user-1", c.UserID)
	}

	configs, err = db.WebhookConfigs(ctx, "user-3")
	require.NoError(t, err)
	require.Equal(t, 0, len(configs))
}

func TestStore_SaveWebhookConfig_Overwrites(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveWebhookConfig(ctx, &types.WebhookConfig{
		ID: "webhook-1", UserID: "user-1", URL: "https://hooks.example.com/a", IsActive: true,
	}))
	require.NoError(t, db.SaveWebhookConfig(ctx, &types.WebhookConfig{
		ID: "webhook-1", UserID: "user-1", URL: "https://hooks.example.com/a", IsActive: false,
	}))

	configs, err := db.WebhookConfigs(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, len(configs))
	require.Equal(t, false, configs[0].IsActive)
}
