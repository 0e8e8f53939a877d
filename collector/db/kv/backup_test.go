package kv

import (
	"context"
	"os"
	"path"
	"testing"

	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/testing/require"
)

func TestStore_Backup(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveValidator(ctx, &types.Validator{ID: "validator-1", Name: "Mainnet Validator"}))
	require.NoError(t, db.Backup(ctx, ""))

	files, err := os.ReadDir(path.Join(db.databasePath, backupsDirectoryName))
	require.NoError(t, err)
	require.Equal(t, 1, len(files), "No backups created")

	info, err := files[0].Info()
	require.NoError(t, err)
	require.Equal(t, true, info.Size() > 0, "Backup file is empty")
}

func TestStore_Backup_CustomOutputDir(t *testing.T) {
	db := setupDB(t)
	outputDir := t.TempDir()

	require.NoError(t, db.Backup(context.Background(), outputDir))

	files, err := os.ReadDir(path.Join(outputDir, backupsDirectoryName))
	require.NoError(t, err)
	require.Equal(t, 1, len(files), "No backups created in output dir")
}
