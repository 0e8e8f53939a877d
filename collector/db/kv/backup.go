package kv

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

const backupsDirectoryName = "backups"

// Backup the database to the datadir backup directory.
// Example: $DATADIR/backups/sentinel_collectordb_1708419382.backup
func (s *Store) Backup(ctx context.Context, outputDir string) error {
	_, span := trace.StartSpan(ctx, "collectorDB.Backup")
	defer span.End()

	backupsDir := path.Join(s.databasePath, backupsDirectoryName)
	if outputDir != "" {
		backupsDir = path.Join(outputDir, backupsDirectoryName)
	}
	// Ensure the backups directory exists.
	if err := os.MkdirAll(backupsDir, os.ModePerm); err != nil {
		return err
	}
	backupPath := path.Join(backupsDir, fmt.Sprintf("sentinel_collectordb_%d.backup", time.Now().Unix()))
	log.WithField("backup", backupPath).Info("Writing backup database.")
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupPath, 0666)
	})
}
