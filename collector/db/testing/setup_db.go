// Package testing allows for spinning up a real bolt-db instance for
// unit tests throughout the Sentinel repo.
package testing

import (
	"testing"

	"github.com/trinnode/Sentinel/collector/db"
	"github.com/trinnode/Sentinel/collector/db/kv"
)

// SetupDB instantiates and returns a database backed by a key value store.
func SetupDB(t testing.TB) db.Database {
	s, err := kv.NewKVStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return s
}
