// Package db defines the ability to create a new database for the
// Sentinel collector.
package db

import "github.com/trinnode/Sentinel/collector/db/kv"

// NewDB initializes a new DB.
func NewDB(dirPath string) (Database, error) {
	return kv.NewKVStore(dirPath)
}
