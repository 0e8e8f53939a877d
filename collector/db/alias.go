package db

import (
	"github.com/trinnode/Sentinel/collector/db/iface"
	"github.com/trinnode/Sentinel/collector/db/kv"
)

// ErrNotFound wraps the kv sentinel so callers need not depend on the
// storage implementation.
var ErrNotFound = kv.ErrNotFound

// ReadOnlyDatabase exposes the collector's DB read only functions.
type ReadOnlyDatabase = iface.ReadOnlyDatabase

// Database defines the necessary methods for the collector's DB which may be
// implemented by any key-value or relational database in practice. This is
// the full database interface which should not be used often. Prefer a more
// restrictive interface in this package.
type Database = iface.Database
