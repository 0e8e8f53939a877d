package kv

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Index keys concatenate the owning id, a NUL terminator, a big-endian
// creation timestamp, and the record id. Record ids are UUIDs, so the
// terminator cannot appear inside them and prefix scans stay exact.

func indexPrefix(ownerID string) []byte {
	return append([]byte(ownerID), 0x00)
}

func timeIndexKey(ownerID string, createdAt time.Time, recordID string) []byte {
	key := indexPrefix(ownerID)
	nano := make([]byte, 8)
	binary.BigEndian.PutUint64(nano, uint64(createdAt.UnixNano()))
	key = append(key, nano...)
	return append(key, []byte(recordID)...)
}

func plainIndexKey(ownerID, recordID string) []byte {
	return append(indexPrefix(ownerID), []byte(recordID)...)
}

func hasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
