// Package cache stores oracle lookups so repeated spot checks of the same item
// do not spend rate-limited oracle quota.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced cache key; raw is hashed so any id or url is safe on disk
func Key(namespace, raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return "scrapenet-v1-" + namespace + "-" + hex.EncodeToString(hash[:])
}
