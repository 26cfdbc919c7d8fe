package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ppiankov/scrapenet/internal/cache"
	"github.com/ppiankov/scrapenet/internal/model"
)

// KeyFunc returns the lookup key an oracle item answers
type KeyFunc func(item model.FetchedItem) string

// Cached serves repeated lookups from a cache and forwards only misses.
// Only resolved items are stored; missing keys are asked again next time.
type Cached struct {
	inner     Oracle
	store     cache.Cache
	namespace string
	ttl       time.Duration
	keyOf     KeyFunc
}

// NewCached wraps inner. namespace separates platforms sharing one store.
func NewCached(inner Oracle, store cache.Cache, namespace string, ttl time.Duration, keyOf KeyFunc) *Cached {
	return &Cached{inner: inner, store: store, namespace: namespace, ttl: ttl, keyOf: keyOf}
}

// KeyFuncFor returns how items of platform map back to lookup keys
func KeyFuncFor(platform model.Platform) KeyFunc {
	if platform == model.PlatformTwitter {
		return func(item model.FetchedItem) string { return item.URL }
	}
	return func(item model.FetchedItem) string { return item.ID }
}

// Lookup implements Oracle
func (c *Cached) Lookup(ctx context.Context, keys []string) ([]model.FetchedItem, error) {
	var items []model.FetchedItem
	var misses []string
	for _, key := range keys {
		if raw, ok := c.store.Get(cache.Key(c.namespace, key)); ok {
			var item model.FetchedItem
			if err := json.Unmarshal(raw, &item); err == nil {
				items = append(items, item)
				continue
			}
		}
		misses = append(misses, key)
	}
	if len(misses) == 0 {
		return items, nil
	}

	fetched, err := c.inner.Lookup(ctx, misses)
	if err != nil {
		if len(items) > 0 {
			slog.Warn("oracle: lookup failed, serving cached items only", "namespace", c.namespace, "cached", len(items), "error", err)
			return items, nil
		}
		return nil, err
	}

	wanted := make(map[string]bool, len(misses))
	for _, key := range misses {
		wanted[key] = true
	}
	for _, item := range fetched {
		items = append(items, item)
		key := c.keyOf(item)
		if !wanted[key] {
			continue
		}
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		if err := c.store.Set(cache.Key(c.namespace, key), raw, c.ttl); err != nil {
			slog.Debug("oracle: cache write failed", "namespace", c.namespace, "error", err)
		}
	}
	return items, nil
}
