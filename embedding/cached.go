package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/candlelight-ai/lyceum/cache"
)

// CachedProvider memoizes embeddings keyed by text hash, so repeated
// expanded-query texts in a request burst are embedded once.
type CachedProvider struct {
	inner Provider
	store cache.Cache
	ttl   time.Duration
}

// NewCached wraps a provider with a cache.
func NewCached(inner Provider, store cache.Cache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedProvider{inner: inner, store: store, ttl: ttl}
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.store.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store.Set(key, vec, c.ttl)
	return vec, nil
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return "emb:" + hex.EncodeToString(h[:])
}
