package fetch

import (
	"context"

	"github.com/rs/zerolog"

	"inventory-verify/pkg/document"
)

// CacheStats counts cache traffic for one derivation pass.
type CacheStats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// Cache memoizes fetch results by kind and params. One Cache serves one
// derivation pass; it is not safe for concurrent use.
type Cache struct {
	src     Fetcher
	entries map[string][]document.Value
	stats   CacheStats
	logger  zerolog.Logger
}

// NewCache wraps src.
func NewCache(src Fetcher, logger zerolog.Logger) *Cache {
	return &Cache{
		src:     src,
		entries: make(map[string][]document.Value),
		logger:  logger,
	}
}

// Fetch returns the memoized documents, fetching from the source on first use.
// Failed fetches are not memoized.
func (c *Cache) Fetch(ctx context.Context, kind Kind, params Params) ([]document.Value, error) {
	key := string(kind)
	if pk := params.key(); pk != "" {
		key += "?" + pk
	}
	if docs, ok := c.entries[key]; ok {
		c.stats.Hits++
		return docs, nil
	}

	c.stats.Misses++
	docs, err := c.src.Fetch(ctx, kind, params)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []document.Value{}
	}
	c.entries[key] = docs
	c.logger.Debug().Str("kind", string(kind)).Str("params", params.key()).Int("documents", len(docs)).Msg("fetched documents")
	return docs, nil
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() CacheStats {
	return c.stats
}
