package cache

import "time"

// DefaultMarketTTL is how long the market directory is reused before refetching.
const DefaultMarketTTL = 300 * time.Second

// MarketCache holds the parsed market directory records.
type MarketCache = TTLCache[[][]byte]

func NewMarketCache(ttl time.Duration, now func() time.Time) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return NewTTLCache[[][]byte](ttl, now)
}
