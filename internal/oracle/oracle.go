package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Price Oracle — current USD price per mint, with caching
// ---------------------------------------------------------------------------

// ErrUnavailable is returned when no price can be produced for a mint.
// Callers treat it as a transient miss, not a terminal failure.
var ErrUnavailable = errors.New("oracle: price unavailable")

// Oracle produces the current USD price for a mint.
type Oracle interface {
	// Price returns the latest known USD price. The context bounds the
	// lookup; implementations must return promptly once it is done.
	Price(ctx context.Context, mint token.Mint) (decimal.Decimal, error)
}

type cacheEntry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Cache wraps an Oracle with a TTL cache and a last-good fallback: when the
// inner oracle fails, the most recent successful price is served for up to
// MaxStale so a brief feed outage does not starve every position monitor.
type Cache struct {
	inner    Oracle
	ttl      time.Duration
	maxStale time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[token.Mint]cacheEntry
}

// NewCache builds a caching oracle. ttl is how long a fetched price stays
// fresh; maxStale bounds how old a last-good price may be before a failing
// inner oracle surfaces its error.
func NewCache(inner Oracle, ttl, maxStale time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if maxStale < ttl {
		maxStale = 6 * ttl
	}
	return &Cache{
		inner:    inner,
		ttl:      ttl,
		maxStale: maxStale,
		now:      time.Now,
		entries:  make(map[token.Mint]cacheEntry),
	}
}

// Price implements Oracle.
func (c *Cache) Price(ctx context.Context, mint token.Mint) (decimal.Decimal, error) {
	c.mu.Lock()
	entry, ok := c.entries[mint]
	c.mu.Unlock()

	now := c.now()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.price, nil
	}

	price, err := c.inner.Price(ctx, mint)
	if err == nil {
		c.mu.Lock()
		c.entries[mint] = cacheEntry{price: price, fetchedAt: now}
		c.mu.Unlock()
		return price, nil
	}

	// Last-good fallback.
	if ok && now.Sub(entry.fetchedAt) < c.maxStale {
		return entry.price, nil
	}
	return decimal.Zero, err
}

// Forget drops a mint from the cache. Used when a position closes so a
// stale entry cannot leak into a future position on the same mint.
func (c *Cache) Forget(mint token.Mint) {
	c.mu.Lock()
	delete(c.entries, mint)
	c.mu.Unlock()
}
