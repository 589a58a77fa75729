package cache

import (
	"context"
	"encoding/json"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "inventory_summary:"

// Cache keeps per-event availability summaries in Redis so the public
// inventory endpoint does not hit the seat table on every poll. Correctness
// never depends on it: entries carry a short TTL and every committed seat
// transition invalidates the event's entry.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func New(client *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{Client: client, TTL: ttl, Logger: log}
}

// Get returns the cached summary for an event, if present and decodable.
func (c *Cache) Get(ctx context.Context, eventID string) (*models.InventorySummary, bool) {
	raw, err := c.Client.Get(ctx, keyPrefix+eventID).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.warn("GET", eventID, err)
		return nil, false
	}
	var summary models.InventorySummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		c.warn("DECODE", eventID, err)
		return nil, false
	}
	return &summary, true
}

// Set stores a summary under the event's key. Failures are logged and
// ignored; the next read simply recomputes.
func (c *Cache) Set(ctx context.Context, eventID string, summary *models.InventorySummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		c.warn("ENCODE", eventID, err)
		return
	}
	if err := c.Client.Set(ctx, keyPrefix+eventID, raw, c.TTL).Err(); err != nil {
		c.warn("SET", eventID, err)
	}
}

// Invalidate drops the event's entry after a committed transition.
func (c *Cache) Invalidate(ctx context.Context, eventID string) {
	if err := c.Client.Del(ctx, keyPrefix+eventID).Err(); err != nil {
		c.warn("DEL", eventID, err)
	}
}

func (c *Cache) warn(op, eventID string, err error) {
	if c.Logger != nil {
		c.Logger.Warn("CACHE", op+" inventory summary for event "+eventID+": "+err.Error())
	}
}
