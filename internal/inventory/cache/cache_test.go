package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-boxoffice/internal/inventory/cache"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

func setupCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(client, 30*time.Second, logger.NewTestLogger()), mr
}

func sampleSummary() *models.InventorySummary {
	return &models.InventorySummary{
		EventID:     "evt-1",
		EventStatus: models.EventOnSale,
		Sections: []models.SectionInventory{
			{Section: "FLOOR", TotalSeats: 100, Available: 60, Held: 10, Sold: 30, TierName: "Premium", PriceCents: 7500},
		},
		TotalSeats: 100,
		Available:  60,
		Held:       10,
		Sold:       30,
	}
}

func TestGetMissesOnEmptyCache(t *testing.T) {
	c, _ := setupCache(t)

	_, ok := c.Get(context.Background(), "evt-1")
	assert.False(t, ok)
}

func TestSetThenGet(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	c.Set(ctx, "evt-1", sampleSummary())

	got, ok := c.Get(ctx, "evt-1")
	require.True(t, ok)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, 60, got.Available)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "FLOOR", got.Sections[0].Section)
}

func TestInvalidateDropsEntry(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	c.Set(ctx, "evt-1", sampleSummary())
	c.Invalidate(ctx, "evt-1")

	_, ok := c.Get(ctx, "evt-1")
	assert.False(t, ok)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	c.Set(ctx, "evt-1", sampleSummary())
	mr.FastForward(31 * time.Second)

	_, ok := c.Get(ctx, "evt-1")
	assert.False(t, ok)
}

func TestCorruptEntryReadsAsMiss(t *testing.T) {
	c, mr := setupCache(t)

	require.NoError(t, mr.Set("inventory_summary:evt-1", "{not json"))

	_, ok := c.Get(context.Background(), "evt-1")
	assert.False(t, ok)
}
