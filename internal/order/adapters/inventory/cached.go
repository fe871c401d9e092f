package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lymian/kirbook-pedido-rest/internal/order/app"
	"github.com/lymian/kirbook-pedido-rest/internal/pkg/cache"
)

// CachedClient serves LookupItem from a short-TTL cache. Only the display
// path is cached: GetItem stays a fresh remote read because it feeds stock
// validation and pricing, and DecrementStock passes straight through.
type CachedClient struct {
	app.InventoryGateway
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedClient(inner app.InventoryGateway, c cache.Cache, ttl time.Duration, log *slog.Logger) *CachedClient {
	return &CachedClient{InventoryGateway: inner, cache: c, ttl: ttl, log: log}
}

func (c *CachedClient) LookupItem(ctx context.Context, itemID string) (app.ItemSnapshot, error) {
	key := c.cache.GenerateKey("item", itemID)

	if raw, err := c.cache.Get(ctx, key); err == nil && raw != "" {
		var snap app.ItemSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			return snap, nil
		}
		// Unparseable entry: fall through to the remote and overwrite it.
	}

	snap, err := c.InventoryGateway.GetItem(ctx, itemID)
	if err != nil {
		return app.ItemSnapshot{}, err
	}

	if raw, err := json.Marshal(snap); err == nil {
		if err := c.cache.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.log.DebugContext(ctx, "item cache write failed", "item_id", itemID, "error", err)
		}
	}
	return snap, nil
}
