// Package rediscache decorates a ListingStore with a Redis read-through cache.
// Listing reads dominate the API traffic; mutations write through to the
// underlying store and invalidate the cached entry.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/storage"
	"github.com/nftbay/marketplace/pkg/logger"
)

const defaultTTL = 30 * time.Second

// ListingCache is a caching ListingStore decorator.
type ListingCache struct {
	inner storage.ListingStore
	rdb   *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

var _ storage.ListingStore = (*ListingCache)(nil)

// New wraps inner with a cache backed by rdb. A non-positive ttl falls back to
// the default.
func New(inner storage.ListingStore, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *ListingCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logger.NewDefault("listing-cache")
	}
	return &ListingCache{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(asset market.AssetID) string {
	return fmt.Sprintf("listing:%s", asset)
}

func (c *ListingCache) GetListing(ctx context.Context, asset market.AssetID) (market.Listing, error) {
	payload, err := c.rdb.Get(ctx, cacheKey(asset)).Bytes()
	if err == nil {
		var listing market.Listing
		if unmarshalErr := json.Unmarshal(payload, &listing); unmarshalErr == nil {
			return listing, nil
		}
		// A corrupt entry is treated as a miss and refreshed below.
		c.log.Warnf("corrupt cache entry for %s", asset)
	} else if !errors.Is(err, redis.Nil) {
		// Cache unavailable; serve from the store.
		c.log.WithError(err).Warn("listing cache read failed")
	}

	listing, err := c.inner.GetListing(ctx, asset)
	if err != nil {
		return market.Listing{}, err
	}
	c.fill(ctx, asset, listing)
	return listing, nil
}

func (c *ListingCache) fill(ctx context.Context, asset market.AssetID, listing market.Listing) {
	payload, err := json.Marshal(listing)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(asset), payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("listing cache fill failed")
	}
}

func (c *ListingCache) invalidate(ctx context.Context, asset market.AssetID) {
	if err := c.rdb.Del(ctx, cacheKey(asset)).Err(); err != nil {
		c.log.WithError(err).Warn("listing cache invalidation failed")
	}
}

func (c *ListingCache) PutListing(ctx context.Context, asset market.AssetID, listing market.Listing) error {
	if err := c.inner.PutListing(ctx, asset, listing); err != nil {
		return err
	}
	c.invalidate(ctx, asset)
	return nil
}

func (c *ListingCache) DeleteListing(ctx context.Context, asset market.AssetID) error {
	if err := c.inner.DeleteListing(ctx, asset); err != nil {
		return err
	}
	c.invalidate(ctx, asset)
	return nil
}

// ListListings always reads the authoritative store; enumeration is rare and
// not worth cache invalidation complexity.
func (c *ListingCache) ListListings(ctx context.Context) ([]market.ListedItem, error) {
	return c.inner.ListListings(ctx)
}
