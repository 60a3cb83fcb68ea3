package nft

import (
	"context"

	"mixtape/internal/cache"
	"mixtape/pkg/models"
)

// CachedReader memoises successful asset lookups of another AssetReader.
// Failures are not cached.
type CachedReader struct {
	next  AssetReader
	cache *cache.AssetCache
}

// NewCachedReader wraps next with c.
func NewCachedReader(next AssetReader, c *cache.AssetCache) *CachedReader {
	return &CachedReader{next: next, cache: c}
}

// ReadAsset returns the cached asset for address or asks the wrapped reader.
func (r *CachedReader) ReadAsset(ctx context.Context, address string) (*models.Asset, error) {
	if asset, ok := r.cache.GetAsset(address); ok {
		return asset, nil
	}
	asset, err := r.next.ReadAsset(ctx, address)
	if err != nil {
		return nil, err
	}
	r.cache.SetAsset(address, asset)
	return asset, nil
}
