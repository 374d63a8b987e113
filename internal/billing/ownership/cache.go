// Package ownership serves property ownership tables to the billing services
// through an in-process read-through cache.
package ownership

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

// TableSource loads every share recorded for a property
type TableSource interface {
	Table(ctx context.Context, tenantID string, propertyID domain.PropertyID) (domain.OwnershipTable, error)
}

// Config sizes the cache. MaxEntries bounds the number of cached properties.
type Config struct {
	MaxEntries int64
	TTL        time.Duration
}

// CachedProvider answers ActiveShares from cached ownership tables, loading
// from the source on a miss.
type CachedProvider struct {
	source TableSource
	cache  *ristretto.Cache[string, domain.OwnershipTable]
	ttl    time.Duration
}

// NewCachedProvider creates a CachedProvider over source
func NewCachedProvider(source TableSource, cfg Config) (*CachedProvider, error) {
	if source == nil {
		panic("ownership source is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, domain.OwnershipTable]{
		NumCounters:        cfg.MaxEntries * 10,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ownership cache: %w", err)
	}
	return &CachedProvider{source: source, cache: c, ttl: cfg.TTL}, nil
}

func key(tenantID string, propertyID domain.PropertyID) string {
	return tenantID + "/" + propertyID.String()
}

// ActiveShares returns the shares of a property active on asOf
func (p *CachedProvider) ActiveShares(ctx context.Context, tenantID string, propertyID domain.PropertyID, asOf time.Time) (domain.OwnershipTable, error) {
	k := key(tenantID, propertyID)
	if table, ok := p.cache.Get(k); ok {
		return table.ActiveOn(asOf), nil
	}
	table, err := p.source.Table(ctx, tenantID, propertyID)
	if err != nil {
		return nil, err
	}
	p.cache.SetWithTTL(k, table, 1, p.ttl)
	return table.ActiveOn(asOf), nil
}

// Invalidate drops the cached table of a property
func (p *CachedProvider) Invalidate(tenantID string, propertyID domain.PropertyID) {
	p.cache.Del(key(tenantID, propertyID))
}

// Wait blocks until pending cache writes are applied
func (p *CachedProvider) Wait() {
	p.cache.Wait()
}

// Close releases the cache
func (p *CachedProvider) Close() {
	p.cache.Close()
}
