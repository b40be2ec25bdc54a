package offline

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tiendafacil/ledger_backend/models"
)

// ProductPriceCache keeps an in-memory index of product prices, refreshed
// from the offline product snapshot. Sale forms read prices from here so a
// cold remote store never blocks quoting a total.
type ProductPriceCache struct {
	cache *Cache

	mu     sync.RWMutex
	prices map[string]map[string]decimal.Decimal
}

func NewProductPriceCache(cache *Cache) *ProductPriceCache {
	return &ProductPriceCache{
		cache:  cache,
		prices: make(map[string]map[string]decimal.Decimal),
	}
}

// Refresh rebuilds the tenant's price index from the cached product
// snapshot. A cache miss clears the index for that tenant.
func (p *ProductPriceCache) Refresh(ctx context.Context, empresaId string) {
	products, ok := p.cache.GetCachedProducts(ctx, empresaId)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !ok {
		delete(p.prices, empresaId)
		return
	}
	idx := make(map[string]decimal.Decimal, len(products))
	for _, prod := range products {
		idx[prod.ID] = prod.Precio()
	}
	p.prices[empresaId] = idx
}

// Update overwrites one product's price without a full refresh.
func (p *ProductPriceCache) Update(empresaId string, product models.Producto) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prices[empresaId] == nil {
		p.prices[empresaId] = make(map[string]decimal.Decimal)
	}
	p.prices[empresaId][product.ID] = product.Precio()
}

// GetPrice returns the indexed price for a product, if known.
func (p *ProductPriceCache) GetPrice(empresaId, productId string) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[empresaId][productId]
	return price, ok
}
