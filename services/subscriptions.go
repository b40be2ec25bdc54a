package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/offline"
	"github.com/tiendafacil/ledger_backend/remote"
)

// SubscriptionManager keeps a tenant's offline snapshots in step with the
// remote store. Each collection subscription receives full snapshots and
// rewrites the corresponding cache entry; client events are re-bucketed per
// client on every snapshot.
type SubscriptionManager struct {
	store  remote.Store
	cache  *offline.Cache
	prices *offline.ProductPriceCache
	logger *logrus.Logger

	cancels []func()
}

func NewSubscriptionManager(store remote.Store, cache *offline.Cache, prices *offline.ProductPriceCache, logger *logrus.Logger) *SubscriptionManager {
	return &SubscriptionManager{store: store, cache: cache, prices: prices, logger: logger}
}

// Start registers subscriptions for every collection of one tenant.
func (sm *SubscriptionManager) Start(empresaId string) {
	sm.cancels = append(sm.cancels,
		sm.store.Subscribe(empresaId, models.SyncCollectionProducts, func(docs []remote.Document) {
			sm.onProducts(empresaId, docs)
		}),
		sm.store.Subscribe(empresaId, models.SyncCollectionClients, func(docs []remote.Document) {
			sm.onClients(empresaId, docs)
		}),
		sm.store.Subscribe(empresaId, models.SyncCollectionEvents, func(docs []remote.Document) {
			sm.onEvents(empresaId, docs)
		}),
		sm.store.Subscribe(empresaId, models.SyncCollectionMembers, func(docs []remote.Document) {
			sm.onMembers(empresaId, docs)
		}),
	)
}

// Stop cancels every registered subscription.
func (sm *SubscriptionManager) Stop() {
	for _, cancel := range sm.cancels {
		cancel()
	}
	sm.cancels = nil
}

func (sm *SubscriptionManager) onProducts(empresaId string, docs []remote.Document) {
	ctx := context.Background()
	products := decodeAll[models.Producto](sm.logger, "products", docs)
	if err := sm.cache.CacheProducts(ctx, empresaId, products); err != nil {
		sm.logger.WithError(err).Warn("product snapshot cache failed")
		return
	}
	if sm.prices != nil {
		sm.prices.Refresh(ctx, empresaId)
	}
	sm.markSynced(ctx, empresaId)
}

func (sm *SubscriptionManager) onClients(empresaId string, docs []remote.Document) {
	ctx := context.Background()
	clients := decodeAll[models.Cliente](sm.logger, "clients", docs)
	if err := sm.cache.CacheClients(ctx, empresaId, clients); err != nil {
		sm.logger.WithError(err).Warn("client snapshot cache failed")
		return
	}
	sm.markSynced(ctx, empresaId)
}

func (sm *SubscriptionManager) onEvents(empresaId string, docs []remote.Document) {
	ctx := context.Background()
	events := decodeAll[models.TransactionEvent](sm.logger, "events", docs)
	byClient := make(map[string][]models.TransactionEvent)
	for _, e := range events {
		byClient[e.ClienteId] = append(byClient[e.ClienteId], e)
	}
	for clienteId, clientEvents := range byClient {
		if err := sm.cache.CacheClientEvents(ctx, empresaId, clienteId, clientEvents); err != nil {
			sm.logger.WithError(err).Warn("event snapshot cache failed")
		}
	}
	sm.markSynced(ctx, empresaId)
}

func (sm *SubscriptionManager) onMembers(empresaId string, docs []remote.Document) {
	ctx := context.Background()
	members := decodeAll[models.Miembro](sm.logger, "members", docs)
	if err := sm.cache.CacheMiembros(ctx, empresaId, members); err != nil {
		sm.logger.WithError(err).Warn("member snapshot cache failed")
		return
	}
	sm.markSynced(ctx, empresaId)
}

func (sm *SubscriptionManager) markSynced(ctx context.Context, empresaId string) {
	if err := sm.cache.MarkSynced(ctx, empresaId); err != nil {
		sm.logger.WithError(err).Warn("last sync stamp failed")
	}
}

func decodeAll[T any](logger *logrus.Logger, collection string, docs []remote.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := remote.FromDocument[T](doc)
		if err != nil {
			logger.WithField("collection", collection).WithError(err).Warn("skipping undecodable document")
			continue
		}
		out = append(out, item)
	}
	return out
}
