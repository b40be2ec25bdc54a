package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/offline"
)

// newDeadLetterReverter builds the Manager's OnDead hook. A dead-lettered
// create means the optimistic cache entry under its temp id will never get
// a real document behind it, so that entry is rolled back. Updates and
// deletes keep their optimistic state; the next subscription snapshot
// restores the server copy.
func newDeadLetterReverter(cache *offline.Cache, logger *logrus.Logger) func(models.FailedSyncItem) {
	return func(item models.FailedSyncItem) {
		if item.Type != models.SyncItemTypeCreate || item.DocumentID == "" {
			return
		}
		ctx := context.Background()
		var dropped bool
		var err error
		switch item.Collection {
		case models.SyncCollectionProducts:
			if products, ok := cache.GetCachedProducts(ctx, item.EmpresaId); ok {
				kept := products[:0]
				for _, p := range products {
					if p.ID != item.DocumentID {
						kept = append(kept, p)
					}
				}
				if dropped = len(kept) < len(products); dropped {
					err = cache.CacheProducts(ctx, item.EmpresaId, kept)
				}
			}
		case models.SyncCollectionClients:
			if clients, ok := cache.GetCachedClients(ctx, item.EmpresaId); ok {
				kept := clients[:0]
				for _, c := range clients {
					if c.ID != item.DocumentID {
						kept = append(kept, c)
					}
				}
				if dropped = len(kept) < len(clients); dropped {
					err = cache.CacheClients(ctx, item.EmpresaId, kept)
				}
			}
		case models.SyncCollectionEvents:
			clienteId, _ := item.Data["clienteId"].(string)
			if clienteId == "" {
				return
			}
			if events, ok := cache.GetCachedClientEvents(ctx, item.EmpresaId, clienteId); ok {
				kept := events[:0]
				for _, e := range events {
					if e.ID != item.DocumentID {
						kept = append(kept, e)
					}
				}
				if dropped = len(kept) < len(events); dropped {
					err = cache.CacheClientEvents(ctx, item.EmpresaId, clienteId, kept)
				}
			}
		case models.SyncCollectionMembers:
			if members, ok := cache.GetCachedMiembros(ctx, item.EmpresaId); ok {
				kept := members[:0]
				for _, m := range members {
					if m.ID != item.DocumentID {
						kept = append(kept, m)
					}
				}
				if dropped = len(kept) < len(members); dropped {
					err = cache.CacheMiembros(ctx, item.EmpresaId, kept)
				}
			}
		}
		if err != nil {
			logger.WithFields(logrus.Fields{
				"itemId":     item.ID,
				"collection": item.Collection,
				"documentId": item.DocumentID,
			}).Warn("failed to revert optimistic entry for dead item: " + err.Error())
			return
		}
		if dropped {
			logger.WithFields(logrus.Fields{
				"itemId":     item.ID,
				"collection": item.Collection,
				"documentId": item.DocumentID,
				"finalError": item.FinalError,
			}).Info("reverted optimistic entry after dead-lettered create")
		}
	}
}
