package offline

import (
	"context"
	"fmt"

	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/remote"
)

// Handler replays one queued mutation against its backing store. Returning
// an error wrapped with Permanent dead-letters the item without retries.
type Handler interface {
	Apply(ctx context.Context, item models.SyncQueueItem) error
}

// CollectionHandler is the standard Handler: it forwards queue items to the
// remote document store, one collection per handler instance.
type CollectionHandler struct {
	Collection models.SyncCollection
	Store      remote.Store
}

func NewCollectionHandler(collection models.SyncCollection, store remote.Store) *CollectionHandler {
	return &CollectionHandler{Collection: collection, Store: store}
}

func (h *CollectionHandler) Apply(ctx context.Context, item models.SyncQueueItem) error {
	switch item.Type {
	case models.SyncItemTypeCreate:
		_, err := h.Store.Create(ctx, item.EmpresaId, h.Collection, remote.Document(item.Data))
		return err
	case models.SyncItemTypeUpdate:
		if item.DocumentID == "" {
			return Permanent(fmt.Errorf("update on %s without document id", h.Collection))
		}
		return h.Store.Update(ctx, item.EmpresaId, h.Collection, item.DocumentID, remote.Document(item.Data))
	case models.SyncItemTypeDelete:
		if item.DocumentID == "" {
			return Permanent(fmt.Errorf("delete on %s without document id", h.Collection))
		}
		return h.Store.Delete(ctx, item.EmpresaId, h.Collection, item.DocumentID)
	default:
		return Permanent(fmt.Errorf("unknown sync item type %q", item.Type))
	}
}

// DefaultHandlers builds one CollectionHandler per known collection against
// the given store.
func DefaultHandlers(store remote.Store) map[models.SyncCollection]Handler {
	handlers := make(map[models.SyncCollection]Handler, len(models.SyncCollections()))
	for _, c := range models.SyncCollections() {
		handlers[c] = NewCollectionHandler(c, store)
	}
	return handlers
}
