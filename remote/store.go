// Package remote is the narrow interface to the hosted document store. The
// sync queue and services depend only on these four operations per
// collection; the store's wire format is the vendor's business.
package remote

import (
	"context"
	"encoding/json"

	"github.com/tiendafacil/ledger_backend/models"
)

// Document is one schemaless document payload.
type Document map[string]any

// Store is the remote document store collaborator. Create returns the
// store-assigned document id. Subscribe registers a callback fired with the
// full current contents of a collection after every committed change; the
// returned func cancels the subscription.
type Store interface {
	Create(ctx context.Context, empresaId string, collection models.SyncCollection, data Document) (string, error)
	Update(ctx context.Context, empresaId string, collection models.SyncCollection, docId string, data Document) error
	Delete(ctx context.Context, empresaId string, collection models.SyncCollection, docId string) error
	Subscribe(empresaId string, collection models.SyncCollection, fn func([]Document)) func()
}

// ToDocument flattens a model into a Document through its JSON form.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument hydrates a model from a Document through its JSON form.
func FromDocument[T any](doc Document) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
