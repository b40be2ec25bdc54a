// Package services is the application facade: it validates input, routes
// writes to the remote store when online or to the offline queue when not,
// and keeps the local snapshots fresh through store subscriptions.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/config"
	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/offline"
	"github.com/tiendafacil/ledger_backend/remote"
)

// Deps are the collaborators every service shares. Services are plain
// structs built in main; nothing here reaches for globals.
type Deps struct {
	Store  remote.Store
	Queue  *offline.Manager
	Cache  *offline.Cache
	Logger *logrus.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// TempID is the provisional id given to documents created offline. The real
// id is assigned by the store when the queued create replays; cached copies
// under a temp id are reconciled by the next subscription snapshot.
func TempID(now time.Time) string {
	return fmt.Sprintf("temp_%d", now.UnixMilli())
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, "temp_")
}

// ValidationError carries the field-level messages for a rejected write.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

func validationErr(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

func logWriteMode(logger *logrus.Logger, entity, op, id string, online bool) {
	logger.WithFields(logrus.Fields{
		"entity": entity,
		"op":     op,
		"id":     id,
		"online": online,
	}).Debug("write routed")
}

// write routes one mutation. Online it goes straight to the store; offline,
// or when the direct write fails, it lands in the sync queue so the change
// is never lost. Returns the document id the caller should use: the
// store-assigned id for direct creates, a temp id for queued ones.
func (d Deps) write(ctx context.Context, empresaId string, collection models.SyncCollection,
	op models.SyncItemType, docId string, doc remote.Document, priority models.SyncPriority) (string, error) {

	if d.Queue.IsOnline() {
		var err error
		switch op {
		case models.SyncItemTypeCreate:
			var id string
			id, err = d.Store.Create(ctx, empresaId, collection, doc)
			if err == nil {
				return id, nil
			}
		case models.SyncItemTypeUpdate:
			err = d.Store.Update(ctx, empresaId, collection, docId, doc)
		case models.SyncItemTypeDelete:
			err = d.Store.Delete(ctx, empresaId, collection, docId)
		}
		if err == nil {
			return docId, nil
		}
		config.LogError(d.Logger, "services", "write",
			fmt.Sprintf("direct %s on %s, queueing instead", op, collection), docId, err)
	}

	// Queued creates carry their temp id in DocumentID so the dead-letter
	// hook can find the optimistic cache entry; the replay handler ignores
	// it and lets the store assign the real id.
	if op == models.SyncItemTypeCreate && docId == "" {
		docId = TempID(d.now())
	}
	item := models.SyncQueueItem{
		Type:       op,
		Collection: collection,
		EmpresaId:  empresaId,
		DocumentID: docId,
		Data:       doc,
		Priority:   priority,
	}
	if _, err := d.Queue.AddToSyncQueue(ctx, item); err != nil {
		return "", err
	}
	return docId, nil
}
