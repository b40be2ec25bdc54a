// Package kvstore is the persisted key-value collaborator behind the
// offline queue and caches. Keys in use:
//
//	offline_products_<empresa>
//	offline_clients_<empresa>
//	offline_events_<empresa>_<clienteId>
//	offline_members_<empresa>
//	offline_empresa_<empresa>
//	offline_sync_queue
//	offline_failed_items
//	offline_sync_stats
//	offline_sync_runs
//	last_sync_<empresa>
//	connection_status
package kvstore

import "context"

// KeyValueStore persists serialized JSON blobs. GetItem's second return is
// false when the key does not exist; implementations never treat a missing
// key as an error.
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key string, value string) error
	RemoveItem(ctx context.Context, key string) error
	GetAllKeys(ctx context.Context) ([]string, error)
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
}
