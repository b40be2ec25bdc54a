package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/kvstore"
	"github.com/tiendafacil/ledger_backend/models"
)

// CacheVersion bumps when the envelope layout changes; readers drop
// envelopes from a different version.
const CacheVersion = 1

// DefaultMaxCacheAge is the staleness cutoff when the caller does not pass
// one.
const DefaultMaxCacheAge = 5 * time.Minute

type cacheEnvelope[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
	Version   int   `json:"version"`
}

// Cache persists per-tenant snapshots of remote collections so reads keep
// working offline. A cache read failure is a miss, never an error: the app
// degrades to empty data rather than refusing to start.
type Cache struct {
	kv     kvstore.KeyValueStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewCache(kv kvstore.KeyValueStore, logger *logrus.Logger) *Cache {
	return &Cache{kv: kv, logger: logger, now: time.Now}
}

func ProductsKey(empresaId string) string {
	return "offline_products_" + empresaId
}

func ClientsKey(empresaId string) string {
	return "offline_clients_" + empresaId
}

func ClientEventsKey(empresaId, clienteId string) string {
	return fmt.Sprintf("offline_events_%s_%s", empresaId, clienteId)
}

func MembersKey(empresaId string) string {
	return "offline_members_" + empresaId
}

func EmpresaKey(empresaId string) string {
	return "offline_empresa_" + empresaId
}

func LastSyncKey(empresaId string) string {
	return "last_sync_" + empresaId
}

func putCache[T any](ctx context.Context, c *Cache, key string, data T) error {
	env := cacheEnvelope[T]{
		Data:      data,
		Timestamp: c.now().UnixMilli(),
		Version:   CacheVersion,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.kv.SetItem(ctx, key, string(raw))
}

func getCache[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var env cacheEnvelope[T]
	raw, ok, err := c.kv.GetItem(ctx, key)
	if err != nil {
		if c.logger != nil {
			c.logger.WithField("key", key).WithError(err).Warn("cache read failed, treating as miss")
		}
		return env.Data, false
	}
	if !ok {
		return env.Data, false
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		if c.logger != nil {
			c.logger.WithField("key", key).WithError(err).Warn("cache entry undecodable, treating as miss")
		}
		return env.Data, false
	}
	if env.Version != CacheVersion {
		return env.Data, false
	}
	return env.Data, true
}

func (c *Cache) CacheProducts(ctx context.Context, empresaId string, products []models.Producto) error {
	return putCache(ctx, c, ProductsKey(empresaId), products)
}

func (c *Cache) GetCachedProducts(ctx context.Context, empresaId string) ([]models.Producto, bool) {
	return getCache[[]models.Producto](ctx, c, ProductsKey(empresaId))
}

func (c *Cache) CacheClients(ctx context.Context, empresaId string, clients []models.Cliente) error {
	return putCache(ctx, c, ClientsKey(empresaId), clients)
}

func (c *Cache) GetCachedClients(ctx context.Context, empresaId string) ([]models.Cliente, bool) {
	return getCache[[]models.Cliente](ctx, c, ClientsKey(empresaId))
}

func (c *Cache) CacheClientEvents(ctx context.Context, empresaId, clienteId string, events []models.TransactionEvent) error {
	return putCache(ctx, c, ClientEventsKey(empresaId, clienteId), events)
}

func (c *Cache) GetCachedClientEvents(ctx context.Context, empresaId, clienteId string) ([]models.TransactionEvent, bool) {
	return getCache[[]models.TransactionEvent](ctx, c, ClientEventsKey(empresaId, clienteId))
}

func (c *Cache) CacheMiembros(ctx context.Context, empresaId string, miembros []models.Miembro) error {
	return putCache(ctx, c, MembersKey(empresaId), miembros)
}

func (c *Cache) GetCachedMiembros(ctx context.Context, empresaId string) ([]models.Miembro, bool) {
	return getCache[[]models.Miembro](ctx, c, MembersKey(empresaId))
}

func (c *Cache) CacheEmpresa(ctx context.Context, empresaId string, empresa map[string]any) error {
	return putCache(ctx, c, EmpresaKey(empresaId), empresa)
}

func (c *Cache) GetCachedEmpresa(ctx context.Context, empresaId string) (map[string]any, bool) {
	return getCache[map[string]any](ctx, c, EmpresaKey(empresaId))
}

// MarkSynced records the completion time of a successful refresh for the
// tenant.
func (c *Cache) MarkSynced(ctx context.Context, empresaId string) error {
	millis := c.now().UnixMilli()
	return c.kv.SetItem(ctx, LastSyncKey(empresaId), fmt.Sprintf("%d", millis))
}

// IsDataStale reports whether the envelope under key is older than maxAge.
// Missing or unreadable entries are stale. maxAge <= 0 means
// DefaultMaxCacheAge.
func (c *Cache) IsDataStale(ctx context.Context, key string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxCacheAge
	}
	raw, ok, err := c.kv.GetItem(ctx, key)
	if err != nil || !ok {
		return true
	}
	var env cacheEnvelope[json.RawMessage]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return true
	}
	written := time.UnixMilli(env.Timestamp)
	return c.now().Sub(written) > maxAge
}
