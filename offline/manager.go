// Package offline holds the durable sync queue and the cached snapshots
// that keep the app usable without connectivity. Mutations made offline are
// queued here and replayed against the remote store when the connection
// returns.
package offline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/config"
	"github.com/tiendafacil/ledger_backend/kvstore"
	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/utils"
)

const (
	QueueKey            = "offline_sync_queue"
	FailedItemsKey      = "offline_failed_items"
	StatsKey            = "offline_sync_stats"
	SyncRunsKey         = "offline_sync_runs"
	ConnectionStatusKey = "connection_status"

	DefaultMaxRetries = 3

	drainLockKey = "ledger:sync_queue_drain"
	drainLockTTL = 2 * time.Minute

	maxSyncRunHistory = 50
)

// DrainResult summarizes one ProcessSyncQueue cycle.
type DrainResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Options configures a Manager. Zero values get sensible defaults in
// NewManager.
type Options struct {
	// MaxRetries is the retry budget stamped on items enqueued without one.
	MaxRetries int

	// BaseBackoff seeds the retry delay: base * 2^(attempt-1), capped at
	// five minutes. Zero (the default) makes every failed item eligible on
	// the very next drain cycle.
	BaseBackoff time.Duration

	// Locker, when set, guards drain cycles with a best-effort distributed
	// lock so concurrent instances do not double-apply items. Losing the
	// lock race skips the cycle; it never fails it.
	Locker *redislock.Client

	// OnDead runs after an item is dead-lettered, outside the manager's
	// mutex. Used to revert optimistic local state.
	OnDead func(item models.FailedSyncItem)

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns the offline sync queue: enqueueing, persistence, priority
// draining with retries, the dead-letter store, and lifetime stats. All
// state is mirrored to the key-value store after every change so a process
// restart resumes exactly where it left off.
type Manager struct {
	kv       kvstore.KeyValueStore
	logger   *logrus.Logger
	handlers map[models.SyncCollection]Handler
	opts     Options
	now      func() time.Time

	mu             sync.Mutex
	queue          []models.SyncQueueItem
	failed         []models.FailedSyncItem
	stats          models.SyncStats
	online         bool
	syncInProgress bool
}

// NewManager loads persisted queue state and returns a ready manager. A
// corrupt or unreadable blob falls back to empty state rather than failing
// startup; the store of record for already-applied mutations is the remote
// side, so dropping local state is recoverable.
func NewManager(kv kvstore.KeyValueStore, logger *logrus.Logger, handlers map[models.SyncCollection]Handler, opts Options) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		kv:       kv,
		logger:   logger,
		handlers: handlers,
		opts:     opts,
		now:      opts.Now,
		online:   true,
	}
	m.restore()
	return m
}

func (m *Manager) restore() {
	ctx := context.Background()
	if raw, ok, err := m.kv.GetItem(ctx, QueueKey); err == nil && ok {
		m.queue = models.DecodeQueue([]byte(raw))
	} else if err != nil {
		config.LogError(m.logger, "offline", "restore", "reading sync queue", nil, err)
	}
	if raw, ok, err := m.kv.GetItem(ctx, FailedItemsKey); err == nil && ok {
		m.failed = models.DecodeFailedItems([]byte(raw))
	} else if err != nil {
		config.LogError(m.logger, "offline", "restore", "reading failed items", nil, err)
	}
	if raw, ok, err := m.kv.GetItem(ctx, StatsKey); err == nil && ok {
		m.stats = models.DecodeStats([]byte(raw))
	} else if err != nil {
		config.LogError(m.logger, "offline", "restore", "reading sync stats", nil, err)
	}
	if raw, ok, err := m.kv.GetItem(ctx, ConnectionStatusKey); err == nil && ok {
		m.online = raw != "offline"
	}
	// Items left mid-flight by a crash go back to pending.
	for i := range m.queue {
		if m.queue[i].Status == models.SyncStatusProcessing {
			m.queue[i].Status = models.SyncStatusPending
		}
	}
}

func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetConnectionStatus flips the connectivity flag. Coming back online kicks
// off a drain in the background so queued work flows without waiting for
// the next explicit trigger.
func (m *Manager) SetConnectionStatus(ctx context.Context, online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	status := "online"
	if !online {
		status = "offline"
	}
	if err := m.kv.SetItem(ctx, ConnectionStatusKey, status); err != nil {
		config.LogError(m.logger, "offline", "SetConnectionStatus", "persisting connection status", status, err)
	}
	m.logger.WithField("online", online).Info("connection status changed")

	if online && !wasOnline {
		go func() {
			if _, err := m.ProcessSyncQueue(context.Background(), "reconnect"); err != nil {
				config.LogError(m.logger, "offline", "SetConnectionStatus", "draining after reconnect", nil, err)
			}
		}()
	}
}

// AddToSyncQueue stamps defaults onto the item, persists the queue, and
// returns the assigned item id. When online and direct drain is enabled,
// a drain starts in the background immediately.
func (m *Manager) AddToSyncQueue(ctx context.Context, item models.SyncQueueItem) (string, error) {
	now := m.now()
	if item.ID == "" {
		item.ID = models.NewSyncItemID(now)
	}
	if item.Timestamp == 0 {
		item.Timestamp = now.UnixMilli()
	}
	if item.Priority == "" {
		item.Priority = models.SyncPriorityNormal
	}
	if item.MaxRetries <= 0 {
		item.MaxRetries = m.opts.MaxRetries
	}
	item.Status = models.SyncStatusPending
	item.RetryCount = 0

	m.mu.Lock()
	m.queue = append(m.queue, item)
	online := m.online
	m.mu.Unlock()

	if err := m.persistQueue(ctx); err != nil {
		return "", err
	}
	m.logger.WithFields(logrus.Fields{
		"itemId":     item.ID,
		"type":       item.Type,
		"collection": item.Collection,
		"priority":   item.Priority,
	}).Debug("queued sync item")

	if online && config.DirectDrainEnabled() {
		go func() {
			if _, err := m.ProcessSyncQueue(context.Background(), "enqueue"); err != nil {
				config.LogError(m.logger, "offline", "AddToSyncQueue", "direct drain", item.ID, err)
			}
		}()
	}
	return item.ID, nil
}

// GetPendingCount returns the number of items still in the live queue.
func (m *Manager) GetPendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// GetQueueSnapshot returns a copy of the live queue for inspection.
func (m *Manager) GetQueueSnapshot() []models.SyncQueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SyncQueueItem(nil), m.queue...)
}

// GetFailedItems returns a copy of the dead-letter store.
func (m *Manager) GetFailedItems() []models.FailedSyncItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.FailedSyncItem(nil), m.failed...)
}

// GetSyncStats returns a copy of the lifetime drain stats.
func (m *Manager) GetSyncStats() models.SyncStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// GetSyncRuns returns the recorded drain history, newest first.
func (m *Manager) GetSyncRuns(ctx context.Context) []models.SyncRun {
	raw, ok, err := m.kv.GetItem(ctx, SyncRunsKey)
	if err != nil || !ok {
		return nil
	}
	var runs []models.SyncRun
	if err := utils.UnmarshalFromJSON([]byte(raw), &runs); err != nil {
		return nil
	}
	return runs
}

// RetryFailedItem moves a dead-lettered item back to the tail of the live
// queue with a fresh retry budget.
func (m *Manager) RetryFailedItem(ctx context.Context, itemId string) error {
	m.mu.Lock()
	idx := -1
	for i, f := range m.failed {
		if f.ID == itemId {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return errors.New("failed item not found: " + itemId)
	}
	item := m.failed[idx].SyncQueueItem
	item.RetryCount = 0
	item.Status = models.SyncStatusPending
	item.LastError = ""
	item.NextAttemptAt = 0
	m.failed = append(m.failed[:idx], m.failed[idx+1:]...)
	m.queue = append(m.queue, item)
	m.mu.Unlock()

	if err := m.persistQueue(ctx); err != nil {
		return err
	}
	if err := m.persistFailed(ctx); err != nil {
		return err
	}
	m.logger.WithField("itemId", itemId).Info("failed item requeued")
	return nil
}

// ClearFailedItems empties the dead-letter store.
func (m *Manager) ClearFailedItems(ctx context.Context) error {
	m.mu.Lock()
	m.failed = nil
	m.mu.Unlock()
	return m.persistFailed(ctx)
}

// ProcessSyncQueue drains eligible items once, sequentially, high priority
// first and FIFO within a priority tier. It never runs concurrently with
// itself: a second caller gets a zero result with the current remaining
// count. Offline managers skip the cycle the same way.
func (m *Manager) ProcessSyncQueue(ctx context.Context, triggeredBy string) (DrainResult, error) {
	m.mu.Lock()
	if m.syncInProgress || !m.online {
		remaining := len(m.queue)
		m.mu.Unlock()
		return DrainResult{Remaining: remaining}, nil
	}
	m.syncInProgress = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.syncInProgress = false
		m.mu.Unlock()
	}()

	if m.opts.Locker != nil {
		lock, err := m.opts.Locker.Obtain(ctx, drainLockKey, drainLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				m.logger.Debug("another instance is draining, skipping cycle")
				return DrainResult{Remaining: m.GetPendingCount()}, nil
			}
			// The lock is an optimization; a broken lock backend must not
			// stop the queue from draining.
			config.LogError(m.logger, "offline", "ProcessSyncQueue", "obtaining drain lock", nil, err)
		} else {
			defer func() {
				if err := lock.Release(context.Background()); err != nil {
					config.LogError(m.logger, "offline", "ProcessSyncQueue", "releasing drain lock", nil, err)
				}
			}()
		}
	}

	start := m.now()
	batch := m.takeEligible(start)
	var result DrainResult
	var totalElapsed time.Duration

	for _, item := range batch {
		itemStart := m.now()
		err := m.dispatch(ctx, item)
		totalElapsed += m.now().Sub(itemStart)
		if err == nil {
			m.completeItem(item.ID)
			result.Processed++
			continue
		}
		dead := m.failItem(item.ID, err)
		result.Failed++
		if dead != nil && m.opts.OnDead != nil {
			m.opts.OnDead(*dead)
		}
	}

	m.mu.Lock()
	result.Remaining = len(m.queue)
	m.updateStatsLocked(result, totalElapsed, start)
	m.mu.Unlock()

	if err := m.persistQueue(ctx); err != nil {
		return result, err
	}
	if err := m.persistFailed(ctx); err != nil {
		return result, err
	}
	if err := m.persistStats(ctx); err != nil {
		return result, err
	}
	m.recordRun(ctx, start, result, triggeredBy)

	m.logger.WithFields(logrus.Fields{
		"processed":   result.Processed,
		"failed":      result.Failed,
		"remaining":   result.Remaining,
		"triggeredBy": triggeredBy,
	}).Info("sync queue drained")
	return result, nil
}

// takeEligible marks every due item processing and returns them in dispatch
// order. Items waiting out a backoff window stay pending.
func (m *Manager) takeEligible(now time.Time) []models.SyncQueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMillis := now.UnixMilli()
	var batch []models.SyncQueueItem
	for i := range m.queue {
		it := &m.queue[i]
		if it.Status != models.SyncStatusPending && it.Status != models.SyncStatusFailed {
			continue
		}
		if it.NextAttemptAt > nowMillis {
			continue
		}
		it.Status = models.SyncStatusProcessing
		batch = append(batch, *it)
	}
	sort.SliceStable(batch, func(i, j int) bool {
		ri, rj := batch[i].Priority.Rank(), batch[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return batch[i].Timestamp < batch[j].Timestamp
	})
	return batch
}

func (m *Manager) dispatch(ctx context.Context, item models.SyncQueueItem) error {
	handler, ok := m.handlers[item.Collection]
	if !ok {
		return Permanent(errors.New("no handler for collection " + string(item.Collection)))
	}
	return handler.Apply(ctx, item)
}

func (m *Manager) completeItem(itemId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.queue {
		if it.ID == itemId {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// failItem records the failure on the queued item. When the retry budget is
// exhausted, or the error is permanent, the item moves to the dead-letter
// store and the moved copy is returned.
func (m *Manager) failItem(itemId string, cause error) *models.FailedSyncItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, it := range m.queue {
		if it.ID == itemId {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	it := &m.queue[idx]
	it.RetryCount++
	it.LastError = cause.Error()

	permanent := config.ClassifyPermanentErrors() && IsPermanent(cause)
	exhausted := it.RetryCount >= it.MaxRetries
	if permanent || exhausted {
		dead := models.FailedSyncItem{
			SyncQueueItem: *it,
			FailedAt:      m.now().UnixMilli(),
			FinalError:    cause.Error(),
		}
		m.queue = append(m.queue[:idx], m.queue[idx+1:]...)
		m.failed = append(m.failed, dead)
		m.logger.WithFields(logrus.Fields{
			"itemId":     dead.ID,
			"collection": dead.Collection,
			"retries":    dead.RetryCount,
			"permanent":  permanent,
		}).Warn("sync item dead-lettered")
		return &dead
	}

	it.Status = models.SyncStatusFailed
	if m.opts.BaseBackoff > 0 {
		delay := m.opts.BaseBackoff << (it.RetryCount - 1)
		if delay > 5*time.Minute {
			delay = 5 * time.Minute
		}
		it.NextAttemptAt = m.now().Add(delay).UnixMilli()
	}
	return nil
}

func (m *Manager) updateStatsLocked(result DrainResult, elapsed time.Duration, start time.Time) {
	attempted := result.Processed + result.Failed
	if attempted == 0 {
		return
	}
	prevTotal := m.stats.TotalProcessed + m.stats.TotalFailed
	m.stats.TotalProcessed += int64(result.Processed)
	m.stats.TotalFailed += int64(result.Failed)
	m.stats.LastSyncAttempt = start.UnixMilli()
	if result.Processed > 0 {
		m.stats.LastSuccessfulSync = m.now().UnixMilli()
	}
	// Running weighted average across all attempts ever made.
	batchAvg := float64(elapsed.Milliseconds()) / float64(attempted)
	newTotal := prevTotal + int64(attempted)
	m.stats.AverageProcessingTimeMs =
		(m.stats.AverageProcessingTimeMs*float64(prevTotal) + batchAvg*float64(attempted)) / float64(newTotal)
}

func (m *Manager) persistQueue(ctx context.Context) error {
	m.mu.Lock()
	raw := models.EncodeQueue(m.queue)
	m.mu.Unlock()
	return m.kv.SetItem(ctx, QueueKey, string(raw))
}

func (m *Manager) persistFailed(ctx context.Context) error {
	m.mu.Lock()
	raw := models.EncodeFailedItems(m.failed)
	m.mu.Unlock()
	return m.kv.SetItem(ctx, FailedItemsKey, string(raw))
}

func (m *Manager) persistStats(ctx context.Context) error {
	m.mu.Lock()
	raw := models.EncodeStats(m.stats)
	m.mu.Unlock()
	return m.kv.SetItem(ctx, StatsKey, string(raw))
}

func (m *Manager) recordRun(ctx context.Context, start time.Time, result DrainResult, triggeredBy string) {
	finished := m.now()
	run := models.SyncRun{
		ID:          models.NewSyncItemID(start),
		StartedAt:   start.UnixMilli(),
		FinishedAt:  finished.UnixMilli(),
		DurationMs:  finished.Sub(start).Milliseconds(),
		Processed:   result.Processed,
		Failed:      result.Failed,
		Remaining:   result.Remaining,
		TriggeredBy: triggeredBy,
	}
	runs := m.GetSyncRuns(ctx)
	runs = append([]models.SyncRun{run}, runs...)
	if len(runs) > maxSyncRunHistory {
		runs = runs[:maxSyncRunHistory]
	}
	raw, err := utils.MarshalToJSON(runs)
	if err != nil {
		config.LogError(m.logger, "offline", "recordRun", "encoding sync runs", nil, err)
		return
	}
	if err := m.kv.SetItem(ctx, SyncRunsKey, raw); err != nil {
		config.LogError(m.logger, "offline", "recordRun", "persisting sync runs", nil, err)
	}
}
