package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/kvstore"
	"github.com/tiendafacil/ledger_backend/models"
)

type stubHandler struct {
	mu      sync.Mutex
	applied []string
	failAll error
	failFor map[string]error
}

func (h *stubHandler) Apply(_ context.Context, item models.SyncQueueItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failAll != nil {
		return h.failAll
	}
	if err, ok := h.failFor[item.ID]; ok {
		return err
	}
	h.applied = append(h.applied, item.ID)
	return nil
}

func (h *stubHandler) appliedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.applied...)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestManager(t *testing.T, opts Options) (*Manager, *stubHandler, *kvstore.MemoryStore) {
	t.Helper()
	t.Setenv("SYNC_DIRECT_DRAIN", "false")
	kv := kvstore.NewMemoryStore()
	handler := &stubHandler{failFor: map[string]error{}}
	handlers := map[models.SyncCollection]Handler{}
	for _, c := range models.SyncCollections() {
		handlers[c] = handler
	}
	return NewManager(kv, testLogger(), handlers, opts), handler, kv
}

func queueItem(collection models.SyncCollection, priority models.SyncPriority) models.SyncQueueItem {
	return models.SyncQueueItem{
		Type:       models.SyncItemTypeCreate,
		Collection: collection,
		EmpresaId:  "emp-1",
		Data:       map[string]any{"nombre": "x"},
		Priority:   priority,
	}
}

func TestAddToSyncQueue_StampsDefaultsAndPersists(t *testing.T) {
	m, _, kv := newTestManager(t, Options{})

	id, err := m.AddToSyncQueue(context.Background(), queueItem(models.SyncCollectionProducts, ""))
	if err != nil {
		t.Fatalf("AddToSyncQueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated item id")
	}
	items := m.GetQueueSnapshot()
	if len(items) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(items))
	}
	it := items[0]
	if it.Status != models.SyncStatusPending {
		t.Errorf("status = %q, want pending", it.Status)
	}
	if it.Priority != models.SyncPriorityNormal {
		t.Errorf("priority = %q, want normal", it.Priority)
	}
	if it.MaxRetries != DefaultMaxRetries {
		t.Errorf("maxRetries = %d, want %d", it.MaxRetries, DefaultMaxRetries)
	}
	if it.Timestamp == 0 {
		t.Error("timestamp not stamped")
	}
	raw, ok, _ := kv.GetItem(context.Background(), QueueKey)
	if !ok || len(models.DecodeQueue([]byte(raw))) != 1 {
		t.Error("queue not persisted to the key-value store")
	}
}

func TestProcessSyncQueue_FIFOWithinTier(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		item := queueItem(models.SyncCollectionEvents, models.SyncPriorityNormal)
		item.Timestamp = int64(1000 + i)
		id, err := m.AddToSyncQueue(ctx, item)
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	res, err := m.ProcessSyncQueue(ctx, "test")
	if err != nil {
		t.Fatalf("ProcessSyncQueue: %v", err)
	}
	if res.Processed != 5 || res.Failed != 0 || res.Remaining != 0 {
		t.Fatalf("result = %+v, want 5/0/0", res)
	}
	applied := handler.appliedIDs()
	for i, id := range ids {
		if applied[i] != id {
			t.Fatalf("dispatch order broken at %d: got %s, want %s", i, applied[i], id)
		}
	}
}

func TestProcessSyncQueue_HighPriorityPreempts(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	ctx := context.Background()

	low := queueItem(models.SyncCollectionProducts, models.SyncPriorityLow)
	low.Timestamp = 100
	lowID, _ := m.AddToSyncQueue(ctx, low)

	normal := queueItem(models.SyncCollectionClients, models.SyncPriorityNormal)
	normal.Timestamp = 200
	normalID, _ := m.AddToSyncQueue(ctx, normal)

	high := queueItem(models.SyncCollectionEvents, models.SyncPriorityHigh)
	high.Timestamp = 300
	highID, _ := m.AddToSyncQueue(ctx, high)

	if _, err := m.ProcessSyncQueue(ctx, "test"); err != nil {
		t.Fatalf("ProcessSyncQueue: %v", err)
	}
	applied := handler.appliedIDs()
	want := []string{highID, normalID, lowID}
	for i := range want {
		if applied[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, applied[i], want[i])
		}
	}
}

func TestProcessSyncQueue_RetryBudgetExhaustion(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	handler.failAll = errors.New("store unavailable")
	ctx := context.Background()

	id, _ := m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionProducts, ""))

	for cycle := 1; cycle <= DefaultMaxRetries; cycle++ {
		res, err := m.ProcessSyncQueue(ctx, "test")
		if err != nil {
			t.Fatalf("cycle %d: %v", cycle, err)
		}
		if res.Failed != 1 {
			t.Fatalf("cycle %d: failed = %d, want 1", cycle, res.Failed)
		}
		if cycle < DefaultMaxRetries {
			items := m.GetQueueSnapshot()
			if len(items) != 1 || items[0].RetryCount != cycle {
				t.Fatalf("cycle %d: retryCount = %d, want %d", cycle, items[0].RetryCount, cycle)
			}
		}
	}

	if n := m.GetPendingCount(); n != 0 {
		t.Fatalf("queue should be empty after exhaustion, has %d", n)
	}
	failed := m.GetFailedItems()
	if len(failed) != 1 {
		t.Fatalf("expected 1 dead-lettered item, got %d", len(failed))
	}
	if failed[0].ID != id || failed[0].RetryCount != DefaultMaxRetries {
		t.Errorf("dead item = %s retries %d, want %s retries %d",
			failed[0].ID, failed[0].RetryCount, id, DefaultMaxRetries)
	}
	if failed[0].FinalError == "" || failed[0].FailedAt == 0 {
		t.Error("dead item missing finalError or failedAt")
	}
}

func TestProcessSyncQueue_PermanentErrorDeadLettersImmediately(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	ctx := context.Background()

	item := queueItem(models.SyncCollectionClients, "")
	id, _ := m.AddToSyncQueue(ctx, item)
	handler.failFor[id] = Permanent(errors.New("document rejected"))

	res, err := m.ProcessSyncQueue(ctx, "test")
	if err != nil {
		t.Fatalf("ProcessSyncQueue: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
	failed := m.GetFailedItems()
	if len(failed) != 1 || failed[0].RetryCount != 1 {
		t.Fatalf("expected immediate dead-letter after 1 attempt, got %+v", failed)
	}
}

func TestProcessSyncQueue_ReentrancyGuard(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	ctx := context.Background()
	m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionProducts, ""))

	m.mu.Lock()
	m.syncInProgress = true
	m.mu.Unlock()

	res, err := m.ProcessSyncQueue(ctx, "test")
	if err != nil {
		t.Fatalf("ProcessSyncQueue: %v", err)
	}
	if res.Processed != 0 || res.Failed != 0 || res.Remaining != 1 {
		t.Fatalf("guarded result = %+v, want 0/0/1", res)
	}
}

func TestProcessSyncQueue_SkipsWhileOffline(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	ctx := context.Background()
	m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionProducts, ""))
	m.SetConnectionStatus(ctx, false)

	res, err := m.ProcessSyncQueue(ctx, "test")
	if err != nil {
		t.Fatalf("ProcessSyncQueue: %v", err)
	}
	if res.Remaining != 1 || len(handler.appliedIDs()) != 0 {
		t.Fatalf("offline drain dispatched work: %+v", res)
	}
}

func TestSetConnectionStatus_ReconnectDrains(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	ctx := context.Background()
	m.SetConnectionStatus(ctx, false)
	m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionEvents, ""))

	m.SetConnectionStatus(ctx, true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.GetPendingCount() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if m.GetPendingCount() != 0 {
		t.Fatal("queue did not drain after reconnect")
	}
	if len(handler.appliedIDs()) != 1 {
		t.Fatalf("handler applied %d items, want 1", len(handler.appliedIDs()))
	}
}

func TestProcessSyncQueue_BackoffDelaysRetry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m, handler, _ := newTestManager(t, Options{BaseBackoff: time.Minute, Now: clock})
	ctx := context.Background()

	id, _ := m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionProducts, ""))
	handler.failFor[id] = errors.New("transient")

	if _, err := m.ProcessSyncQueue(ctx, "test"); err != nil {
		t.Fatalf("first drain: %v", err)
	}
	items := m.GetQueueSnapshot()
	if len(items) != 1 || items[0].NextAttemptAt == 0 {
		t.Fatal("expected backoff window on failed item")
	}

	// Still inside the window: nothing is eligible.
	res, _ := m.ProcessSyncQueue(ctx, "test")
	if res.Processed != 0 || res.Failed != 0 {
		t.Fatalf("drain inside backoff window did work: %+v", res)
	}

	delete(handler.failFor, id)
	now = now.Add(2 * time.Minute)
	res, _ = m.ProcessSyncQueue(ctx, "test")
	if res.Processed != 1 {
		t.Fatalf("drain after window: %+v, want 1 processed", res)
	}
}

func TestRetryFailedItem_RequeuesWithFreshBudget(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	handler.failAll = errors.New("down")
	ctx := context.Background()

	id, _ := m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionMembers, ""))
	for i := 0; i < DefaultMaxRetries; i++ {
		m.ProcessSyncQueue(ctx, "test")
	}
	if len(m.GetFailedItems()) != 1 {
		t.Fatal("setup: item not dead-lettered")
	}

	handler.failAll = nil
	if err := m.RetryFailedItem(ctx, id); err != nil {
		t.Fatalf("RetryFailedItem: %v", err)
	}
	if len(m.GetFailedItems()) != 0 {
		t.Error("failed store should be empty after retry")
	}
	items := m.GetQueueSnapshot()
	if len(items) != 1 || items[0].RetryCount != 0 || items[0].Status != models.SyncStatusPending {
		t.Fatalf("requeued item = %+v, want retryCount 0 pending", items)
	}

	res, _ := m.ProcessSyncQueue(ctx, "test")
	if res.Processed != 1 {
		t.Fatalf("requeued item did not process: %+v", res)
	}
}

func TestRetryFailedItem_UnknownID(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	if err := m.RetryFailedItem(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown failed item")
	}
}

func TestClearFailedItems(t *testing.T) {
	m, handler, kv := newTestManager(t, Options{})
	handler.failAll = errors.New("down")
	ctx := context.Background()

	m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionProducts, ""))
	for i := 0; i < DefaultMaxRetries; i++ {
		m.ProcessSyncQueue(ctx, "test")
	}
	if err := m.ClearFailedItems(ctx); err != nil {
		t.Fatalf("ClearFailedItems: %v", err)
	}
	if len(m.GetFailedItems()) != 0 {
		t.Error("failed items not cleared")
	}
	raw, ok, _ := kv.GetItem(ctx, FailedItemsKey)
	if ok && len(models.DecodeFailedItems([]byte(raw))) != 0 {
		t.Error("cleared failed items still persisted")
	}
}

func TestNewManager_RestoresPersistedState(t *testing.T) {
	t.Setenv("SYNC_DIRECT_DRAIN", "false")
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()

	queue := []models.SyncQueueItem{
		{ID: "a", Type: models.SyncItemTypeCreate, Collection: models.SyncCollectionProducts,
			EmpresaId: "emp-1", Status: models.SyncStatusProcessing, MaxRetries: 3},
		{ID: "b", Type: models.SyncItemTypeDelete, Collection: models.SyncCollectionClients,
			EmpresaId: "emp-1", DocumentID: "c1", Status: models.SyncStatusPending, MaxRetries: 3},
	}
	kv.SetItem(ctx, QueueKey, string(models.EncodeQueue(queue)))
	kv.SetItem(ctx, ConnectionStatusKey, "offline")

	m := NewManager(kv, testLogger(), map[models.SyncCollection]Handler{}, Options{})
	if m.GetPendingCount() != 2 {
		t.Fatalf("restored %d items, want 2", m.GetPendingCount())
	}
	if m.IsOnline() {
		t.Error("connection status not restored")
	}
	for _, it := range m.GetQueueSnapshot() {
		if it.Status != models.SyncStatusPending {
			t.Errorf("item %s status = %q, want pending after restore", it.ID, it.Status)
		}
	}
}

func TestNewManager_CorruptStateFallsBackToEmpty(t *testing.T) {
	t.Setenv("SYNC_DIRECT_DRAIN", "false")
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	kv.SetItem(ctx, QueueKey, "{not json")
	kv.SetItem(ctx, FailedItemsKey, "also not json")

	m := NewManager(kv, testLogger(), map[models.SyncCollection]Handler{}, Options{})
	if m.GetPendingCount() != 0 || len(m.GetFailedItems()) != 0 {
		t.Fatal("corrupt blobs should decode to empty state")
	}
}

func TestProcessSyncQueue_StatsAndRuns(t *testing.T) {
	m, handler, _ := newTestManager(t, Options{})
	ctx := context.Background()

	okID, _ := m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionProducts, ""))
	badID, _ := m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionClients, ""))
	handler.failFor[badID] = Permanent(errors.New("rejected"))
	_ = okID

	if _, err := m.ProcessSyncQueue(ctx, "manual"); err != nil {
		t.Fatalf("ProcessSyncQueue: %v", err)
	}

	stats := m.GetSyncStats()
	if stats.TotalProcessed != 1 || stats.TotalFailed != 1 {
		t.Fatalf("stats = %+v, want 1 processed 1 failed", stats)
	}
	if stats.LastSyncAttempt == 0 || stats.LastSuccessfulSync == 0 {
		t.Error("stats timestamps not stamped")
	}

	runs := m.GetSyncRuns(ctx)
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	run := runs[0]
	if run.Processed != 1 || run.Failed != 1 || run.TriggeredBy != "manual" {
		t.Errorf("run = %+v", run)
	}
}

func TestProcessSyncQueue_RunHistoryBounded(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	ctx := context.Background()

	for i := 0; i < maxSyncRunHistory+10; i++ {
		item := queueItem(models.SyncCollectionEvents, "")
		item.Data = map[string]any{"n": fmt.Sprintf("%d", i)}
		m.AddToSyncQueue(ctx, item)
		m.ProcessSyncQueue(ctx, "test")
	}
	runs := m.GetSyncRuns(ctx)
	if len(runs) > maxSyncRunHistory {
		t.Fatalf("run history grew to %d, cap is %d", len(runs), maxSyncRunHistory)
	}
}

func TestOnDeadHookFires(t *testing.T) {
	var gotDead []models.FailedSyncItem
	var mu sync.Mutex
	opts := Options{OnDead: func(item models.FailedSyncItem) {
		mu.Lock()
		gotDead = append(gotDead, item)
		mu.Unlock()
	}}
	m, handler, _ := newTestManager(t, opts)
	ctx := context.Background()

	id, _ := m.AddToSyncQueue(ctx, queueItem(models.SyncCollectionEvents, ""))
	handler.failFor[id] = Permanent(errors.New("bad payload"))

	m.ProcessSyncQueue(ctx, "test")

	mu.Lock()
	defer mu.Unlock()
	if len(gotDead) != 1 || gotDead[0].ID != id {
		t.Fatalf("onDead got %+v, want item %s", gotDead, id)
	}
}
