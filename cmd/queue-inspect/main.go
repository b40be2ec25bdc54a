// queue-inspect dumps the persisted sync queue state: live items, the
// dead-letter store, lifetime stats and recent drain runs. Read-only; safe
// to run against production while the service is up.
//
// Usage (from backend directory):
//
//	REDIS_ADDRESS=... go run ./cmd/queue-inspect
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tiendafacil/ledger_backend/config"
	"github.com/tiendafacil/ledger_backend/kvstore"
	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/offline"
	"github.com/tiendafacil/ledger_backend/utils"
)

func main() {
	ctx := context.Background()
	config.ConnectRedisWithRetry()
	rdb := config.GetRedisDB()
	if rdb == nil {
		fmt.Fprintln(os.Stderr, "redis not initialized (config.GetRedisDB returned nil). Set REDIS_ADDRESS.")
		os.Exit(1)
	}
	kv := kvstore.NewRedisStore(rdb)

	raw, _, err := kv.GetItem(ctx, offline.QueueKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read queue: %v\n", err)
		os.Exit(1)
	}
	queue := models.DecodeQueue([]byte(raw))
	fmt.Printf("Live queue: %d item(s)\n", len(queue))
	for _, it := range queue {
		fmt.Printf("  %s  %-6s %-8s prio=%-6s retries=%d/%d status=%s",
			it.ID, it.Type, it.Collection, it.Priority, it.RetryCount, it.MaxRetries, it.Status)
		if it.NextAttemptAt > 0 {
			fmt.Printf(" nextAttempt=%s", time.UnixMilli(it.NextAttemptAt).Format(time.RFC3339))
		}
		if it.LastError != "" {
			fmt.Printf(" lastError=%q", it.LastError)
		}
		fmt.Println()
	}

	raw, _, err = kv.GetItem(ctx, offline.FailedItemsKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read dead-letter store: %v\n", err)
		os.Exit(1)
	}
	failed := models.DecodeFailedItems([]byte(raw))
	fmt.Printf("\nDead-letter store: %d item(s)\n", len(failed))
	for _, it := range failed {
		fmt.Printf("  %s  %-6s %-8s failedAt=%s error=%q\n",
			it.ID, it.Type, it.Collection,
			time.UnixMilli(it.FailedAt).Format(time.RFC3339), it.FinalError)
	}

	raw, _, _ = kv.GetItem(ctx, offline.StatsKey)
	stats := models.DecodeStats([]byte(raw))
	fmt.Printf("\nStats: processed=%d failed=%d avgMs=%.1f\n",
		stats.TotalProcessed, stats.TotalFailed, stats.AverageProcessingTimeMs)
	if stats.LastSyncAttempt > 0 {
		fmt.Printf("  lastAttempt=%s\n", time.UnixMilli(stats.LastSyncAttempt).Format(time.RFC3339))
	}
	if stats.LastSuccessfulSync > 0 {
		fmt.Printf("  lastSuccess=%s\n", time.UnixMilli(stats.LastSuccessfulSync).Format(time.RFC3339))
	}

	raw, ok, _ := kv.GetItem(ctx, offline.SyncRunsKey)
	if ok {
		var runs []models.SyncRun
		if err := utils.UnmarshalFromJSON([]byte(raw), &runs); err == nil {
			fmt.Printf("\nRecent drain runs: %d\n", len(runs))
			for i, run := range runs {
				if i >= 10 {
					fmt.Printf("  ... %d more\n", len(runs)-10)
					break
				}
				fmt.Printf("  %s  by=%-10s processed=%d failed=%d remaining=%d took=%dms\n",
					time.UnixMilli(run.StartedAt).Format(time.RFC3339),
					run.TriggeredBy, run.Processed, run.Failed, run.Remaining, run.DurationMs)
			}
		}
	}
}
