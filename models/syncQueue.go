package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncQueueItem is one durably queued mutation awaiting replay against the
// remote store. Lifecycle:
//
//	pending -> processing -> completed (removed)
//	pending -> processing -> failed -> pending        (retry)
//	pending -> processing -> failed -> dead-letter    (budget exhausted)
type SyncQueueItem struct {
	ID         string         `json:"id"`
	Type       SyncItemType   `json:"type" validate:"required,oneof=create update delete"`
	Collection SyncCollection `json:"collection" validate:"required,oneof=products clients events members"`
	EmpresaId  string         `json:"empresaId" validate:"required"`
	DocumentID string         `json:"documentId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	RetryCount int            `json:"retryCount"`
	MaxRetries int            `json:"maxRetries"`
	Status     SyncStatus     `json:"status"`
	Priority   SyncPriority   `json:"priority"`
	LastError  string         `json:"lastError,omitempty"`

	// NextAttemptAt gates retries behind backoff. Zero means eligible on the
	// next drain cycle.
	NextAttemptAt int64 `json:"nextAttemptAt,omitempty"`
}

// NewSyncItemID generates the enqueue-time id: millisecond timestamp plus a
// random suffix, so ids sort roughly by enqueue order but never collide.
func NewSyncItemID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d_%s", now.UnixMilli(), suffix)
}

// FailedSyncItem is a dead-lettered queue item held for manual review.
// Retry moves it back into the live queue with a fresh retry budget.
type FailedSyncItem struct {
	SyncQueueItem
	FailedAt   int64  `json:"failedAt"`
	FinalError string `json:"finalError"`
}

// SyncStats aggregates drain outcomes across the life of the queue.
type SyncStats struct {
	TotalProcessed          int64   `json:"totalProcessed"`
	TotalFailed             int64   `json:"totalFailed"`
	LastSyncAttempt         int64   `json:"lastSyncAttempt"`
	LastSuccessfulSync      int64   `json:"lastSuccessfulSync"`
	AverageProcessingTimeMs float64 `json:"averageProcessingTime"`
}

// SyncRun records one drain cycle for the inspection API.
type SyncRun struct {
	ID          string `json:"id"`
	StartedAt   int64  `json:"startedAt"`
	FinishedAt  int64  `json:"finishedAt"`
	DurationMs  int64  `json:"durationMs"`
	Processed   int    `json:"processed"`
	Failed      int    `json:"failed"`
	Remaining   int    `json:"remaining"`
	TriggeredBy string `json:"triggeredBy"`
}

func DecodeQueue(raw []byte) []SyncQueueItem {
	if len(raw) == 0 {
		return nil
	}
	var items []SyncQueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func EncodeQueue(items []SyncQueueItem) []byte {
	b, _ := json.Marshal(items)
	return b
}

func DecodeFailedItems(raw []byte) []FailedSyncItem {
	if len(raw) == 0 {
		return nil
	}
	var items []FailedSyncItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func EncodeFailedItems(items []FailedSyncItem) []byte {
	b, _ := json.Marshal(items)
	return b
}

func DecodeStats(raw []byte) SyncStats {
	if len(raw) == 0 {
		return SyncStats{}
	}
	var stats SyncStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return SyncStats{}
	}
	return stats
}

func EncodeStats(stats SyncStats) []byte {
	b, _ := json.Marshal(stats)
	return b
}
