package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/config"
	"github.com/tiendafacil/ledger_backend/offline"
)

// QueueDrainProcessor drains the sync queue on an interval, independent of
// enqueue-time triggers. It is the safety net for items that were skipped
// while offline, stuck behind a backoff window, or left behind by a crash.
type QueueDrainProcessor struct {
	Manager  *offline.Manager
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewQueueDrainProcessor(manager *offline.Manager, logger *logrus.Logger) *QueueDrainProcessor {
	return &QueueDrainProcessor{
		Manager:  manager,
		Logger:   logger,
		Interval: 15 * time.Second,
	}
}

func shouldRunBackgroundDrain() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_BACKGROUND_DRAIN")))
	if val == "false" || val == "0" || val == "no" {
		return false
	}
	// Default: run. Enqueue-time drains cover the happy path, but only the
	// interval loop picks up items whose backoff window has elapsed.
	return true
}

func (p *QueueDrainProcessor) Run(ctx context.Context) {
	if p == nil || p.Manager == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *QueueDrainProcessor) processOnce(ctx context.Context) {
	if !p.Manager.IsOnline() || p.Manager.GetPendingCount() == 0 {
		return
	}
	result, err := p.Manager.ProcessSyncQueue(ctx, "background")
	if err != nil {
		config.LogError(p.Logger, "main", "QueueDrainProcessor", "background drain", nil, err)
		return
	}
	if result.Processed > 0 || result.Failed > 0 {
		p.Logger.WithFields(logrus.Fields{
			"processed": result.Processed,
			"failed":    result.Failed,
			"remaining": result.Remaining,
		}).Debug("background drain cycle")
	}
}
