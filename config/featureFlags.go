package config

import (
	"os"
	"strings"
)

// DirectDrainEnabled controls the background drain processor that replays
// the offline queue on an interval without waiting for a reconnect event.
//
// Set via env:
// - SYNC_DIRECT_DRAIN=false
//
// Default: enabled. Draining is idempotent per item, so running it as a
// safety-net alongside reconnect-triggered drains is safe.
func DirectDrainEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_DIRECT_DRAIN")))
	if v == "false" || v == "0" || v == "no" {
		return false
	}
	return true
}

// ClassifyPermanentErrors short-circuits the retry budget for errors that
// cannot succeed on retry (missing document id, permission denied).
//
// Set via env:
// - SYNC_CLASSIFY_PERMANENT=false  (retry everything up to the budget)
func ClassifyPermanentErrors() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_CLASSIFY_PERMANENT")))
	if v == "false" || v == "0" || v == "no" {
		return false
	}
	return true
}
