package models

// Event types for TransactionEvent.Tipo.
// Keep these as strings (wire values) for compatibility with stored documents.
const (
	EventTypeVenta EventType = "venta"
	EventTypePago  EventType = "pago"
)

type EventType string

// Sync queue item operation types.
const (
	SyncItemTypeCreate SyncItemType = "create"
	SyncItemTypeUpdate SyncItemType = "update"
	SyncItemTypeDelete SyncItemType = "delete"
)

type SyncItemType string

// Collections a queue item can target.
const (
	SyncCollectionProducts SyncCollection = "products"
	SyncCollectionClients  SyncCollection = "clients"
	SyncCollectionEvents   SyncCollection = "events"
	SyncCollectionMembers  SyncCollection = "members"
)

type SyncCollection string

func SyncCollections() []SyncCollection {
	return []SyncCollection{
		SyncCollectionProducts,
		SyncCollectionClients,
		SyncCollectionEvents,
		SyncCollectionMembers,
	}
}

// Sync queue item statuses. Terminal states are "completed" (item removed
// from all stores) and dead-letter membership (item moved to the failed
// store after the retry budget is exhausted).
const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusFailed     SyncStatus = "failed"
	SyncStatusCompleted  SyncStatus = "completed"
)

type SyncStatus string

// Drain priority tiers. Higher tiers always preempt; FIFO within a tier.
const (
	SyncPriorityLow    SyncPriority = "low"
	SyncPriorityNormal SyncPriority = "normal"
	SyncPriorityHigh   SyncPriority = "high"
)

type SyncPriority string

func (p SyncPriority) Rank() int {
	switch p {
	case SyncPriorityHigh:
		return 2
	case SyncPriorityNormal:
		return 1
	case SyncPriorityLow:
		return 0
	default:
		return 1
	}
}

// Conflict resolution strategies.
const (
	ConflictServerWins ConflictStrategy = "server_wins"
	ConflictClientWins ConflictStrategy = "client_wins"
	ConflictMerge      ConflictStrategy = "merge"
	ConflictManual     ConflictStrategy = "manual"
)

type ConflictStrategy string
