// Package store is the durable, process-local, single-writer/many-reader
// state layer described in spec.md §4.1. It is grounded on rivine's
// modules/explorergraphql/explorerdb package: a narrow Go interface in
// front of an asdine/storm (bbolt + msgpack codec) database, the same
// storage stack rivine itself uses for the explorer's secondary index.
package store

import (
	"time"

	"github.com/convictiond/oracled/types"
)

// HolderTransition reports a new/exit state change detected while applying
// a BalanceChange, per spec.md §4.3.
type HolderTransition int

const (
	TransitionNone HolderTransition = iota
	TransitionNewHolder
	TransitionExitHolder
)

// UpsertResult is returned by UpsertWallet.
type UpsertResult struct {
	Wallet          types.Wallet
	Transition      HolderTransition
	Applied         bool // false if the change's slot was not newer than LastSlot
	PreviousBalance types.Amount
}

// HoldersFilter parametrizes GetHoldersFiltered (spec.md §6
// /k-metric/holders).
type HoldersFilter struct {
	Mint          string
	KMin          *float64
	MinBalance    types.Amount
	ExcludePools  bool
	PoolAddresses map[string]bool
	Limit         int
	Offset        int
}

// Store is the full durable-state API. All mutation happens behind this
// interface; every other component reads/writes exclusively through it, per
// spec.md §3's ownership rule. Implementations must serialize writes to a
// given row and allow concurrent reads of any committed state.
type Store interface {
	// Wallets / transactions / ingest watermark.
	UpsertWallet(change types.BalanceChange) (UpsertResult, error)
	RecordTransaction(change types.BalanceChange) (inserted bool, err error)
	GetWallet(address string) (types.Wallet, error)
	LastProcessedSlot() (uint64, error)
	GetWallets(minBalance types.Amount) ([]types.Wallet, error)
	GetHoldersFiltered(f HoldersFilter) (holders []types.Wallet, total int, err error)
	// UpdateWalletKWallet persists a freshly computed K_wallet score, per
	// spec.md §4.5. It is gated the same way as UpsertWallet: a slot not
	// newer than the wallet's KWalletSlot watermark is ignored so an
	// in-flight worker cannot clobber a result computed from newer data.
	UpdateWalletKWallet(address string, kwallet float64, tokensAnalyzed int, slot uint64, at time.Time) error

	// Sync state.
	GetSyncState(key string) (string, bool, error)
	SetSyncState(key, value string) error

	// Snapshots.
	SaveSnapshot(s types.Snapshot) error
	ListSnapshots(since time.Time, limit int) ([]types.Snapshot, error)

	// Queues (shared schema, separate namespaces via kind).
	Enqueue(kind types.QueueKind, key string, priority int) error
	Dequeue(kind types.QueueKind, leaseDuration time.Duration) (*types.QueueEntry, error)
	CompleteQueueEntry(kind types.QueueKind, key string) error
	FailQueueEntry(kind types.QueueKind, key string, cause error) error
	CleanupQueue(kind types.QueueKind, maxAttempts int) (removed int, err error)

	// API keys.
	CreateApiKey(name string, tier types.Tier, perMinute, perDay int, expiresAt *time.Time) (plainKey string, rec types.ApiKey, err error)
	ValidateApiKey(plainKey string) (types.ApiKey, bool, error)
	ListApiKeys() ([]types.ApiKey, error)
	DeactivateApiKey(id string) error

	// Usage accounting.
	IncrementUsage(keyID string, at time.Time) error
	GetUsage(keyID string, date string) (int, error)

	// Webhook subscriptions + deliveries.
	CreateWebhookSubscription(sub types.WebhookSubscription) error
	GetWebhookSubscription(id string) (types.WebhookSubscription, error)
	ListWebhookSubscriptionsForOwner(ownerApiKeyID string) ([]types.WebhookSubscription, error)
	ListActiveSubscriptionsForEvent(event types.WebhookEventType) ([]types.WebhookSubscription, error)
	DeleteWebhookSubscription(id string) error
	RecordSubscriptionFailure(id string) (disabled bool, err error)
	RecordSubscriptionSuccess(id string, at time.Time) error

	CreateWebhookDelivery(d types.WebhookDelivery) error
	ClaimPendingDeliveries(limit int, now time.Time) ([]types.WebhookDelivery, error)
	CompleteDelivery(id string, status types.DeliveryStatus, responseCode int, responseBody string, now time.Time) error
	RescheduleDelivery(id string, nextRetryAt time.Time, lastErr string) error
	ListDeliveries(subscriptionID string, limit int) ([]types.WebhookDelivery, error)

	Close() error
}
