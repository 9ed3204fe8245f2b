// Package types holds the entities that flow through the conviction oracle:
// the ephemeral BalanceChange record produced by the chain adapter, and the
// rows persisted by the store.
package types

import (
	"math/big"
	"time"
)

// BalanceChange is the ephemeral record the ingest pipeline applies to the
// store. Slot is the upstream strictly-monotone ordering token; Amount is
// signed (a receive is positive, a send negative) and arbitrary precision.
type BalanceChange struct {
	Mint      string
	Wallet    string
	Slot      uint64
	BlockTime time.Time
	Amount    SignedAmount
	Signature string
}

// SignedAmount is a signed counterpart of Amount, used only on the wire
// between the chain adapter and the ingest pipeline; it is never persisted
// directly (the store only ever records non-negative balances and
// signature-scoped deltas folded into Wallet.CurrentBalance).
type SignedAmount struct {
	Negative bool
	Magnitude Amount
}

func PositiveSignedAmount(a Amount) SignedAmount { return SignedAmount{Magnitude: a} }
func NegativeSignedAmount(a Amount) SignedAmount { return SignedAmount{Negative: true, Magnitude: a} }

func (s SignedAmount) IsPositive() bool { return !s.Negative && !s.Magnitude.IsZero() }

// Big returns the signed magnitude as a *big.Int (negative when Negative).
func (s SignedAmount) Big() *big.Int {
	b := s.Magnitude.Big()
	if s.Negative {
		b.Neg(b)
	}
	return b
}

// Wallet is the per-address cost-basis record described in spec.md §3.
type Wallet struct {
	Address               string     `storm:"id"`
	Mint                   string     `storm:"index"`
	FirstBuyTs             *time.Time
	FirstBuyAmount         Amount
	TotalReceived          Amount
	TotalSent              Amount
	CurrentBalance         Amount     `storm:"index"`
	PeakBalance            Amount     `storm:"index"`
	LastTxSignature        string
	LastSlot               uint64
	HasAppliedChange       bool // true once any BalanceChange has been applied
	KWallet                *float64   `storm:"index"`
	KWalletTokensAnalyzed  int
	KWalletUpdatedAt       *time.Time
	KWalletSlot            uint64
}

// Transaction is the persisted, idempotent-on-Signature record from
// spec.md §3.
type Transaction struct {
	Signature string    `storm:"id"`
	Slot      uint64     `storm:"index"`
	BlockTime time.Time  `storm:"index"`
	Wallet    string     `storm:"index"`
	Amount    SignedAmount
}

// Classification is the retention-bucket label from the K Calculator table.
type Classification string

const (
	ClassAccumulator Classification = "accumulator"
	ClassHolder      Classification = "holder"
	ClassReducer     Classification = "reducer"
	ClassExtractor   Classification = "extractor"
)

// Snapshot is an append-only row written by the K Calculator.
type Snapshot struct {
	ID                int `storm:"id,increment"`
	K                 int
	Holders           int
	MaintainedCount   int
	AccumulatorsCount int
	ReducersCount     int
	ExtractorsCount   int
	AvgHoldDays       float64
	CreatedAt         time.Time `storm:"index"`
}

// SyncState keys, per spec.md §3.
const (
	SyncKeyLastFullSync   = "last_full_sync"
	SyncKeyOneUSDThreshold = "one_usd_threshold"
	SyncKeyTokenPrice     = "token_price"
)

// SyncStateEntry is a small key->value row.
type SyncStateEntry struct {
	Key   string `storm:"id"`
	Value string
}

// QueueKind distinguishes the two background queues that otherwise share a
// schema and lease semantics.
type QueueKind string

const (
	QueueWallet QueueKind = "wallet"
	QueueToken  QueueKind = "token"
)

// QueueEntry models both KWalletQueue and TokenQueue from spec.md §3. Key
// alone is the identity; the entry carries no kind, so the two queues live
// in two storm nodes using the same Go type.
type QueueEntry struct {
	Key         string     `storm:"id"`
	Priority    int        `storm:"index"`
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	LockedUntil *time.Time `storm:"index"`
}

// ApiKey is the persisted API key record; PlainKey is never stored, only
// returned once at creation time by Store.CreateApiKey.
type ApiKey struct {
	ID             string `storm:"id"`
	KeyHash        string `storm:"unique"`
	Name           string
	Tier           Tier
	PerMinuteLimit int
	PerDayLimit    int
	IsActive       bool
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	LastUsedAt     *time.Time
}

// Tier is the rate-limit/gating tier ordinal from spec.md §4.8.
type Tier string

const (
	TierPublic   Tier = "public"
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierInternal Tier = "internal"
)

// Rank gives the tier's broadcastToTier ordinal: public < free < standard <
// premium < internal.
func (t Tier) Rank() int {
	switch t {
	case TierPublic:
		return 0
	case TierFree:
		return 1
	case TierStandard:
		return 2
	case TierPremium:
		return 3
	case TierInternal:
		return 4
	default:
		return -1
	}
}

// UsageDaily is the aggregated per-key, per-day request counter.
type UsageDaily struct {
	ID       string `storm:"id"` // KeyID + "|" + DateYYYYMMDD
	KeyID    string `storm:"index"`
	Date     string `storm:"index"` // YYYYMMDD
	Requests int
}

// WebhookEventType enumerates the outbound webhook event types from
// spec.md §6.
type WebhookEventType string

const (
	EventKChange       WebhookEventType = "k_change"
	EventHolderNew     WebhookEventType = "holder_new"
	EventHolderExit    WebhookEventType = "holder_exit"
	EventThresholdAlert WebhookEventType = "threshold_alert"
)

// WebhookSubscription is the persisted outbound-webhook registration.
type WebhookSubscription struct {
	ID              string `storm:"id"`
	OwnerApiKeyID   string `storm:"index"`
	URL             string
	EventSet        []WebhookEventType
	Secret          string
	IsActive        bool
	FailureCount    int
	LastTriggeredAt *time.Time
}

// DeliveryStatus is the lifecycle state of a WebhookDelivery row.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDelivery is one attempt record for one subscription/event pair.
type WebhookDelivery struct {
	ID             string `storm:"id"`
	SubscriptionID string `storm:"index"`
	EventType      WebhookEventType
	PayloadJSON    string
	Status         DeliveryStatus `storm:"index"`
	Attempts       int
	ResponseCode   int
	ResponseBody   string
	NextRetryAt    *time.Time `storm:"index"`
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
