package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/asdine/storm"
	smsp "github.com/asdine/storm/codec/msgpack"
	bolt "go.etcd.io/bbolt"

	"github.com/convictiond/oracled/types"
)

const (
	nodeWallets             = "Wallets"
	nodeTransactions        = "Transactions"
	nodeSyncState           = "SyncState"
	nodeSnapshots           = "Snapshots"
	nodeWalletQueue         = "WalletQueue"
	nodeTokenQueue          = "TokenQueue"
	nodeApiKeys             = "ApiKeys"
	nodeUsageDaily          = "UsageDaily"
	nodeWebhookSubs         = "WebhookSubscriptions"
	nodeWebhookDeliveries   = "WebhookDeliveries"
)

// StormStore is the asdine/storm-backed Store implementation, grounded on
// modules/explorergraphql/explorerdb/stormdb.go: one *storm.DB opened with
// the msgpack codec, sub-nodes per entity, and raw bbolt transactions for
// the operations (lease acquisition, slot-gated upserts) that need atomicity
// storm's single-call API does not give for free.
type StormStore struct {
	mu sync.Mutex // serializes writers; storm/bbolt already serializes at the
	// bucket level, this additionally protects the check-then-act sequences
	// (UpsertWallet's slot gate, Dequeue's lease) spec.md §4.1 requires.
	db *storm.DB
}

// Open opens (creating if absent) the storm/bbolt database at
// <dataDir>/oracle.db.
func Open(dataDir string) (*StormStore, error) {
	path := filepath.Join(dataDir, "oracle.db")
	db, err := storm.Open(path, storm.Codec(smsp.Codec), storm.BoltOptions(0600, &bolt.Options{Timeout: 3 * time.Second}))
	if err != nil {
		return nil, wrapErr("Open", KindFatal, err)
	}
	return &StormStore{db: db}, nil
}

func (s *StormStore) Close() error {
	return wrapErr("Close", KindFatal, s.db.Close())
}

func (s *StormStore) wallets() storm.Node      { return s.db.From(nodeWallets) }
func (s *StormStore) transactions() storm.Node { return s.db.From(nodeTransactions) }
func (s *StormStore) syncState() storm.Node    { return s.db.From(nodeSyncState) }
func (s *StormStore) snapshots() storm.Node    { return s.db.From(nodeSnapshots) }
func (s *StormStore) apiKeys() storm.Node      { return s.db.From(nodeApiKeys) }
func (s *StormStore) usage() storm.Node        { return s.db.From(nodeUsageDaily) }
func (s *StormStore) webhookSubs() storm.Node  { return s.db.From(nodeWebhookSubs) }
func (s *StormStore) deliveries() storm.Node   { return s.db.From(nodeWebhookDeliveries) }

func (s *StormStore) queueNode(kind types.QueueKind) storm.Node {
	if kind == types.QueueToken {
		return s.db.From(nodeTokenQueue)
	}
	return s.db.From(nodeWalletQueue)
}

var _ Store = (*StormStore)(nil)

func notFound(op string, err error) error {
	if err == storm.ErrNotFound {
		return wrapErr(op, KindFatal, ErrNotFound)
	}
	return wrapErr(op, KindTransient, err)
}

func fmtUsageID(keyID, date string) string {
	return fmt.Sprintf("%s|%s", keyID, date)
}
