// Package chainadapter is the thin, stateless translator between the
// upstream chain indexer's wire formats and the internal BalanceChange
// record (spec.md §4.2). It is grounded on rivine's pkg/api/http.go style:
// small free-standing functions building *http.Request values with a fixed
// User-Agent, rather than a stateful client object tree.
package chainadapter

import (
	"context"
	"time"

	"github.com/convictiond/oracled/types"
)

// Holder is one row of a full-scan holder listing.
type Holder struct {
	Owner   string
	Balance types.Amount
}

// TokenInfo fields are independently optional, per spec.md §4.2.
type TokenInfo struct {
	Supply    *types.Amount
	PriceUSD  *float64
	PriceNative *float64
	Liquidity *float64
	MarketCap *float64
}

// SignatureRef is one entry of a SignaturesSince page.
type SignatureRef struct {
	Signature string
	Slot      uint64
}

// CrossTokenPosition is one mint's entry in a CrossTokenHistory result.
type CrossTokenPosition struct {
	Mint           string
	FirstBuyAmount types.Amount
	TotalBought    types.Amount
	TotalSold      types.Amount
	Current        types.Amount
	TxCount        int
	LastTxTs       time.Time
}

// AddressClass is the result of ClassifyAddresses for one address.
type AddressClass struct {
	IsPool  bool
	Program string
}

// ChainAdapter is the interface every component depends on; ingest,
// wallet/token scorers and the gateway's gating fallback all take this
// rather than a concrete RPC client, per spec.md §9's "small number of
// interfaces" design note.
type ChainAdapter interface {
	FetchHolders(ctx context.Context, mint string) ([]Holder, error)
	FetchTokenInfo(ctx context.Context, mint string) (TokenInfo, error)
	SignaturesSince(ctx context.Context, mint string, limit int) ([]SignatureRef, error)
	FetchTransaction(ctx context.Context, signature string) (RawTransaction, error)
	Parse(raw RawTransaction, mint string) ([]types.BalanceChange, error)
	CrossTokenHistory(ctx context.Context, wallet string, maxPages int) (map[string]CrossTokenPosition, error)
	ClassifyAddresses(ctx context.Context, addrs []string) (map[string]AddressClass, error)
}

// RawTransaction is the adapter-internal representation of a fetched
// transaction, carrying just enough of the webhook/RPC payload for Parse to
// diff pre/post token balances.
type RawTransaction struct {
	Signature string
	Slot      uint64
	BlockTime time.Time
	Transfers []TokenTransfer
}

// TokenTransfer mirrors one entry of the inbound webhook's tokenTransfers
// array (spec.md §6's wire protocol).
type TokenTransfer struct {
	Mint            string
	FromUserAccount string
	ToUserAccount   string
	TokenAmount     types.Amount
}
