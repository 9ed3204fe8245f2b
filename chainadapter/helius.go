package chainadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/convictiond/oracled/types"
)

// HeliusAdapter is the default ChainAdapter, talking to the Helius
// Solana indexer/RPC surface named by HELIUS_API_KEY in spec.md §6. It
// holds no per-call state beyond an *http.Client and a token-bucket rate
// limiter, following the free-function, stateless-helper shape of
// rivine's pkg/api/http.go (HTTPGet/HTTPPost building one request each,
// never a stateful session object).
type HeliusAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

const defaultUserAgent = "Oracle-Agent"

// NewHeliusAdapter builds an adapter rate-limited to ratePerSecond
// outbound calls with burst burst, per spec.md §4.2's "every outbound call
// passes through a token-bucket sized from configuration".
func NewHeliusAdapter(baseURL, apiKey string, ratePerSecond float64, burst int) *HeliusAdapter {
	return &HeliusAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		userAgent:  defaultUserAgent,
	}
}

// doJSON performs one rate-limited HTTP call with capped exponential
// backoff on transient upstream errors (timeouts, 5xx, 429); 4xx errors
// propagate immediately, per spec.md §4.2.
func (a *HeliusAdapter) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chainadapter: rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(float64(time.Second)*math.Pow(2, float64(attempt)), float64(30*time.Second)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", a.userAgent)
		req.Header.Set("Content-Type", "application/json")
		if a.apiKey != "" {
			q := req.URL.Query()
			q.Set("api-key", a.apiKey)
			req.URL.RawQuery = q.Encode()
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue // transient network error: retry
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("chainadapter: upstream status %d", resp.StatusCode)
			continue // transient: retry with backoff
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("chainadapter: upstream status %d: %s", resp.StatusCode, string(data))
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(data, out)
	}
	return fmt.Errorf("chainadapter: exhausted retries: %w", lastErr)
}

func (a *HeliusAdapter) FetchHolders(ctx context.Context, mint string) ([]Holder, error) {
	var page struct {
		Holders []struct {
			Owner   string `json:"owner"`
			Balance string `json:"balance"`
		} `json:"holders"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/v0/token-holders?mint="+mint, nil, &page); err != nil {
		return nil, err
	}
	out := make([]Holder, 0, len(page.Holders))
	for _, h := range page.Holders {
		amt, err := types.ParseAmount(h.Balance)
		if err != nil {
			continue
		}
		out = append(out, Holder{Owner: h.Owner, Balance: amt})
	}
	return out, nil
}

func (a *HeliusAdapter) FetchTokenInfo(ctx context.Context, mint string) (TokenInfo, error) {
	var raw struct {
		Supply    *string  `json:"supply"`
		PriceUSD  *float64 `json:"priceUsd"`
		PriceNative *float64 `json:"priceNative"`
		Liquidity *float64 `json:"liquidity"`
		MarketCap *float64 `json:"mcap"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/v0/token-info?mint="+mint, nil, &raw); err != nil {
		return TokenInfo{}, err
	}
	info := TokenInfo{PriceUSD: raw.PriceUSD, PriceNative: raw.PriceNative, Liquidity: raw.Liquidity, MarketCap: raw.MarketCap}
	if raw.Supply != nil {
		if amt, err := types.ParseAmount(*raw.Supply); err == nil {
			info.Supply = &amt
		}
	}
	return info, nil
}

func (a *HeliusAdapter) SignaturesSince(ctx context.Context, mint string, limit int) ([]SignatureRef, error) {
	var page []struct {
		Signature string `json:"signature"`
		Slot      uint64 `json:"slot"`
	}
	path := "/v0/addresses/" + mint + "/transactions?limit=" + strconv.Itoa(limit)
	if err := a.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	out := make([]SignatureRef, 0, len(page))
	for _, p := range page {
		out = append(out, SignatureRef{Signature: p.Signature, Slot: p.Slot})
	}
	return out, nil
}

func (a *HeliusAdapter) FetchTransaction(ctx context.Context, signature string) (RawTransaction, error) {
	var raw heliusEnrichedTx
	if err := a.doJSON(ctx, http.MethodGet, "/v0/transactions/"+signature, nil, &raw); err != nil {
		return RawTransaction{}, err
	}
	return rawTransactionFromHelius(raw), nil
}

// heliusEnrichedTx mirrors the shape described in spec.md §6's inbound
// webhook payload (`type, slot, signature, timestamp, tokenTransfers`); the
// pull-path fetch and the push-path webhook share this shape so Parse is
// one function serving both ingestion paths.
type heliusEnrichedTx struct {
	Type          string `json:"type"`
	Slot          uint64 `json:"slot"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
	TokenTransfers []struct {
		Mint            string `json:"mint"`
		FromUserAccount string `json:"fromUserAccount"`
		ToUserAccount   string `json:"toUserAccount"`
		TokenAmount     json.Number `json:"tokenAmount"`
	} `json:"tokenTransfers"`
}

func rawTransactionFromHelius(raw heliusEnrichedTx) RawTransaction {
	rt := RawTransaction{
		Signature: raw.Signature,
		Slot:      raw.Slot,
		BlockTime: time.Unix(raw.Timestamp, 0).UTC(),
	}
	for _, t := range raw.TokenTransfers {
		amt, err := types.ParseAmount(normalizeTokenAmount(t.TokenAmount.String()))
		if err != nil {
			continue
		}
		rt.Transfers = append(rt.Transfers, TokenTransfer{
			Mint:            t.Mint,
			FromUserAccount: t.FromUserAccount,
			ToUserAccount:   t.ToUserAccount,
			TokenAmount:     amt,
		})
	}
	return rt
}

// normalizeTokenAmount drops a fractional suffix if present: Helius reports
// tokenAmount in UI (decimal) units for some event types, but the oracle
// tracks raw integer amounts; callers providing already-raw integers are
// unaffected since there is no "." to trim.
func normalizeTokenAmount(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// ParseWebhookPayload decodes the inbound webhook body described in
// spec.md §6 ("Wire protocol: inbound webhook"): a JSON array of enriched
// transaction events, each carrying its own slot/signature/tokenTransfers.
// Events whose type is not TRANSFER are dropped. Callers are expected to
// have already verified the request's X-Helius-Signature header before
// calling this.
func ParseWebhookPayload(body []byte) ([]RawTransaction, error) {
	var events []heliusEnrichedTx
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("chainadapter: decode webhook payload: %w", err)
	}
	out := make([]RawTransaction, 0, len(events))
	for _, e := range events {
		if !strings.EqualFold(e.Type, "TRANSFER") {
			continue
		}
		out = append(out, rawTransactionFromHelius(e))
	}
	return out, nil
}

// Parse diffs a raw transaction's token transfers into one BalanceChange
// per affected owner for the given mint, skipping transfers for any other
// mint, per spec.md §4.2 and the inbound webhook wire protocol's "events
// with non-matching mint are skipped" rule.
func (a *HeliusAdapter) Parse(raw RawTransaction, mint string) ([]types.BalanceChange, error) {
	return ParseTransaction(raw, mint)
}

// ParseTransaction is the pure function used by both HeliusAdapter.Parse
// and any test double, kept free-standing so it can be unit tested without
// an HTTP client.
func ParseTransaction(raw RawTransaction, mint string) ([]types.BalanceChange, error) {
	var changes []types.BalanceChange
	for _, t := range raw.Transfers {
		if t.Mint != mint {
			continue
		}
		if t.ToUserAccount != "" {
			changes = append(changes, types.BalanceChange{
				Mint: mint, Wallet: t.ToUserAccount, Slot: raw.Slot, BlockTime: raw.BlockTime,
				Amount: types.PositiveSignedAmount(t.TokenAmount), Signature: raw.Signature,
			})
		}
		if t.FromUserAccount != "" {
			changes = append(changes, types.BalanceChange{
				Mint: mint, Wallet: t.FromUserAccount, Slot: raw.Slot, BlockTime: raw.BlockTime,
				Amount: types.NegativeSignedAmount(t.TokenAmount), Signature: raw.Signature,
			})
		}
	}
	return changes, nil
}
