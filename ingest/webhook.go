package ingest

import (
	"fmt"

	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/types"
)

// HandlePushBatch applies one already-HMAC-verified webhook payload (the
// Gateway owns signature verification per spec.md §6's wire protocol; by
// the time this is called the raw body is trusted). Events of a
// non-transfer type are dropped by ParseWebhookPayload; events for a
// different mint fall out during Parse as empty change sets and are simply
// no-ops.
func (p *Pipeline) HandlePushBatch(body []byte, adapter chainadapter.ChainAdapter) error {
	raws, err := chainadapter.ParseWebhookPayload(body)
	if err != nil {
		return err
	}
	var changes []types.BalanceChange
	for _, raw := range raws {
		c, err := adapter.Parse(raw, p.cfg.Mint)
		if err != nil {
			return fmt.Errorf("ingest: parse webhook transaction %s: %w", raw.Signature, err)
		}
		changes = append(changes, c...)
	}
	return p.ApplyBatch(changes)
}
