package fanout

import (
	"github.com/convictiond/oracled/types"
)

// wsEventType is the WS wire-protocol vocabulary from spec.md §6
// (`connected, k, holder:new, holder:exit, tx, status`), which is
// colon-separated and deliberately distinct from the underscore-separated
// types.WebhookEventType vocabulary used on the outbound-webhook path.
// Reusing the webhook constants for WS frames would send a client coded
// against spec.md §6 an event name it never expects.
type wsEventType string

const (
	wsEventK          wsEventType = "k"
	wsEventHolderNew  wsEventType = "holder:new"
	wsEventHolderExit wsEventType = "holder:exit"
	wsEventTx         wsEventType = "tx"
	wsEventStatus     wsEventType = "status"
)

// Router implements ingest.EventSink by translating balance-change and
// K-change callbacks into the two outbound channels spec.md §6 names: a WS
// broadcast to live subscribers and a queued webhook delivery to registered
// URLs. It does not import ingest — Go interface satisfaction only needs
// matching method sets, and importing it here would cycle back through
// gateway's wiring of both packages.
type Router struct {
	hub        *Hub
	dispatcher *Dispatcher
}

func NewRouter(hub *Hub, dispatcher *Dispatcher) *Router {
	return &Router{hub: hub, dispatcher: dispatcher}
}

func (r *Router) HolderNew(change types.BalanceChange, newBalance types.Amount) {
	payload := map[string]interface{}{
		"mint":         change.Mint,
		"address":      change.Wallet,
		"balance":      newBalance.String(),
		"tx_signature": change.Signature,
	}
	r.hub.Broadcast(string(wsEventHolderNew), payload)
	_ = r.dispatcher.Dispatch(types.EventHolderNew, payload)
}

func (r *Router) HolderExit(change types.BalanceChange, previousBalance types.Amount) {
	payload := map[string]interface{}{
		"mint":             change.Mint,
		"address":          change.Wallet,
		"previous_balance": previousBalance.String(),
		"tx_signature":     change.Signature,
	}
	r.hub.Broadcast(string(wsEventHolderExit), payload)
	_ = r.dispatcher.Dispatch(types.EventHolderExit, payload)
}

// Tx fires for every applied change regardless of holder-state transition,
// per spec.md §4.3's requirement that every applied change emit a tx event
// on the WS channel (HolderNew/HolderExit only fire on the subset of
// changes that cross the holder threshold).
func (r *Router) Tx(change types.BalanceChange, newBalance types.Amount) {
	payload := map[string]interface{}{
		"mint":         change.Mint,
		"address":      change.Wallet,
		"balance":      newBalance.String(),
		"tx_signature": change.Signature,
		"slot":         change.Slot,
	}
	r.hub.Broadcast(string(wsEventTx), payload)
}

func (r *Router) KChange(mint string, oldK, newK, holders int) {
	direction := "up"
	if newK < oldK {
		direction = "down"
	}
	payload := map[string]interface{}{
		"mint":        mint,
		"previous_k":  oldK,
		"new_k":       newK,
		"delta":       newK - oldK,
		"holders":     holders,
		"direction":   direction,
	}
	r.hub.BroadcastToTier(string(wsEventK), payload, types.TierPublic)
	_ = r.dispatcher.Dispatch(types.EventKChange, payload)
}

// ThresholdAlert fires when K crosses a configured watch threshold, per
// spec.md §4.3's optional alerting extension. Unlike the other three events
// this isn't driven by ingest.EventSink, and no component in this
// repository calls it.
// threshold_alert has no entry in the WS server-event vocabulary (spec.md
// §6 lists only connected, k, holder:new, holder:exit, tx, status), so the
// WS side broadcasts it as a status frame rather than inventing a seventh
// event name no client expects; the webhook side keeps its own
// threshold_alert type.
func (r *Router) ThresholdAlert(mint string, threshold, currentK int, direction, message string) {
	payload := map[string]interface{}{
		"mint":       mint,
		"threshold":  threshold,
		"direction":  direction,
		"current_k":  currentK,
		"message":    message,
	}
	r.hub.Broadcast(string(wsEventStatus), payload)
	_ = r.dispatcher.Dispatch(types.EventThresholdAlert, payload)
}
