package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/convictiond/oracled/types"
)

var allEventTypes = []types.WebhookEventType{
	types.EventKChange, types.EventHolderNew, types.EventHolderExit, types.EventThresholdAlert,
}

func (g *Gateway) handleWebhookEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": allEventTypes})
}

func (g *Gateway) ownerID(r *http.Request) (string, bool) {
	rec, ok := apiKeyFromContext(r)
	if !ok {
		return "", false
	}
	return rec.ID, true
}

// redactedSubscription drops Secret: it is returned in full exactly once,
// at creation time, per spec.md §9's "mix of plaintext and hashed secrets"
// note — never logged or re-served afterward.
func redactedSubscription(sub types.WebhookSubscription) map[string]interface{} {
	return map[string]interface{}{
		"id":              sub.ID,
		"url":             sub.URL,
		"events":          sub.EventSet,
		"isActive":        sub.IsActive,
		"failureCount":    sub.FailureCount,
		"lastTriggeredAt": sub.LastTriggeredAt,
	}
}

func (g *Gateway) handleListWebhooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	owner, ok := g.ownerID(r)
	if !ok {
		writeError(w, "api key required", http.StatusUnauthorized)
		return
	}
	subs, err := g.store.ListWebhookSubscriptionsForOwner(owner)
	if err != nil {
		writeError(w, "failed to list webhooks", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]interface{}, 0, len(subs))
	for _, s := range subs {
		out = append(out, redactedSubscription(s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": out})
}

type createWebhookRequest struct {
	URL    string                   `json:"url"`
	Events []types.WebhookEventType `json:"events"`
}

func generateWebhookSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

func (g *Gateway) handleCreateWebhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	owner, ok := g.ownerID(r)
	if !ok {
		writeError(w, "api key required", http.StatusUnauthorized)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req createWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if u, err := url.ParseRequestURI(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, "url must be a valid http(s) URL", http.StatusBadRequest)
		return
	}
	if len(req.Events) == 0 {
		writeError(w, "events must be non-empty", http.StatusBadRequest)
		return
	}
	secret, err := generateWebhookSecret()
	if err != nil {
		writeError(w, "failed to generate secret", http.StatusInternalServerError)
		return
	}
	sub := types.WebhookSubscription{
		ID:            uuid.NewString(),
		OwnerApiKeyID: owner,
		URL:           req.URL,
		EventSet:      req.Events,
		Secret:        secret,
		IsActive:      true,
	}
	if err := g.store.CreateWebhookSubscription(sub); err != nil {
		writeError(w, "failed to create webhook", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (g *Gateway) handleGetWebhook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sub, err := g.store.GetWebhookSubscription(ps.ByName("id"))
	if err != nil {
		writeError(w, "webhook not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, redactedSubscription(sub))
}

func (g *Gateway) handleDeleteWebhook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := g.store.DeleteWebhookSubscription(ps.ByName("id")); err != nil {
		writeError(w, "failed to delete webhook", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleWebhookDeliveries(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	deliveries, err := g.store.ListDeliveries(ps.ByName("id"), 100)
	if err != nil {
		writeError(w, "failed to list deliveries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": deliveries})
}
