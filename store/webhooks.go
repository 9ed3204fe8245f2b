package store

import (
	"time"

	"github.com/asdine/storm"

	"github.com/convictiond/oracled/types"
)

func (s *StormStore) CreateWebhookSubscription(sub types.WebhookSubscription) error {
	return wrapErr("CreateWebhookSubscription", KindTransient, s.webhookSubs().Save(&sub))
}

func (s *StormStore) GetWebhookSubscription(id string) (types.WebhookSubscription, error) {
	var sub types.WebhookSubscription
	err := s.webhookSubs().One("ID", id, &sub)
	if err != nil {
		return types.WebhookSubscription{}, notFound("GetWebhookSubscription", err)
	}
	return sub, nil
}

func (s *StormStore) ListWebhookSubscriptionsForOwner(ownerApiKeyID string) ([]types.WebhookSubscription, error) {
	var subs []types.WebhookSubscription
	if err := s.webhookSubs().Find("OwnerApiKeyID", ownerApiKeyID, &subs); err != nil && err != storm.ErrNotFound {
		return nil, wrapErr("ListWebhookSubscriptionsForOwner", KindTransient, err)
	}
	return subs, nil
}

// ListActiveSubscriptionsForEvent scans active subscriptions whose EventSet
// contains event. EventSet is a slice so it cannot be a storm index; this
// scans the (expected-small) subscription set in memory per dispatch, which
// is the same cost model as rivine's in-memory filtering in
// pkg/api.go's request dispatch helpers.
func (s *StormStore) ListActiveSubscriptionsForEvent(event types.WebhookEventType) ([]types.WebhookSubscription, error) {
	var all []types.WebhookSubscription
	if err := s.webhookSubs().All(&all); err != nil && err != storm.ErrNotFound {
		return nil, wrapErr("ListActiveSubscriptionsForEvent", KindTransient, err)
	}
	var out []types.WebhookSubscription
	for _, sub := range all {
		if !sub.IsActive {
			continue
		}
		for _, e := range sub.EventSet {
			if e == event {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

func (s *StormStore) DeleteWebhookSubscription(id string) error {
	err := s.webhookSubs().DeleteStruct(&types.WebhookSubscription{ID: id})
	if err != nil && err != storm.ErrNotFound {
		return wrapErr("DeleteWebhookSubscription", KindTransient, err)
	}
	return nil
}

// RecordSubscriptionFailure increments FailureCount and auto-disables at
// >= 5, per spec.md §3's WebhookSubscription invariant.
func (s *StormStore) RecordSubscriptionFailure(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sub types.WebhookSubscription
	if err := s.webhookSubs().One("ID", id, &sub); err != nil {
		return false, wrapErr("RecordSubscriptionFailure", KindTransient, err)
	}
	sub.FailureCount++
	disabled := false
	if sub.FailureCount >= 5 {
		sub.IsActive = false
		disabled = true
	}
	return disabled, wrapErr("RecordSubscriptionFailure", KindTransient, s.webhookSubs().Update(&sub))
}

func (s *StormStore) RecordSubscriptionSuccess(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sub types.WebhookSubscription
	if err := s.webhookSubs().One("ID", id, &sub); err != nil {
		return wrapErr("RecordSubscriptionSuccess", KindTransient, err)
	}
	sub.FailureCount = 0
	sub.LastTriggeredAt = &at
	return wrapErr("RecordSubscriptionSuccess", KindTransient, s.webhookSubs().Update(&sub))
}

func (s *StormStore) CreateWebhookDelivery(d types.WebhookDelivery) error {
	return wrapErr("CreateWebhookDelivery", KindTransient, s.deliveries().Save(&d))
}

// ClaimPendingDeliveries returns up to limit pending deliveries whose
// NextRetryAt has passed (or was never set), per spec.md §4.7. It does not
// itself mark them as claimed: the dispatcher completes or reschedules each
// one it processes, and a delivery with Status==pending and a future
// NextRetryAt is simply excluded from the next claim.
func (s *StormStore) ClaimPendingDeliveries(limit int, now time.Time) ([]types.WebhookDelivery, error) {
	var all []types.WebhookDelivery
	if err := s.deliveries().Find("Status", types.DeliveryPending, &all); err != nil && err != storm.ErrNotFound {
		return nil, wrapErr("ClaimPendingDeliveries", KindTransient, err)
	}
	var due []types.WebhookDelivery
	for _, d := range all {
		if d.NextRetryAt == nil || !d.NextRetryAt.After(now) {
			due = append(due, d)
		}
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (s *StormStore) CompleteDelivery(id string, status types.DeliveryStatus, responseCode int, responseBody string, now time.Time) error {
	var d types.WebhookDelivery
	if err := s.deliveries().One("ID", id, &d); err != nil {
		return wrapErr("CompleteDelivery", KindTransient, err)
	}
	d.Status = status
	d.ResponseCode = responseCode
	d.ResponseBody = responseBody
	d.CompletedAt = &now
	d.NextRetryAt = nil
	return wrapErr("CompleteDelivery", KindTransient, s.deliveries().Update(&d))
}

func (s *StormStore) RescheduleDelivery(id string, nextRetryAt time.Time, lastErr string) error {
	var d types.WebhookDelivery
	if err := s.deliveries().One("ID", id, &d); err != nil {
		return wrapErr("RescheduleDelivery", KindTransient, err)
	}
	d.Attempts++
	d.NextRetryAt = &nextRetryAt
	d.ResponseBody = lastErr
	return wrapErr("RescheduleDelivery", KindTransient, s.deliveries().Update(&d))
}

func (s *StormStore) ListDeliveries(subscriptionID string, limit int) ([]types.WebhookDelivery, error) {
	var all []types.WebhookDelivery
	if err := s.deliveries().Find("SubscriptionID", subscriptionID, &all); err != nil && err != storm.ErrNotFound {
		return nil, wrapErr("ListDeliveries", KindTransient, err)
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
