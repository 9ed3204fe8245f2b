package fanout

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

// dispatcherStore fakes just the Dispatcher-facing slice of store.Store,
// backed by plain maps/slices instead of storm/bbolt.
type dispatcherStore struct {
	store.Store

	subsByEvent map[types.WebhookEventType][]types.WebhookSubscription
	subsByID    map[string]types.WebhookSubscription
	deliveries  map[string]types.WebhookDelivery
	failures    map[string]int
	disabled    map[string]bool
}

func newDispatcherStore() *dispatcherStore {
	return &dispatcherStore{
		subsByEvent: map[types.WebhookEventType][]types.WebhookSubscription{},
		subsByID:    map[string]types.WebhookSubscription{},
		deliveries:  map[string]types.WebhookDelivery{},
		failures:    map[string]int{},
		disabled:    map[string]bool{},
	}
}

func (s *dispatcherStore) ListActiveSubscriptionsForEvent(event types.WebhookEventType) ([]types.WebhookSubscription, error) {
	return s.subsByEvent[event], nil
}
func (s *dispatcherStore) CreateWebhookDelivery(d types.WebhookDelivery) error {
	s.deliveries[d.ID] = d
	return nil
}
func (s *dispatcherStore) GetWebhookSubscription(id string) (types.WebhookSubscription, error) {
	sub, ok := s.subsByID[id]
	if !ok {
		return types.WebhookSubscription{}, store.ErrNotFound
	}
	return sub, nil
}
func (s *dispatcherStore) ClaimPendingDeliveries(limit int, now time.Time) ([]types.WebhookDelivery, error) {
	var out []types.WebhookDelivery
	for _, d := range s.deliveries {
		if d.Status == types.DeliveryPending {
			out = append(out, d)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
func (s *dispatcherStore) CompleteDelivery(id string, status types.DeliveryStatus, code int, body string, now time.Time) error {
	d := s.deliveries[id]
	d.Status = status
	s.deliveries[id] = d
	return nil
}
func (s *dispatcherStore) RescheduleDelivery(id string, next time.Time, lastErr string) error {
	d := s.deliveries[id]
	d.Attempts++
	s.deliveries[id] = d
	return nil
}
func (s *dispatcherStore) RecordSubscriptionFailure(id string) (bool, error) {
	s.failures[id]++
	if s.failures[id] >= 5 {
		s.disabled[id] = true
		return true, nil
	}
	return false, nil
}
func (s *dispatcherStore) RecordSubscriptionSuccess(id string, at time.Time) error { return nil }

func sub(id, url string, events ...types.WebhookEventType) types.WebhookSubscription {
	return types.WebhookSubscription{ID: id, URL: url, Secret: "shh", EventSet: events, IsActive: true}
}

func TestDispatchCreatesOnePendingDeliveryPerSubscribedEvent(t *testing.T) {
	fs := newDispatcherStore()
	fs.subsByEvent[types.EventHolderNew] = []types.WebhookSubscription{
		sub("sub-1", "http://example.com/a", types.EventHolderNew),
		sub("sub-2", "http://example.com/b", types.EventKChange), // not subscribed to this event
	}
	d := NewDispatcher(fs, 10, time.Minute, logrus.NewEntry(logrus.New()))

	if err := d.Dispatch(types.EventHolderNew, map[string]interface{}{"x": 1}); err != nil {
		t.Fatal(err)
	}
	var pending int
	for _, del := range fs.deliveries {
		if del.Status == types.DeliveryPending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("expected exactly 1 pending delivery (sub-2 isn't subscribed to this event), got %d", pending)
	}
}

func TestDrainOnceMarksSuccessfulDeliveryComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := newDispatcherStore()
	fs.subsByID["sub-1"] = sub("sub-1", srv.URL, types.EventHolderNew)
	fs.deliveries["del-1"] = types.WebhookDelivery{ID: "del-1", SubscriptionID: "sub-1", Status: types.DeliveryPending, PayloadJSON: `{}`}

	d := NewDispatcher(fs, 10, time.Minute, logrus.NewEntry(logrus.New()))
	d.drainOnce()

	if fs.deliveries["del-1"].Status != types.DeliverySuccess {
		t.Fatalf("expected delivery marked success, got %v", fs.deliveries["del-1"].Status)
	}
}

func TestDeliverOneReschedulesOnFailureBelowMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := newDispatcherStore()
	fs.subsByID["sub-1"] = sub("sub-1", srv.URL, types.EventHolderNew)
	del := types.WebhookDelivery{ID: "del-1", SubscriptionID: "sub-1", Status: types.DeliveryPending, PayloadJSON: `{}`, Attempts: 0}
	fs.deliveries["del-1"] = del

	d := NewDispatcher(fs, 10, time.Minute, logrus.NewEntry(logrus.New()))
	d.deliverOne(del)

	if fs.deliveries["del-1"].Attempts != 1 {
		t.Fatalf("expected Attempts=1 after one failure, got %d", fs.deliveries["del-1"].Attempts)
	}
	if fs.disabled["sub-1"] {
		t.Fatal("a single failure must not auto-disable the subscription")
	}
}

func TestDeliverOneAutoDisablesSubscriptionAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := newDispatcherStore()
	fs.subsByID["sub-1"] = sub("sub-1", srv.URL, types.EventHolderNew)
	fs.failures["sub-1"] = 4 // four earlier deliveries already failed terminally
	d := NewDispatcher(fs, 10, time.Minute, logrus.NewEntry(logrus.New()))

	del := types.WebhookDelivery{ID: "del-1", SubscriptionID: "sub-1", Status: types.DeliveryPending, PayloadJSON: `{}`, Attempts: maxAttempts - 1}
	fs.deliveries["del-1"] = del
	d.deliverOne(del)

	if fs.deliveries["del-1"].Status != types.DeliveryFailed {
		t.Fatalf("expected delivery marked failed at max attempts, got %v", fs.deliveries["del-1"].Status)
	}
	if !fs.disabled["sub-1"] {
		t.Fatal("expected the subscription to be auto-disabled at its fifth failed delivery")
	}
}

func TestDispatchIsNoOpWithNoActiveSubscriptions(t *testing.T) {
	fs := newDispatcherStore()
	d := NewDispatcher(fs, 10, time.Minute, logrus.NewEntry(logrus.New()))
	if err := d.Dispatch(types.EventHolderNew, nil); err != nil {
		t.Fatal(err)
	}
	if len(fs.deliveries) != 0 {
		t.Fatal("expected no deliveries created with no active subscriptions")
	}
}
