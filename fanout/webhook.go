package fanout

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/lifecycle"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

func newDeliveryID() string { return uuid.NewString() }

// backoff schedule for outbound webhook retries, per spec.md §4.7.
var backoff = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

const maxAttempts = 3

// envelope is the outbound webhook payload shape from spec.md §6
// (`{event, timestamp, data}`), signed in its entirety.
type envelope struct {
	Event     types.WebhookEventType `json:"event"`
	Timestamp int64                  `json:"timestamp"`
	Data      interface{}            `json:"data"`
}

// Dispatcher creates pending deliveries and drains them on a periodic
// worker, signing every POST with the subscription's own secret.
type Dispatcher struct {
	store      store.Store
	httpClient *http.Client
	log        *logrus.Entry
	claimLimit int
	period     time.Duration
}

func NewDispatcher(s store.Store, claimLimit int, period time.Duration, log *logrus.Entry) *Dispatcher {
	if period <= 0 {
		period = 30 * time.Second
	}
	if claimLimit <= 0 {
		claimLimit = 50
	}
	return &Dispatcher{
		store:      s,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
		claimLimit: claimLimit,
		period:     period,
	}
}

// Dispatch looks up active subscriptions for eventType and creates one
// pending WebhookDelivery per subscription, returning immediately; the
// periodic worker performs the actual POST. This is the backpressure
// boundary spec.md §4.3 requires between ingest and slow consumers.
func (d *Dispatcher) Dispatch(eventType types.WebhookEventType, data interface{}) error {
	subs, err := d.store.ListActiveSubscriptionsForEvent(eventType)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	env := envelope{Event: eventType, Timestamp: time.Now().Unix(), Data: data}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, sub := range subs {
		if !containsEvent(sub.EventSet, eventType) {
			continue
		}
		del := types.WebhookDelivery{
			ID:             newDeliveryID(),
			SubscriptionID: sub.ID,
			EventType:      eventType,
			PayloadJSON:    string(payload),
			Status:         types.DeliveryPending,
			CreatedAt:      now,
		}
		if err := d.store.CreateWebhookDelivery(del); err != nil {
			return err
		}
	}
	return nil
}

func containsEvent(set []types.WebhookEventType, want types.WebhookEventType) bool {
	for _, e := range set {
		if e == want {
			return true
		}
	}
	return false
}

// RunWorker starts the periodic delivery drain, registered with g.
func (d *Dispatcher) RunWorker(g *lifecycle.Group) {
	if err := g.Add(); err != nil {
		return
	}
	go func() {
		defer g.Done()
		ticker := time.NewTicker(d.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.drainOnce()
			case <-g.StopChan():
				return
			}
		}
	}()
}

func (d *Dispatcher) drainOnce() {
	now := time.Now().UTC()
	deliveries, err := d.store.ClaimPendingDeliveries(d.claimLimit, now)
	if err != nil {
		d.log.WithError(err).Warn("claim pending deliveries failed")
		return
	}
	for _, del := range deliveries {
		d.deliverOne(del)
	}
}

func (d *Dispatcher) deliverOne(del types.WebhookDelivery) {
	sub, err := d.store.GetWebhookSubscription(del.SubscriptionID)
	if err != nil {
		d.log.WithError(err).WithField("subscription", del.SubscriptionID).Warn("delivery subscription missing")
		return
	}

	sig := sign(sub.Secret, []byte(del.PayloadJSON))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader([]byte(del.PayloadJSON)))
	if err != nil {
		d.fail(del, sub, 0, err.Error(), now())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Oracle-Signature", sig)
	req.Header.Set("X-Oracle-Event", string(del.EventType))
	req.Header.Set("X-Oracle-Timestamp", now().Format(time.RFC3339))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.fail(del, sub, 0, err.Error(), now())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := d.store.CompleteDelivery(del.ID, types.DeliverySuccess, resp.StatusCode, "", now()); err != nil {
			d.log.WithError(err).Warn("failed to mark delivery success")
		}
		if err := d.store.RecordSubscriptionSuccess(sub.ID, now()); err != nil {
			d.log.WithError(err).Warn("failed to record subscription success")
		}
		return
	}
	d.fail(del, sub, resp.StatusCode, "", now())
}

// fail applies the attempt-counting/backoff/auto-disable rules from
// spec.md §4.7: terminal failure at attempts>=3, otherwise rescheduled at
// now+backoff[attempts-1].
func (d *Dispatcher) fail(del types.WebhookDelivery, sub types.WebhookSubscription, code int, body string, at time.Time) {
	attempts := del.Attempts + 1
	if attempts >= maxAttempts {
		// RescheduleDelivery is what bumps the persisted Attempts counter;
		// call it first so the terminal row still shows attempts==maxAttempts,
		// then immediately overwrite status/nextRetryAt via CompleteDelivery.
		if err := d.store.RescheduleDelivery(del.ID, at, body); err != nil {
			d.log.WithError(err).Warn("failed to bump delivery attempts")
		}
		if err := d.store.CompleteDelivery(del.ID, types.DeliveryFailed, code, body, at); err != nil {
			d.log.WithError(err).Warn("failed to mark delivery failed")
		}
		disabled, err := d.store.RecordSubscriptionFailure(sub.ID)
		if err != nil {
			d.log.WithError(err).Warn("failed to record subscription failure")
		} else if disabled {
			d.log.WithField("subscription", sub.ID).Warn("webhook subscription auto-disabled")
		}
		return
	}
	next := at.Add(backoff[attempts-1])
	if err := d.store.RescheduleDelivery(del.ID, next, body); err != nil {
		d.log.WithError(err).Warn("failed to reschedule delivery")
	}
}

// sign computes the hex HMAC-SHA256 the outbound wire protocol requires
// (spec.md §6). HMAC is stdlib-only by necessity: no third-party HMAC
// implementation appears anywhere in the reference pack, and crypto/hmac
// is the correct, constant-time-safe primitive for this regardless — see
// DESIGN.md.
func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func now() time.Time { return time.Now().UTC() }
