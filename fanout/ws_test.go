package fanout

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/types"
)

func newTestHub() *Hub {
	log := logrus.NewEntry(logrus.New())
	return NewHub(2, func(*http.Request) bool { return true }, log)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestHubUpgradeSendsConnectedFrame(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Upgrade(w, r, "key-1", types.TierFree)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	var msg ServerMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("expected a connected frame, got error: %v", err)
	}
	if msg.Event != "connected" {
		t.Fatalf("expected event=connected, got %q", msg.Event)
	}
}

func TestHubBroadcastReachesConnectedClients(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Upgrade(w, r, "key-1", types.TierFree)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	// Drain the initial "connected" frame.
	var first ServerMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}

	// Broadcast only fires once the client is registered; poll briefly
	// since Upgrade registers the client asynchronously from this goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast("k_change", map[string]int{"k": 55})

	var msg ServerMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("expected broadcast frame, got error: %v", err)
	}
	if msg.Event != "k_change" {
		t.Fatalf("expected event=k_change, got %q", msg.Event)
	}
}

func TestHubConnectionCapPerKey(t *testing.T) {
	hub := newTestHub() // maxPerKey = 2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := hub.Upgrade(w, r, "capped-key", types.TierFree)
		if err != nil {
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn1, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn2.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected the third connection for the same key to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 from the capped handler, got %+v", resp)
	}
}

func TestBroadcastToTierFiltersByRank(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := types.Tier(r.URL.Query().Get("tier"))
		hub.Upgrade(w, r, "key-"+string(tier), tier)
	}))
	defer srv.Close()

	freeURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tier=free"
	premiumURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tier=premium"

	freeConn, _, err := websocket.DefaultDialer.Dial(freeURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer freeConn.Close()
	premiumConn, _, err := websocket.DefaultDialer.Dial(premiumURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer premiumConn.Close()

	var discard ServerMessage
	freeConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	freeConn.ReadJSON(&discard)
	premiumConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	premiumConn.ReadJSON(&discard)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastToTier("premium_alert", map[string]string{}, types.TierPremium)

	premiumConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got ServerMessage
	if err := premiumConn.ReadJSON(&got); err != nil {
		t.Fatalf("premium client should have received the tiered broadcast: %v", err)
	}

	freeConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if err := freeConn.ReadJSON(&discard); err == nil {
		t.Fatal("free-tier client should not receive a premium-only broadcast")
	}
}
