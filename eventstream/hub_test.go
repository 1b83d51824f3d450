package eventstream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nodetrace/beacon"
	"nodetrace/models"
	"nodetrace/presence"
)

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	return conn
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout %s", timeout)
}

func TestHubBroadcastsPresenceEvents(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(NewMux(hub, &fakeContacts{}, &fakePeers{}))
	defer server.Close()
	defer hub.Close()

	first := dialHub(t, server)
	defer first.Close()
	second := dialHub(t, server)
	defer second.Close()
	waitForCondition(t, time.Second, func() bool { return hub.Clients() == 2 })

	id := beacon.NewNodeIdentifier()
	start := time.UnixMilli(1_000)
	hub.Publish(FromPresence(presence.PeerLost{
		NodeID:      id,
		DisplayName: "Pixel",
		FirstSeen:   start,
		LostAt:      start.Add(20 * time.Second),
		AverageRSSI: -65,
		SampleCount: 4,
	}))

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read message: %v", err)
		}
		if msg.Type != string(presence.EventPeerLost) || msg.Peer == nil {
			t.Fatalf("unexpected message %+v", msg)
		}
		if msg.Peer.NodeID != id.String() || msg.Peer.DurationMS != 20_000 || *msg.Peer.AverageRSSI != -65 {
			t.Fatalf("unexpected peer %+v", msg.Peer)
		}
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	defer conn.Close()
	waitForCondition(t, time.Second, func() bool { return hub.Clients() == 1 })

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close")
	}
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients after close")
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub()
	hub.buffer = 1
	c := &client{send: make(chan []byte, 1)}
	if !hub.register(c) {
		t.Fatalf("register failed")
	}

	msg := FromContact(TypeContactRecorded, models.Contact{ID: "c1", HealthStatus: models.HealthStatusUnknown})
	hub.Publish(msg)
	hub.Publish(msg)

	if hub.Clients() != 0 {
		t.Fatalf("expected slow client to be dropped")
	}
	raw, ok := <-c.send
	if !ok {
		t.Fatalf("expected first message to be queued")
	}
	var decoded Message
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode queued message: %v", err)
	}
	if decoded.Contact == nil || decoded.Contact.ID != "c1" {
		t.Fatalf("unexpected queued message %+v", decoded)
	}
	if _, ok := <-c.send; ok {
		t.Fatalf("expected send channel closed")
	}
}

func TestFromPresenceSignalUpdated(t *testing.T) {
	id := beacon.NewNodeIdentifier()
	msg := FromPresence(presence.SignalUpdated{NodeID: id, RSSI: -70, At: time.UnixMilli(5_000)})
	if msg.Type != "signal_updated" || msg.At != 5_000 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Peer == nil || msg.Peer.RSSI == nil || *msg.Peer.RSSI != -70 {
		t.Fatalf("unexpected peer %+v", msg.Peer)
	}
}
