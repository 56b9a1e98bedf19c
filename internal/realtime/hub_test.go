package realtime

import (
	"encoding/json"
	"testing"
)

func testClient(id string) *Client {
	return &Client{
		ID:    id,
		send:  make(chan []byte, 4),
		rooms: make(map[string]struct{}),
	}
}

func TestHubJoinAndEmit(t *testing.T) {
	hub := NewHub(nil)
	c := testClient("c1")
	hub.register(c)
	hub.join(c, "patient-1")

	sent := hub.Emit("patient-1", "clinical-alert", map[string]string{"alertId": "a1"})
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	var event ServerEvent
	if err := json.Unmarshal(<-c.send, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Event != "clinical-alert" || event.Room != "patient-1" {
		t.Errorf("event = %+v", event)
	}
}

func TestHubRoomIsolation(t *testing.T) {
	hub := NewHub(nil)
	a := testClient("a")
	b := testClient("b")
	hub.register(a)
	hub.register(b)
	hub.join(a, "patient-1")
	hub.join(b, "patient-2")

	if sent := hub.BroadcastRaw("patient-1", []byte("{}")); sent != 1 {
		t.Errorf("sent = %d, want only the patient-1 member", sent)
	}
	select {
	case msg := <-b.send:
		t.Errorf("client outside the room received %s", msg)
	default:
	}
}

func TestHubRejoinIsNoOp(t *testing.T) {
	hub := NewHub(nil)
	c := testClient("c1")
	hub.register(c)
	hub.join(c, "patient-1")
	hub.join(c, "patient-1")

	if got := hub.RoomCount("patient-1"); got != 1 {
		t.Errorf("room count = %d after rejoin, want 1", got)
	}
	if sent := hub.BroadcastRaw("patient-1", []byte("{}")); sent != 1 {
		t.Errorf("sent = %d, rejoin must not double delivery", sent)
	}
}

func TestHubLeave(t *testing.T) {
	hub := NewHub(nil)
	c := testClient("c1")
	hub.register(c)
	hub.join(c, "patient-1")
	hub.leave(c, "patient-1")

	if got := hub.RoomCount("patient-1"); got != 0 {
		t.Errorf("room count = %d after leave, want 0", got)
	}
	if sent := hub.BroadcastRaw("patient-1", []byte("{}")); sent != 0 {
		t.Errorf("sent = %d after leave, want 0", sent)
	}
}

func TestHubUnregisterCleansUp(t *testing.T) {
	hub := NewHub(nil)
	c := testClient("c1")
	hub.register(c)
	hub.join(c, "patient-1")
	hub.join(c, "clinical-team")

	hub.unregister(c)

	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}
	if hub.RoomCount("patient-1") != 0 || hub.RoomCount("clinical-team") != 0 {
		t.Error("memberships survived unregister")
	}
	if _, open := <-c.send; open {
		t.Error("send channel left open after unregister")
	}
	// Repeated unregister must not panic on the closed channel.
	hub.unregister(c)
}

func TestHubSkipsSlowClients(t *testing.T) {
	hub := NewHub(nil)
	slow := &Client{ID: "slow", send: make(chan []byte, 1), rooms: make(map[string]struct{})}
	fast := testClient("fast")
	hub.register(slow)
	hub.register(fast)
	hub.join(slow, "patient-1")
	hub.join(fast, "patient-1")

	slow.send <- []byte("backlog")

	if sent := hub.BroadcastRaw("patient-1", []byte("{}")); sent != 1 {
		t.Errorf("sent = %d, want the fast client only", sent)
	}
	select {
	case <-fast.send:
	default:
		t.Error("fast client missed the broadcast")
	}
}

func TestHubJoinUnregisteredClientIgnored(t *testing.T) {
	hub := NewHub(nil)
	c := testClient("ghost")
	hub.join(c, "patient-1")

	if hub.RoomCount("patient-1") != 0 {
		t.Error("unregistered client must not join rooms")
	}
}
