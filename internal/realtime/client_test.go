package realtime

import (
	"encoding/json"
	"testing"
)

func TestHandleFrameAcknowledgeDeliversToRoom(t *testing.T) {
	hub := NewHub(nil)
	hd := NewHandler(hub, nil)

	nurse := testClient("nurse")
	watcher := testClient("watcher")
	hub.register(nurse)
	hub.register(watcher)
	hub.join(watcher, "patient-1")

	hd.handleFrame(nurse, clientFrame{Action: "acknowledge-alert", Room: "patient-1", AlertID: "a1"})

	var event ServerEvent
	select {
	case msg := <-watcher.send:
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	default:
		t.Fatal("room member did not receive the acknowledgment")
	}
	if event.Event != "alert:acknowledged" || event.Room != "patient-1" {
		t.Errorf("event = %+v", event)
	}
}

func TestHandleFrameRejectsUnroutableAlertActions(t *testing.T) {
	hub := NewHub(nil)
	hd := NewHandler(hub, nil)

	sender := testClient("sender")
	hub.register(sender)

	frames := []clientFrame{
		{Action: "acknowledge-alert", AlertID: "a1"},
		{Action: "resolve-alert", AlertID: "a1"},
		{Action: "acknowledge-alert", Room: "patient-1"},
		{Action: "resolve-alert", Room: "patient-1"},
	}
	for _, frame := range frames {
		hd.handleFrame(sender, frame)
	}

	// A frame without a room must not create or emit into the empty room.
	if got := hub.RoomCount(""); got != 0 {
		t.Errorf("empty room count = %d, want 0", got)
	}
	select {
	case msg := <-sender.send:
		t.Errorf("unroutable frame produced delivery: %s", msg)
	default:
	}
}
