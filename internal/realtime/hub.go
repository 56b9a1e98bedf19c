// Package realtime fans clinical alerts out to subscribed websocket clients.
// Clients join rooms (per patient, facility, organization, or the global
// clinical team) and receive every alert published to those rooms.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// ServerEvent is the server-to-client message envelope.
type ServerEvent struct {
	Event string      `json:"event"`
	Room  string      `json:"room,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub tracks connected clients and their room memberships. Membership is
// ephemeral: it lives exactly as long as the connection.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	all    map[*Client]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
}

// unregister drops the client from every room and closes its send channel.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for room := range client.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	delete(h.all, client)
	close(client.send)
}

// join subscribes the client to room. Rejoining is a no-op.
func (h *Hub) join(client *Client, room string) {
	if room == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// BroadcastRaw sends pre-marshalled bytes to every client in room. Clients
// with a full send buffer are skipped rather than blocking the hub.
func (h *Hub) BroadcastRaw(room string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return 0
	}

	sent := 0
	for client := range members {
		select {
		case client.send <- data:
			sent++
		default:
			h.logger.Warn("dropping message for slow client",
				zap.String("client_id", client.ID),
				zap.String("room", room))
		}
	}
	return sent
}

// Emit marshals a ServerEvent and broadcasts it to room.
func (h *Hub) Emit(room, event string, data interface{}) int {
	payload, err := json.Marshal(ServerEvent{Event: event, Room: room, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("event", event), zap.Error(err))
		return 0
	}
	return h.BroadcastRaw(room, payload)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of clients in room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
