package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 25 * time.Second
	maxFrameBytes  = 64 * 1024
	sendBufferSize = 256
)

// clientFrame is the client-to-server message envelope.
type clientFrame struct {
	Action         string          `json:"action"`
	Room           string          `json:"room,omitempty"`
	PatientID      string          `json:"patientId,omitempty"`
	FacilityID     string          `json:"facilityId,omitempty"`
	OrganizationID string          `json:"organizationId,omitempty"`
	TeamID         string          `json:"teamId,omitempty"`
	AlertID        string          `json:"alertId,omitempty"`
	Alert          json.RawMessage `json:"alert,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	ID    string
	send  chan []byte
	rooms map[string]struct{}
	conn  *websocket.Conn
}

// Handler upgrades HTTP requests to websocket connections and routes client
// frames to the hub.
type Handler struct {
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to hub.
func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens at the gateway edge.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection, registers the client, and starts the
// read and write pumps.
func (hd *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := hd.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hd.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:    uuid.New().String(),
		send:  make(chan []byte, sendBufferSize),
		rooms: make(map[string]struct{}),
		conn:  conn,
	}
	hd.hub.register(client)
	hd.logger.Info("client connected", zap.String("client_id", client.ID))

	go hd.writePump(client)
	go hd.readPump(client)
}

func (hd *Handler) readPump(client *Client) {
	defer func() {
		hd.hub.unregister(client)
		client.conn.Close()
		hd.logger.Info("client disconnected", zap.String("client_id", client.ID))
	}()

	client.conn.SetReadLimit(maxFrameBytes)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				hd.logger.Warn("client read failed",
					zap.String("client_id", client.ID),
					zap.Error(err))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}
		hd.handleFrame(client, frame)
	}
}

func (hd *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound action. Unknown actions are ignored so
// protocol additions never break older gateways.
func (hd *Handler) handleFrame(client *Client, frame clientFrame) {
	switch frame.Action {
	case "join":
		hd.hub.join(client, frame.Room)
	case "leave":
		hd.hub.leave(client, frame.Room)
	case "join-patient-alerts":
		if frame.PatientID != "" {
			hd.hub.join(client, "patient-"+frame.PatientID)
		}
	case "join-facility-alerts":
		if frame.FacilityID != "" {
			hd.hub.join(client, "facility-"+frame.FacilityID)
		}
	case "join-organization-alerts":
		if frame.OrganizationID != "" {
			hd.hub.join(client, "organization-"+frame.OrganizationID)
		}
	case "join-clinical-team":
		hd.hub.join(client, "clinical-team")
	case "publish-alert":
		if frame.Room == "" || len(frame.Alert) == 0 {
			return
		}
		sent := hd.hub.BroadcastRaw(frame.Room, frame.Alert)
		hd.logger.Debug("alert relayed to room",
			zap.String("room", frame.Room),
			zap.Int("recipients", sent))
	case "acknowledge-alert":
		if frame.AlertID == "" || frame.Room == "" {
			return
		}
		hd.hub.Emit(frame.Room, "alert:acknowledged", map[string]string{
			"alertId":        frame.AlertID,
			"acknowledgedBy": client.ID,
		})
	case "resolve-alert":
		if frame.AlertID == "" || frame.Room == "" {
			return
		}
		hd.hub.Emit(frame.Room, "alert:resolved", map[string]string{
			"alertId":    frame.AlertID,
			"resolvedBy": client.ID,
		})
	default:
		hd.logger.Debug("ignoring unknown action",
			zap.String("client_id", client.ID),
			zap.String("action", frame.Action))
	}
}
