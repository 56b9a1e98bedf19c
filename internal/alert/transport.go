package alert

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

// wsFrame is the client-to-server message envelope understood by the
// realtime hub.
type wsFrame struct {
	Action string      `json:"action"`
	Room   string      `json:"room,omitempty"`
	Alert  interface{} `json:"alert,omitempty"`
}

// WSTransportConfig configures the websocket transport.
type WSTransportConfig struct {
	// URL is the realtime hub websocket endpoint, e.g. ws://host:8081/ws.
	URL string
	// APIKey is sent as X-API-Key on the handshake when non-empty.
	APIKey string
}

// WSTransport dials the realtime hub over gorilla/websocket.
type WSTransport struct {
	config WSTransportConfig
	logger *zap.Logger
}

// NewWSTransport creates a transport for the given hub endpoint.
func NewWSTransport(cfg WSTransportConfig, logger *zap.Logger) *WSTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSTransport{config: cfg, logger: logger}
}

// Connect dials the hub and returns a live session.
func (t *WSTransport) Connect(ctx context.Context) (Session, error) {
	header := http.Header{}
	if t.config.APIKey != "" {
		header.Set("X-API-Key", t.config.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.config.URL, err)
	}

	s := &wsSession{
		conn:   conn,
		logger: t.logger,
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// wsSession is one live hub connection. Reads run on their own goroutine to
// keep pong handling alive; writes are serialized with a mutex.
type wsSession struct {
	conn    *websocket.Conn
	logger  *zap.Logger
	writeMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
}

func (s *wsSession) Join(ctx context.Context, room string) error {
	return s.write(ctx, wsFrame{Action: "join", Room: room})
}

func (s *wsSession) Publish(ctx context.Context, room string, payload interface{}) error {
	return s.write(ctx, wsFrame{Action: "publish-alert", Room: room, Alert: payload})
}

func (s *wsSession) write(ctx context.Context, frame wsFrame) error {
	select {
	case <-s.done:
		return ErrOffline
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteJSON(frame); err != nil {
		s.markDone()
		return fmt.Errorf("write %s frame: %w", frame.Action, err)
	}
	return nil
}

func (s *wsSession) Close() error {
	s.markDone()
	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *wsSession) Done() <-chan struct{} {
	return s.done
}

func (s *wsSession) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// readLoop drains server frames. The gateway does not act on them, but the
// connection dies without an active reader servicing pongs.
func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(64 * 1024)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("hub session read failed", zap.Error(err))
			}
			s.markDone()
			return
		}
	}
}

func (s *wsSession) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.markDone()
				return
			}
		case <-s.done:
			return
		}
	}
}
