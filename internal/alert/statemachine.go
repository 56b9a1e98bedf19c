package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOffline is returned for operations attempted while the upstream
// connection is down. Callers treat it as a delivery failure, not a crash.
var ErrOffline = errors.New("alert connection offline")

// ConnState is the upstream connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateSubscribed   ConnState = "subscribed"
	// StateOffline is terminal: automatic retries have been exhausted and
	// only an explicit Reconnect call leaves it.
	StateOffline ConnState = "offline"
)

// Session is one live upstream connection. Done is closed when the session
// drops for any reason.
type Session interface {
	Join(ctx context.Context, room string) error
	Publish(ctx context.Context, room string, payload interface{}) error
	Close() error
	Done() <-chan struct{}
}

// Transport dials upstream sessions.
type Transport interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnConfig controls dialing and the reconnect policy.
type ConnConfig struct {
	DialTimeout time.Duration
	// InitialBackoff is the delay before the first retry. Each subsequent
	// retry doubles it up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts is the number of consecutive failed connection attempts
	// tolerated before the manager goes offline.
	MaxAttempts int
}

// DefaultConnConfig returns production defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		DialTimeout:    10 * time.Second,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    10,
	}
}

type cmdKind int

const (
	cmdPublish cmdKind = iota
	cmdJoin
	cmdReconnect
	cmdStop
)

type command struct {
	kind    cmdKind
	ctx     context.Context
	room    string
	payload interface{}
	reply   chan error
}

// ConnManager owns the upstream connection for the distributor. All
// transitions happen on a single goroutine, so there is no state to lock
// during reconnects. Joined rooms are remembered and replayed after every
// reconnect so a flapping link never silently narrows the subscription set.
type ConnManager struct {
	transport Transport
	config    ConnConfig
	logger    *zap.Logger

	cmds chan command

	// Written only by the run goroutine; mu guards reads from accessors.
	mu      sync.RWMutex
	state   ConnState
	rooms   map[string]struct{}
	session Session

	// run-goroutine-only fields.
	attempts   int
	retryTimer *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

// NewConnManager creates a manager with the given transport. rooms are
// joined on every (re)connect before any publish is accepted.
func NewConnManager(transport Transport, initialRooms []string, cfg ConnConfig, logger *zap.Logger) *ConnManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultConnConfig().DialTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConnConfig().InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConnConfig().MaxAttempts
	}

	rooms := make(map[string]struct{}, len(initialRooms))
	for _, r := range initialRooms {
		rooms[r] = struct{}{}
	}

	return &ConnManager{
		transport: transport,
		config:    cfg,
		logger:    logger,
		cmds:      make(chan command, 64),
		state:     StateDisconnected,
		rooms:     rooms,
		done:      make(chan struct{}),
	}
}

// Start launches the run loop and the first connection attempt.
func (m *ConnManager) Start() {
	go m.run()
}

// Publish sends payload to room over the live session. Returns ErrOffline
// when no subscribed session exists.
func (m *ConnManager) Publish(ctx context.Context, room string, payload interface{}) error {
	return m.send(command{kind: cmdPublish, ctx: ctx, room: room, payload: payload})
}

// Join adds room to the replay set and joins it on the live session if one
// exists. The room survives reconnects.
func (m *ConnManager) Join(ctx context.Context, room string) error {
	return m.send(command{kind: cmdJoin, ctx: ctx, room: room})
}

// Reconnect resets the retry budget and forces a new connection attempt.
// It is the only way out of the offline state.
func (m *ConnManager) Reconnect() error {
	return m.send(command{kind: cmdReconnect, ctx: context.Background()})
}

// Stop closes the session and ends the run loop.
func (m *ConnManager) Stop() {
	m.stopOnce.Do(func() {
		select {
		case m.cmds <- command{kind: cmdStop}:
			<-m.done
		case <-m.done:
		}
	})
}

// State returns the current connection state.
func (m *ConnManager) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Rooms returns the sorted replay set.
func (m *ConnManager) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (m *ConnManager) send(cmd command) error {
	cmd.reply = make(chan error, 1)
	ctx := cmd.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case m.cmds <- cmd:
	case <-m.done:
		return ErrOffline
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ConnManager) run() {
	defer close(m.done)

	m.connect()

	for {
		var sessionDone <-chan struct{}
		if s := m.currentSession(); s != nil {
			sessionDone = s.Done()
		}
		var retry <-chan time.Time
		if m.retryTimer != nil {
			retry = m.retryTimer.C
		}

		select {
		case cmd := <-m.cmds:
			switch cmd.kind {
			case cmdStop:
				m.teardown()
				m.setState(StateDisconnected)
				return
			case cmdPublish:
				cmd.reply <- m.handlePublish(cmd.ctx, cmd.room, cmd.payload)
			case cmdJoin:
				cmd.reply <- m.handleJoin(cmd.ctx, cmd.room)
			case cmdReconnect:
				m.attempts = 0
				m.stopRetryTimer()
				m.teardown()
				m.connect()
				cmd.reply <- nil
			}
		case <-sessionDone:
			m.logger.Warn("upstream session dropped")
			m.teardown()
			m.scheduleRetry()
		case <-retry:
			m.retryTimer = nil
			m.connect()
		}
	}
}

func (m *ConnManager) currentSession() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *ConnManager) setState(s ConnState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *ConnManager) setSession(s Session) {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
}

func (m *ConnManager) teardown() {
	if s := m.currentSession(); s != nil {
		_ = s.Close()
		m.setSession(nil)
	}
}

// connect dials, then replays the full room set. A join failure counts as
// a failed attempt: a half-subscribed session would drop alerts silently.
func (m *ConnManager) connect() {
	m.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	session, err := m.transport.Connect(ctx)
	cancel()
	if err != nil {
		m.logger.Warn("upstream connect failed",
			zap.Int("attempt", m.attempts+1),
			zap.Error(err))
		m.scheduleRetry()
		return
	}

	m.setSession(session)
	m.setState(StateConnected)

	for _, room := range m.Rooms() {
		jctx, jcancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
		err := session.Join(jctx, room)
		jcancel()
		if err != nil {
			m.logger.Warn("room replay failed",
				zap.String("room", room),
				zap.Error(err))
			m.teardown()
			m.scheduleRetry()
			return
		}
	}

	m.attempts = 0
	m.setState(StateSubscribed)
	m.logger.Info("upstream subscribed", zap.Strings("rooms", m.Rooms()))
}

func (m *ConnManager) scheduleRetry() {
	m.attempts++
	if m.attempts > m.config.MaxAttempts {
		m.setState(StateOffline)
		m.logger.Error("upstream offline: retry budget exhausted, manual reconnect required",
			zap.Int("attempts", m.attempts-1))
		return
	}

	m.setState(StateDisconnected)
	delay := m.backoff(m.attempts)
	m.logger.Info("scheduling reconnect",
		zap.Int("attempt", m.attempts),
		zap.Duration("delay", delay))
	m.stopRetryTimer()
	m.retryTimer = time.NewTimer(delay)
}

// backoff returns the delay for the given attempt: initial * 2^(attempt-1),
// capped at MaxBackoff.
func (m *ConnManager) backoff(attempt int) time.Duration {
	delay := m.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxBackoff {
			return m.config.MaxBackoff
		}
	}
	if delay > m.config.MaxBackoff {
		return m.config.MaxBackoff
	}
	return delay
}

func (m *ConnManager) stopRetryTimer() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *ConnManager) handlePublish(ctx context.Context, room string, payload interface{}) error {
	s := m.currentSession()
	if s == nil || m.State() != StateSubscribed {
		return fmt.Errorf("%w: state %s", ErrOffline, m.State())
	}
	return s.Publish(ctx, room, payload)
}

func (m *ConnManager) handleJoin(ctx context.Context, room string) error {
	m.mu.Lock()
	m.rooms[room] = struct{}{}
	m.mu.Unlock()

	s := m.currentSession()
	if s == nil || m.State() == StateConnecting {
		// Joined rooms replay on the next connect.
		return nil
	}
	return s.Join(ctx, room)
}
