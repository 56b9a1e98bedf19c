package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSession struct {
	mu        sync.Mutex
	joins     []string
	published []string
	joinErr   error
	done      chan struct{}
	once      sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (s *fakeSession) Join(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joinErr != nil {
		return s.joinErr
	}
	s.joins = append(s.joins, room)
	return nil
}

func (s *fakeSession) Publish(_ context.Context, room string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, room)
	return nil
}

func (s *fakeSession) Close() error {
	s.drop()
	return nil
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) drop() {
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSession) joined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.joins))
	copy(out, s.joins)
	return out
}

type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
	failures int   // connect errors to return before succeeding
	joinErr  error // pre-set on every dialed session
	dials    int
}

func (t *fakeTransport) Connect(context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.failures > 0 {
		t.failures--
		return nil, errors.New("dial refused")
	}
	s := newFakeSession()
	s.joinErr = t.joinErr
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sessions) {
		return nil
	}
	return t.sessions[i]
}

func fastConfig() ConnConfig {
	return ConnConfig{
		DialTimeout:    time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		MaxAttempts:    3,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnManagerSubscribesAndJoinsInitialRooms(t *testing.T) {
	transport := &fakeTransport{}
	m := NewConnManager(transport, []string{"clinical-team"}, fastConfig(), nil)
	m.Start()
	defer m.Stop()

	waitFor(t, "subscribed state", func() bool { return m.State() == StateSubscribed })

	s := transport.session(0)
	if s == nil {
		t.Fatal("no session dialed")
	}
	joined := s.joined()
	if len(joined) != 1 || joined[0] != "clinical-team" {
		t.Errorf("joined = %v, want [clinical-team]", joined)
	}
}

func TestConnManagerReplaysRoomsAfterDrop(t *testing.T) {
	transport := &fakeTransport{}
	m := NewConnManager(transport, []string{"clinical-team"}, fastConfig(), nil)
	m.Start()
	defer m.Stop()

	waitFor(t, "first subscribe", func() bool { return m.State() == StateSubscribed })
	if err := m.Join(context.Background(), "patient-42"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	transport.session(0).drop()

	waitFor(t, "resubscribe", func() bool {
		return transport.dialCount() >= 2 && m.State() == StateSubscribed
	})

	second := transport.session(1)
	if second == nil {
		t.Fatal("no second session dialed")
	}
	joined := second.joined()
	want := map[string]bool{"clinical-team": true, "patient-42": true}
	if len(joined) != len(want) {
		t.Fatalf("replayed rooms = %v, want both original and later joins", joined)
	}
	for _, room := range joined {
		if !want[room] {
			t.Errorf("unexpected replayed room %q", room)
		}
	}
}

func TestConnManagerGoesOfflineAfterRetryBudget(t *testing.T) {
	transport := &fakeTransport{failures: 100}
	m := NewConnManager(transport, nil, fastConfig(), nil)
	m.Start()
	defer m.Stop()

	waitFor(t, "offline state", func() bool { return m.State() == StateOffline })

	// Initial attempt plus MaxAttempts retries, then no more dialing.
	dials := transport.dialCount()
	time.Sleep(20 * time.Millisecond)
	if transport.dialCount() != dials {
		t.Error("offline manager kept dialing without a manual reconnect")
	}

	if err := m.Publish(context.Background(), "patient-1", "payload"); !errors.Is(err, ErrOffline) {
		t.Errorf("Publish while offline = %v, want ErrOffline", err)
	}
}

func TestConnManagerManualReconnectFromOffline(t *testing.T) {
	transport := &fakeTransport{failures: 100}
	m := NewConnManager(transport, []string{"clinical-team"}, fastConfig(), nil)
	m.Start()
	defer m.Stop()

	waitFor(t, "offline state", func() bool { return m.State() == StateOffline })

	transport.mu.Lock()
	transport.failures = 0
	transport.mu.Unlock()

	if err := m.Reconnect(); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	waitFor(t, "recovery", func() bool { return m.State() == StateSubscribed })

	if err := m.Publish(context.Background(), "patient-1", "payload"); err != nil {
		t.Errorf("Publish after recovery: %v", err)
	}
}

func TestConnManagerJoinFailureCountsAsFailedAttempt(t *testing.T) {
	transport := &fakeTransport{joinErr: errors.New("join rejected")}
	m := NewConnManager(transport, []string{"clinical-team"}, fastConfig(), nil)
	m.Start()
	defer m.Stop()

	// Every dial succeeds but the room replay fails, so the manager must
	// burn through its retry budget and end up offline.
	waitFor(t, "offline after join failures", func() bool { return m.State() == StateOffline })
	if transport.dialCount() < 2 {
		t.Errorf("dials = %d, want retries before going offline", transport.dialCount())
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	m := NewConnManager(&fakeTransport{}, nil, ConnConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		MaxAttempts:    20,
	}, nil)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{12, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := m.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestConnManagerPublishBeforeSubscribeIsOffline(t *testing.T) {
	transport := &fakeTransport{failures: 1}
	m := NewConnManager(transport, nil, ConnConfig{
		DialTimeout:    time.Second,
		InitialBackoff: time.Hour, // keep it disconnected for the test
		MaxBackoff:     time.Hour,
		MaxAttempts:    5,
	}, nil)
	m.Start()
	defer m.Stop()

	waitFor(t, "disconnected state", func() bool { return m.State() == StateDisconnected })
	if err := m.Publish(context.Background(), "patient-1", "payload"); !errors.Is(err, ErrOffline) {
		t.Errorf("Publish while disconnected = %v, want ErrOffline", err)
	}
}
