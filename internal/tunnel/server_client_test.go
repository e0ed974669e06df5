package tunnel

import (
	"sync"
	"testing"
	"time"

	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records the session operations the server routes to it.
type fakeBackend struct {
	mu       sync.Mutex
	sessions []models.Session
	writes   map[string][]byte
	closed   []string
	resized  map[string][2]uint16
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		writes:  make(map[string][]byte),
		resized: make(map[string][2]uint16),
	}
}

func (b *fakeBackend) ListSessions() []models.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Session(nil), b.sessions...)
}

func (b *fakeBackend) CreateSession(kind models.SessionKind, workingDir, name string) (models.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	session := models.Session{
		ID:     "remote-" + name,
		Name:   name,
		Kind:   kind,
		Status: models.StatusActive,
		Metadata: models.SessionMetadata{
			WorkingDir: workingDir,
		},
		CreatedAt: time.Now(),
	}
	b.sessions = append(b.sessions, session)
	return session, nil
}

func (b *fakeBackend) CloseSession(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, id)
	return nil
}

func (b *fakeBackend) WriteSession(id string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes[id] = append(b.writes[id], data...)
}

func (b *fakeBackend) ResizeSession(id string, cols, rows uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resized[id] = [2]uint16{cols, rows}
}

func (b *fakeBackend) writtenTo(id string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.writes[id]...)
}

func serverIdentity() models.Identity {
	return models.Identity{
		Email:        "dev@example.com",
		IdentityHash: "a1b2c3d4e5f60718",
		InstanceID:   "server-instance",
		Hostname:     "server-host",
	}
}

func clientIdentity() models.Identity {
	return models.Identity{
		Email:        "dev@example.com",
		IdentityHash: "a1b2c3d4e5f60718",
		InstanceID:   "client-instance",
		Hostname:     "client-host",
	}
}

func startTestServer(t *testing.T, backend Backend) *Server {
	t.Helper()
	srv := NewServer(serverIdentity(), backend, testLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Shutdown)
	return srv
}

func hostFor(srv *Server) models.PeerHost {
	return models.PeerHost{
		InstanceID:   "server-instance",
		Hostname:     "server-host",
		IdentityHash: "a1b2c3d4e5f60718",
		Address:      "127.0.0.1",
		Port:         srv.Port(),
		Status:       models.HostDiscovered,
	}
}

func TestHandshakeAndSessionRPC(t *testing.T) {
	backend := newFakeBackend()
	_, err := backend.CreateSession(models.KindClaude, "/tmp/x", "seed")
	require.NoError(t, err)
	srv := startTestServer(t, backend)

	var connected bool
	client := NewClient(hostFor(srv), clientIdentity(), ClientEvents{
		OnConnected: func() { connected = true },
	}, testLogger())
	require.NoError(t, client.Connect())
	defer client.Close()
	assert.True(t, connected)

	sessions, err := client.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "remote-seed", sessions[0].ID)

	created, err := client.CreateSession(models.KindCopilot, "/tmp/y", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "remote-fresh", created.ID)
	assert.Equal(t, models.KindCopilot, created.Kind)

	client.Write("remote-seed", []byte("echo hi\r"))
	require.Eventually(t, func() bool {
		return string(backend.writtenTo("remote-seed")) == "echo hi\r"
	}, 2*time.Second, 10*time.Millisecond)

	client.Resize("remote-seed", 200, 50)
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.resized["remote-seed"] == [2]uint16{200, 50}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.CloseSession("remote-seed"))
	backend.mu.Lock()
	assert.Equal(t, []string{"remote-seed"}, backend.closed)
	backend.mu.Unlock()
}

func TestAuthDeniedOnIdentityMismatch(t *testing.T) {
	srv := startTestServer(t, newFakeBackend())

	stranger := models.Identity{
		Email:        "other@example.com",
		IdentityHash: "ffffffffffffffff",
		InstanceID:   "stranger-instance",
		Hostname:     "stranger-host",
	}
	client := NewClient(hostFor(srv), stranger, ClientEvents{}, testLogger())
	err := client.Connect()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAuthDenied), "expected auth denied, got %v", err)

	// Denial disables reconnection.
	client.mu.Lock()
	assert.False(t, client.shouldReconnect)
	client.mu.Unlock()
}

func TestBroadcastReachesClient(t *testing.T) {
	srv := startTestServer(t, newFakeBackend())

	type output struct {
		id   string
		data []byte
	}
	outputCh := make(chan output, 1)
	updateCh := make(chan models.Session, 1)
	exitCh := make(chan string, 1)

	client := NewClient(hostFor(srv), clientIdentity(), ClientEvents{
		OnSessionOutput: func(id string, data []byte) { outputCh <- output{id, data} },
		OnSessionUpdate: func(s models.Session) { updateCh <- s },
		OnSessionExit:   func(id string, code int) { exitCh <- id },
	}, testLogger())
	require.NoError(t, client.Connect())
	defer client.Close()

	srv.Broadcast(models.Event{Type: models.EventSessionOutput, SessionID: "sid-1", Data: []byte("hello")})
	select {
	case got := <-outputCh:
		// The id stays in its remote form; tunnel prefixing happens at the
		// IPC boundary, not here.
		assert.Equal(t, "sid-1", got.id)
		assert.Equal(t, []byte("hello"), got.data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session:output")
	}

	session := models.Session{ID: "sid-1", Status: models.StatusActive}
	srv.Broadcast(models.Event{Type: models.EventSessionUpdate, SessionID: "sid-1", Session: &session})
	select {
	case got := <-updateCh:
		assert.Equal(t, "sid-1", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session:update")
	}

	code := 0
	srv.Broadcast(models.Event{Type: models.EventSessionExit, SessionID: "sid-1", ExitCode: &code})
	select {
	case got := <-exitCh:
		assert.Equal(t, "sid-1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session:exit")
	}
}

func TestEventsAfterLocalCloseAreDropped(t *testing.T) {
	srv := startTestServer(t, newFakeBackend())

	received := make(chan struct{}, 4)
	client := NewClient(hostFor(srv), clientIdentity(), ClientEvents{
		OnSessionOutput: func(string, []byte) { received <- struct{}{} },
	}, testLogger())
	require.NoError(t, client.Connect())

	client.Close()
	srv.Broadcast(models.Event{Type: models.EventSessionOutput, SessionID: "sid-1", Data: []byte("late")})

	select {
	case <-received:
		t.Fatal("event delivered after local disconnect")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRPCFailsWhenNotConnected(t *testing.T) {
	client := NewClient(models.PeerHost{Address: "127.0.0.1", Port: 1}, clientIdentity(), ClientEvents{}, testLogger())
	_, err := client.ListSessions()
	assert.Error(t, err)
}

func TestManagerDisabledWithoutIdentity(t *testing.T) {
	mgr := NewManager(nil, newFakeBackend(), nil, testLogger())
	require.NoError(t, mgr.Start())

	status := mgr.GetStatus()
	assert.False(t, status.Enabled)
	assert.Nil(t, status.Identity)

	_, err := mgr.GetDiscoveredHosts()
	assert.True(t, errors.Is(err, errors.ErrCodeTunnelDisabled))
	assert.True(t, errors.Is(mgr.Connect("x"), errors.ErrCodeTunnelDisabled))
	mgr.Shutdown()
}
