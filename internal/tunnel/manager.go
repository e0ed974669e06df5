package tunnel

import (
	"sync"

	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/internal/tunnel/tunnelid"
	"github.com/grovetools/weave/pkg/events"
	"github.com/grovetools/weave/pkg/models"
	"github.com/sirupsen/logrus"
)

// Manager orchestrates identity, discovery, the peer server, and the
// per-host clients. It is the single entry point the IPC surface uses for
// everything remote.
//
// The supervisor is a pure dependency: the manager consumes its event
// stream and calls its Backend methods; the supervisor never learns the
// manager exists.
type Manager struct {
	identity *models.Identity
	backend  Backend
	source   *events.Bus
	logger   *logrus.Entry

	discovery *Discovery
	server    *Server
	bus       *events.Bus

	mu      sync.Mutex
	clients map[string]*Client

	localSub chan models.Event
}

// NewManager creates a Manager. identity may be nil, in which case the
// whole fabric stays disabled and every operation reports that status.
func NewManager(identity *models.Identity, backend Backend, source *events.Bus, logger *logrus.Entry) *Manager {
	return &Manager{
		identity: identity,
		backend:  backend,
		source:   source,
		logger:   logger,
		bus:      events.NewBus(),
		clients:  make(map[string]*Client),
	}
}

// Enabled reports whether the peer fabric is active.
func (m *Manager) Enabled() bool {
	return m.identity != nil
}

// Bus returns the manager's event stream: tunnel lifecycle events plus
// remote session events with the tunnel-id transform already applied.
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// Start brings up the server and discovery and begins forwarding local
// supervisor events to connected peers. A nil identity is a no-op.
func (m *Manager) Start() error {
	if m.identity == nil {
		m.logger.Info("Tunnel disabled, skipping peer fabric startup")
		return nil
	}

	m.server = NewServer(*m.identity, m.backend, m.logger)
	if err := m.server.Start(); err != nil {
		return err
	}

	m.discovery = NewDiscovery(*m.identity, m.server.Port(), DiscoveryEvents{
		OnHostFound: func(host models.PeerHost) {
			copied := host
			m.bus.Publish(models.Event{Type: models.EventHostFound, Host: &copied, InstanceID: host.InstanceID})
		},
		OnHostLost: func(instanceID string) {
			m.teardownClient(instanceID)
			m.bus.Publish(models.Event{Type: models.EventHostLost, InstanceID: instanceID})
		},
	}, m.logger)

	// Reverse discovery: peers that reach our server become known hosts
	// even when their own announcements never arrive.
	m.server.OnPeerAuthenticated = func(host models.PeerHost) {
		m.discovery.RegisterHost(host)
	}

	m.discovery.Start()

	m.localSub = m.source.Subscribe()
	go func() {
		for event := range m.localSub {
			switch event.Type {
			case models.EventSessionOutput, models.EventSessionUpdate, models.EventSessionExit:
				m.server.Broadcast(event)
			}
		}
	}()

	return nil
}

// Shutdown tears down clients, discovery, and the server.
func (m *Manager) Shutdown() {
	if m.identity == nil {
		return
	}

	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()
	for _, client := range clients {
		client.Close()
	}

	if m.discovery != nil {
		m.discovery.Stop()
	}
	if m.server != nil {
		m.server.Shutdown()
	}
	if m.localSub != nil {
		m.source.Unsubscribe(m.localSub)
	}
}

// GetStatus reports whether the fabric is enabled and the local identity.
func (m *Manager) GetStatus() models.TunnelStatus {
	if m.identity == nil {
		return models.TunnelStatus{Enabled: false}
	}
	identity := *m.identity
	return models.TunnelStatus{Enabled: true, Identity: &identity}
}

// GetDiscoveredHosts returns every known host.
func (m *Manager) GetDiscoveredHosts() ([]models.PeerHost, error) {
	if m.identity == nil {
		return nil, errors.TunnelDisabled()
	}
	return m.discovery.Hosts(), nil
}

// GetConnectedHosts returns only hosts with a live client.
func (m *Manager) GetConnectedHosts() ([]models.PeerHost, error) {
	hosts, err := m.GetDiscoveredHosts()
	if err != nil {
		return nil, err
	}
	connected := hosts[:0]
	for _, host := range hosts {
		if host.Status == models.HostConnected {
			connected = append(connected, host)
		}
	}
	return connected, nil
}

// Connect establishes a client connection to a discovered host. The host is
// marked connecting for the duration of the handshake and reverts to
// discovered on failure.
func (m *Manager) Connect(instanceID string) error {
	if m.identity == nil {
		return errors.TunnelDisabled()
	}
	host, ok := m.discovery.Get(instanceID)
	if !ok {
		return errors.HostNotFound(instanceID)
	}

	m.mu.Lock()
	if _, exists := m.clients[instanceID]; exists {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.discovery.SetStatus(instanceID, models.HostConnecting)

	client := NewClient(host, *m.identity, m.clientEvents(instanceID), m.logger)
	if err := client.Connect(); err != nil {
		m.discovery.SetStatus(instanceID, models.HostDiscovered)
		return err
	}

	m.mu.Lock()
	m.clients[instanceID] = client
	m.mu.Unlock()
	m.discovery.SetStatus(instanceID, models.HostConnected)
	m.bus.Publish(models.Event{Type: models.EventTunnelConnected, InstanceID: instanceID})
	return nil
}

// clientEvents wires a client's stream into the manager's bus with the
// tunnel-id transform applied.
func (m *Manager) clientEvents(instanceID string) ClientEvents {
	return ClientEvents{
		OnReconnected: func() {
			m.discovery.SetStatus(instanceID, models.HostConnected)
			m.bus.Publish(models.Event{Type: models.EventTunnelConnected, InstanceID: instanceID})
		},
		OnDisconnected: func() {
			m.discovery.SetStatus(instanceID, models.HostDisconnected)
			m.bus.Publish(models.Event{Type: models.EventTunnelDisconnected, InstanceID: instanceID})
		},
		OnSessionOutput: func(sessionID string, data []byte) {
			m.bus.Publish(models.Event{
				Type:      models.EventSessionOutput,
				SessionID: tunnelid.Make(instanceID, sessionID),
				Data:      data,
			})
		},
		OnSessionUpdate: func(session models.Session) {
			session.ID = tunnelid.Make(instanceID, session.ID)
			m.bus.Publish(models.Event{Type: models.EventSessionUpdate, SessionID: session.ID, Session: &session})
		},
		OnSessionExit: func(sessionID string, exitCode int) {
			code := exitCode
			m.bus.Publish(models.Event{
				Type:      models.EventSessionExit,
				SessionID: tunnelid.Make(instanceID, sessionID),
				ExitCode:  &code,
			})
		},
	}
}

// Disconnect tears down the client for a host.
func (m *Manager) Disconnect(instanceID string) error {
	if m.identity == nil {
		return errors.TunnelDisabled()
	}
	m.teardownClient(instanceID)
	m.discovery.SetStatus(instanceID, models.HostDisconnected)
	m.bus.Publish(models.Event{Type: models.EventTunnelDisconnected, InstanceID: instanceID})
	return nil
}

func (m *Manager) teardownClient(instanceID string) {
	m.mu.Lock()
	client, ok := m.clients[instanceID]
	if ok {
		delete(m.clients, instanceID)
	}
	m.mu.Unlock()
	if ok {
		client.Close()
	}
}

func (m *Manager) client(instanceID string) (*Client, error) {
	if m.identity == nil {
		return nil, errors.TunnelDisabled()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[instanceID]
	if !ok {
		return nil, errors.NotConnected(instanceID)
	}
	return client, nil
}

// ListRemoteSessions fetches a connected peer's sessions.
func (m *Manager) ListRemoteSessions(instanceID string) ([]models.Session, error) {
	client, err := m.client(instanceID)
	if err != nil {
		return nil, err
	}
	return client.ListSessions()
}

// CreateRemoteSession creates a session on a connected peer.
func (m *Manager) CreateRemoteSession(instanceID string, kind models.SessionKind, workingDir, name string) (models.Session, error) {
	client, err := m.client(instanceID)
	if err != nil {
		return models.Session{}, err
	}
	return client.CreateSession(kind, workingDir, name)
}

// CloseRemoteSession closes a session on a connected peer.
func (m *Manager) CloseRemoteSession(instanceID, sessionID string) error {
	client, err := m.client(instanceID)
	if err != nil {
		return err
	}
	return client.CloseSession(sessionID)
}

// WriteRemoteSession forwards input to a remote session. Oneway.
func (m *Manager) WriteRemoteSession(instanceID, sessionID string, data []byte) error {
	client, err := m.client(instanceID)
	if err != nil {
		return err
	}
	client.Write(sessionID, data)
	return nil
}

// ResizeRemoteSession resizes a remote session. Oneway.
func (m *Manager) ResizeRemoteSession(instanceID, sessionID string, cols, rows uint16) error {
	client, err := m.client(instanceID)
	if err != nil {
		return err
	}
	client.Resize(sessionID, cols, rows)
	return nil
}
