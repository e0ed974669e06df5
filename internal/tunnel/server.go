package tunnel

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/internal/tunnelcrypto"
	"github.com/grovetools/weave/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// PortRangeStart is the first TCP port the peer server tries.
	PortRangeStart = 9500
	// PortRangeEnd is the last port probed on EADDRINUSE.
	PortRangeEnd = 9510

	// shutdownDrain gives disconnect frames time to flush before the
	// listener stops.
	shutdownDrain = 200 * time.Millisecond
)

// Backend is the server's view of the local session supervisor.
type Backend interface {
	ListSessions() []models.Session
	CreateSession(kind models.SessionKind, workingDir, name string) (models.Session, error)
	CloseSession(id string) error
	WriteSession(id string, data []byte)
	ResizeSession(id string, cols, rows uint16)
}

// Server accepts authenticated encrypted peer connections and serves the
// session protocol over them.
type Server struct {
	identity models.Identity
	backend  Backend
	logger   *logrus.Entry

	// OnPeerAuthenticated implements reverse discovery: the accepting side
	// learns about peers whose own announcements are blocked.
	OnPeerAuthenticated func(models.PeerHost)

	listener   net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader
	port       int

	mu      sync.Mutex
	clients map[*serverConn]struct{}
	closed  bool
}

// serverConn is the per-connection state: its own derived secret, auth
// state, and a write lock serializing frames.
type serverConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	keyPair *tunnelcrypto.KeyPair
	secret  []byte
	authed  bool
	remote  models.PeerHost
}

// NewServer creates a peer server for the local identity.
func NewServer(identity models.Identity, backend Backend, logger *logrus.Entry) *Server {
	return &Server{
		identity: identity,
		backend:  backend,
		logger:   logger,
		clients:  make(map[*serverConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			// The fabric authenticates by identity hash, not origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start binds the first free port in the range and begins serving. When
// every port is taken, startup fails.
func (s *Server) Start() error {
	var listener net.Listener
	var err error
	for port := PortRangeStart; port <= PortRangeEnd; port++ {
		listener, err = net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
		if err == nil {
			s.port = port
			break
		}
		if !stderrors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("failed to bind peer server: %w", err)
		}
	}
	if listener == nil {
		return errors.PortRangeExhausted(PortRangeStart, PortRangeEnd)
	}

	s.listener = listener
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpServer = &http.Server{Handler: mux}

	s.logger.WithField("port", s.port).Info("Peer server listening")
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Peer server stopped")
		}
	}()
	return nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	go s.serveConn(ws, r.RemoteAddr)
}

// serveConn runs one connection's state machine: key exchange, auth, then
// session RPC. It is the single reader for the connection.
func (s *Server) serveConn(ws *websocket.Conn, remoteAddr string) {
	conn := &serverConn{ws: ws}
	defer s.dropConn(conn)

	keyPair, err := tunnelcrypto.GenerateKeyPair()
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate keypair")
		return
	}
	conn.keyPair = keyPair

	// Key exchange opens in plaintext.
	if err := conn.writePlain(Message{Type: TypeKeyExchange, PublicKey: keyPair.PublicKey()}); err != nil {
		return
	}

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if conn.secret == nil {
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			if msg.Type != TypeKeyExchange || msg.PublicKey == "" {
				continue
			}
			secret, err := keyPair.ComputeSecret(msg.PublicKey)
			if err != nil {
				s.logger.WithError(err).Debug("Key exchange failed")
				return
			}
			conn.secret = secret
			continue
		}

		plaintext, err := tunnelcrypto.Decrypt(conn.secret, string(payload))
		if err != nil {
			// A tag mismatch means a corrupted or hostile peer; drop it.
			s.logger.WithError(err).Debug("Frame decryption failed")
			return
		}
		if err := json.Unmarshal(plaintext, &msg); err != nil {
			continue
		}

		if !conn.authed {
			if msg.Type != TypeAuthRequest {
				continue
			}
			if !s.handleAuth(conn, msg, remoteAddr) {
				return
			}
			continue
		}

		s.handleRequest(conn, msg)
	}
}

// handleAuth compares the peer's identity hash against the local one and
// either registers or rejects the client.
func (s *Server) handleAuth(conn *serverConn, msg Message, remoteAddr string) bool {
	if msg.IdentityHash != s.identity.IdentityHash {
		s.logger.WithField("hostname", msg.Hostname).Warn("Rejected peer with mismatched identity")
		_ = conn.writeEncrypted(Message{Type: TypeAuthDenied, Reason: "identity mismatch"})
		return false
	}

	conn.authed = true
	host, _, _ := net.SplitHostPort(remoteAddr)
	conn.remote = models.PeerHost{
		InstanceID:   msg.InstanceID,
		Hostname:     msg.Hostname,
		IdentityHash: msg.IdentityHash,
		Address:      host,
		Status:       models.HostDiscovered,
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	if err := conn.writeEncrypted(Message{Type: TypeAuthApproved}); err != nil {
		return false
	}

	s.logger.WithFields(logrus.Fields{"hostname": msg.Hostname, "instanceId": msg.InstanceID}).Info("Peer authenticated")
	if s.OnPeerAuthenticated != nil {
		s.OnPeerAuthenticated(conn.remote)
	}
	return true
}

// handleRequest dispatches one authenticated RPC frame. Non-oneway replies
// echo the request's correlation id.
func (s *Server) handleRequest(conn *serverConn, msg Message) {
	switch msg.Type {
	case TypeSessionList:
		_ = conn.writeEncrypted(Message{
			Type:      TypeSessionListResponse,
			RequestID: msg.RequestID,
			Sessions:  s.backend.ListSessions(),
		})

	case TypeSessionCreate:
		session, err := s.backend.CreateSession(msg.Kind, msg.WorkingDir, msg.Name)
		reply := Message{Type: TypeSessionCreateResponse, RequestID: msg.RequestID}
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Session = &session
		}
		_ = conn.writeEncrypted(reply)

	case TypeSessionClose:
		reply := Message{Type: TypeSessionCloseResponse, RequestID: msg.RequestID}
		if err := s.backend.CloseSession(msg.SessionID); err != nil {
			reply.Error = err.Error()
		}
		_ = conn.writeEncrypted(reply)

	case TypeSessionWrite:
		s.backend.WriteSession(msg.SessionID, msg.Data)

	case TypeSessionResize:
		s.backend.ResizeSession(msg.SessionID, msg.Cols, msg.Rows)
	}
}

// Broadcast forwards a local supervisor event to every authenticated
// client. Each frame is independently encrypted with that client's secret.
func (s *Server) Broadcast(event models.Event) {
	var msg Message
	switch event.Type {
	case models.EventSessionOutput:
		msg = Message{Type: TypeSessionOutput, SessionID: event.SessionID, Data: event.Data}
	case models.EventSessionUpdate:
		msg = Message{Type: TypeSessionUpdate, SessionID: event.SessionID, Session: event.Session}
	case models.EventSessionExit:
		msg = Message{Type: TypeSessionExit, SessionID: event.SessionID, ExitCode: event.ExitCode}
	default:
		return
	}

	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.writeEncrypted(msg); err != nil {
			s.logger.WithError(err).Debug("Broadcast to peer failed")
		}
	}
}

func (s *Server) dropConn(conn *serverConn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.ws.Close()
}

// Shutdown notifies clients, closes their sockets cleanly, and stops the
// listener after a brief drain.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*serverConn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clients = make(map[*serverConn]struct{})
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.writeEncrypted(Message{Type: TypeDisconnect})
		conn.writeMu.Lock()
		_ = conn.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.writeMu.Unlock()
	}

	time.Sleep(shutdownDrain)
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
}

func (c *serverConn) writePlain(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *serverConn) writeEncrypted(msg Message) error {
	if c.secret == nil {
		return stderrors.New("no shared secret")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sealed, err := tunnelcrypto.Encrypt(c.secret, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(sealed))
}
