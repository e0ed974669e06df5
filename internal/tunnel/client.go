package tunnel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/internal/tunnelcrypto"
	"github.com/grovetools/weave/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// rpcTimeout is the request-level deadline for correlated RPCs.
	rpcTimeout = 15 * time.Second
	// connectTimeout bounds the full handshake.
	connectTimeout = 15 * time.Second

	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// ClientEvents receives connection lifecycle and remote session events.
// Session ids are delivered in their remote form; the IPC layer applies the
// tunnel-id transform.
type ClientEvents struct {
	OnConnected     func()
	OnReconnected   func()
	OnDisconnected  func()
	OnSessionOutput func(sessionID string, data []byte)
	OnSessionUpdate func(session models.Session)
	OnSessionExit   func(sessionID string, exitCode int)
}

// pendingRequest is one in-flight RPC awaiting its correlated response.
type pendingRequest struct {
	ch    chan Message
	timer *time.Timer
}

// Client is one outbound peer connection with request multiplexing and
// automatic reconnection.
type Client struct {
	host     models.PeerHost
	identity models.Identity
	events   ClientEvents
	logger   *logrus.Entry

	writeMu sync.Mutex

	mu              sync.Mutex
	ws              *websocket.Conn
	keyPair         *tunnelcrypto.KeyPair
	secret          []byte
	ready           bool
	closed          bool
	shouldReconnect bool
	reconnectDelay  time.Duration
	pending         map[string]*pendingRequest
	connectCh       chan error
}

// NewClient creates a client for the given host. Connect starts it.
func NewClient(host models.PeerHost, identity models.Identity, events ClientEvents, logger *logrus.Entry) *Client {
	return &Client{
		host:           host,
		identity:       identity,
		events:         events,
		logger:         logger,
		reconnectDelay: reconnectInitialDelay,
		pending:        make(map[string]*pendingRequest),
	}
}

// Connect dials the peer and completes the handshake: key exchange, then
// encrypted auth. It returns once the server approves or the handshake
// fails.
func (c *Client) Connect() error {
	c.mu.Lock()
	c.shouldReconnect = true
	c.mu.Unlock()
	return c.dial(false)
}

func (c *Client) dial(isReconnect bool) error {
	url := fmt.Sprintf("ws://%s:%d/", c.host.Address, c.host.Port)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		if isReconnect {
			c.scheduleReconnect()
		}
		return fmt.Errorf("failed to dial peer: %w", err)
	}

	keyPair, err := tunnelcrypto.GenerateKeyPair()
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	ready := make(chan error, 1)
	c.mu.Lock()
	c.ws = ws
	c.keyPair = keyPair
	c.secret = nil
	c.ready = false
	c.connectCh = ready
	c.mu.Unlock()

	go c.readLoop(ws)

	select {
	case err := <-ready:
		if err != nil {
			if isReconnect {
				c.scheduleReconnect()
			}
			return err
		}
	case <-time.After(connectTimeout):
		_ = ws.Close()
		if isReconnect {
			c.scheduleReconnect()
		}
		return errors.RPCTimeout("handshake")
	}

	c.mu.Lock()
	c.reconnectDelay = reconnectInitialDelay
	c.mu.Unlock()

	if isReconnect {
		c.logger.WithField("host", c.host.Hostname).Info("Reconnected to peer")
		if c.events.OnReconnected != nil {
			c.events.OnReconnected()
		}
	} else if c.events.OnConnected != nil {
		c.events.OnConnected()
	}
	return nil
}

// readLoop is the single reader for the connection.
func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		c.handleFrame(ws, payload)
	}
}

func (c *Client) handleFrame(ws *websocket.Conn, payload []byte) {
	c.mu.Lock()
	secret := c.secret
	keyPair := c.keyPair
	c.mu.Unlock()

	var msg Message
	if secret == nil {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		if msg.Type != TypeKeyExchange || msg.PublicKey == "" {
			return
		}
		derived, err := keyPair.ComputeSecret(msg.PublicKey)
		if err != nil {
			c.failConnect(fmt.Errorf("key exchange failed: %w", err))
			_ = ws.Close()
			return
		}
		c.mu.Lock()
		c.secret = derived
		c.mu.Unlock()

		// Reply with our key, then authenticate immediately.
		if err := c.writePlain(Message{Type: TypeKeyExchange, PublicKey: keyPair.PublicKey()}); err != nil {
			return
		}
		_ = c.writeEncrypted(Message{
			Type:         TypeAuthRequest,
			IdentityHash: c.identity.IdentityHash,
			Hostname:     c.identity.Hostname,
			InstanceID:   c.identity.InstanceID,
		})
		return
	}

	plaintext, err := tunnelcrypto.Decrypt(secret, string(payload))
	if err != nil {
		c.logger.WithError(err).Debug("Frame decryption failed")
		_ = ws.Close()
		return
	}
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return
	}

	switch msg.Type {
	case TypeAuthApproved:
		c.mu.Lock()
		c.ready = true
		c.mu.Unlock()
		c.resolveConnect(nil)

	case TypeAuthDenied:
		c.mu.Lock()
		c.shouldReconnect = false
		c.mu.Unlock()
		c.resolveConnect(errors.AuthDenied(msg.Reason))
		_ = ws.Close()

	case TypeSessionListResponse, TypeSessionCreateResponse, TypeSessionCloseResponse:
		c.resolvePending(msg)

	case TypeSessionOutput:
		if c.deliverable() && c.events.OnSessionOutput != nil {
			c.events.OnSessionOutput(msg.SessionID, msg.Data)
		}
	case TypeSessionUpdate:
		if c.deliverable() && c.events.OnSessionUpdate != nil && msg.Session != nil {
			c.events.OnSessionUpdate(*msg.Session)
		}
	case TypeSessionExit:
		if c.deliverable() && c.events.OnSessionExit != nil {
			code := 0
			if msg.ExitCode != nil {
				code = *msg.ExitCode
			}
			c.events.OnSessionExit(msg.SessionID, code)
		}

	case TypeDisconnect:
		c.mu.Lock()
		c.shouldReconnect = false
		c.mu.Unlock()
		_ = ws.Close()
	}
}

// deliverable reports whether remote events should still reach listeners.
// Events arriving after a local Close are dropped.
func (c *Client) deliverable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.closed
}

// handleClose rejects all pending RPCs, emits disconnected, and schedules a
// reconnect unless the close was clean or suppressed.
func (c *Client) handleClose(err error) {
	closeCode := -1
	if ce, ok := err.(*websocket.CloseError); ok {
		closeCode = ce.Code
	}

	c.mu.Lock()
	wasReady := c.ready
	c.ready = false
	c.ws = nil
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	reconnect := c.shouldReconnect && !c.closed && closeCode != websocket.CloseNormalClosure
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		select {
		case p.ch <- Message{Error: errors.ConnectionClosed().Error()}:
		default:
		}
	}

	c.resolveConnect(errors.ConnectionClosed())

	if wasReady && c.events.OnDisconnected != nil {
		c.events.OnDisconnected()
	}
	if reconnect {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the next attempt with exponential backoff.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || !c.shouldReconnect {
		c.mu.Unlock()
		return
	}
	delay := c.reconnectDelay
	c.reconnectDelay *= 2
	if c.reconnectDelay > reconnectMaxDelay {
		c.reconnectDelay = reconnectMaxDelay
	}
	c.mu.Unlock()

	c.logger.WithField("delay", delay).Debug("Scheduling reconnect")
	time.AfterFunc(delay, func() {
		c.mu.Lock()
		skip := c.closed || !c.shouldReconnect
		c.mu.Unlock()
		if skip {
			return
		}
		if err := c.dial(true); err != nil {
			c.logger.WithError(err).Debug("Reconnect attempt failed")
		}
	})
}

func (c *Client) resolveConnect(err error) {
	c.mu.Lock()
	ch := c.connectCh
	c.connectCh = nil
	c.mu.Unlock()
	if ch != nil {
		select {
		case ch <- err:
		default:
		}
	}
}

func (c *Client) failConnect(err error) {
	c.resolveConnect(err)
}

// request sends a correlated RPC and waits for its response or the
// request-level deadline. Correlation ids are unique per connection
// lifetime and resolve exactly once.
func (c *Client) request(msg Message) (Message, error) {
	msg.RequestID = uuid.NewString()
	p := &pendingRequest{ch: make(chan Message, 1)}

	c.mu.Lock()
	if c.closed || !c.ready {
		c.mu.Unlock()
		return Message{}, errors.NotConnected(c.host.InstanceID)
	}
	c.pending[msg.RequestID] = p
	c.mu.Unlock()

	p.timer = time.AfterFunc(rpcTimeout, func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		select {
		case p.ch <- Message{Error: errors.RPCTimeout(msg.Type).Error()}:
		default:
		}
	})

	if err := c.writeEncrypted(msg); err != nil {
		p.timer.Stop()
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		return Message{}, err
	}

	reply := <-p.ch
	if reply.Error != "" {
		return Message{}, errors.New(errors.ErrCodeInternal, reply.Error)
	}
	return reply, nil
}

func (c *Client) resolvePending(msg Message) {
	c.mu.Lock()
	p, ok := c.pending[msg.RequestID]
	if ok {
		delete(c.pending, msg.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	select {
	case p.ch <- msg:
	default:
	}
}

// ListSessions fetches the peer's session list.
func (c *Client) ListSessions() ([]models.Session, error) {
	reply, err := c.request(Message{Type: TypeSessionList})
	if err != nil {
		return nil, err
	}
	return reply.Sessions, nil
}

// CreateSession creates a session on the peer.
func (c *Client) CreateSession(kind models.SessionKind, workingDir, name string) (models.Session, error) {
	reply, err := c.request(Message{Type: TypeSessionCreate, Kind: kind, WorkingDir: workingDir, Name: name})
	if err != nil {
		return models.Session{}, err
	}
	if reply.Session == nil {
		return models.Session{}, errors.New(errors.ErrCodeInternal, "peer returned no session")
	}
	return *reply.Session, nil
}

// CloseSession closes a session on the peer.
func (c *Client) CloseSession(id string) error {
	_, err := c.request(Message{Type: TypeSessionClose, SessionID: id})
	return err
}

// Write forwards bytes to a remote session. Oneway.
func (c *Client) Write(id string, data []byte) {
	_ = c.writeEncrypted(Message{Type: TypeSessionWrite, SessionID: id, Data: data})
}

// Resize adjusts a remote session's terminal size. Oneway.
func (c *Client) Resize(id string, cols, rows uint16) {
	_ = c.writeEncrypted(Message{Type: TypeSessionResize, SessionID: id, Cols: cols, Rows: rows})
}

// Close tears the connection down and suppresses reconnection.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.shouldReconnect = false
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect"))
		c.writeMu.Unlock()
		_ = ws.Close()
	}
}

func (c *Client) writePlain(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return errors.ConnectionClosed()
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) writeEncrypted(msg Message) error {
	c.mu.Lock()
	ws := c.ws
	secret := c.secret
	c.mu.Unlock()
	if ws == nil || secret == nil {
		return errors.ConnectionClosed()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sealed, err := tunnelcrypto.Encrypt(secret, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, []byte(sealed))
}
