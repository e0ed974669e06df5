package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grovetools/weave/pkg/models"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a
// unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
func NewRemoteClient(socketPath string) (*RemoteClient, error) {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}

	return &RemoteClient{
		httpClient: client,
		socketPath: socketPath,
	}, nil
}

// baseURL is the dummy host used for unix socket HTTP requests.
// The actual connection goes through the socket, not this URL.
const baseURL = "http://unix"

func (c *RemoteClient) getJSON(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetSessions returns the daemon's local session list.
func (c *RemoteClient) GetSessions(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	if err := c.getJSON(ctx, "/api/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetTunnelStatus reports whether the peer fabric is enabled.
func (c *RemoteClient) GetTunnelStatus(ctx context.Context) (models.TunnelStatus, error) {
	var status models.TunnelStatus
	if err := c.getJSON(ctx, "/api/tunnel/status", &status); err != nil {
		return models.TunnelStatus{}, err
	}
	return status, nil
}

// GetHosts returns the discovered peer hosts.
func (c *RemoteClient) GetHosts(ctx context.Context) ([]models.PeerHost, error) {
	var hosts []models.PeerHost
	if err := c.getJSON(ctx, "/api/tunnel/hosts", &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StreamEvents subscribes to the daemon's event stream via Server-Sent
// Events. The channel closes when the context is cancelled or the
// connection is lost.
func (c *RemoteClient) StreamEvents(ctx context.Context) (<-chan models.Event, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	// Use a separate client with no timeout for streaming
	streamTransport := &http.Transport{
		DialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, "unix", c.socketPath)
		},
	}
	streamClient := &http.Client{
		Transport: streamTransport,
		Timeout:   0,
	}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	ch := make(chan models.Event, 10)

	go func() {
		defer resp.Body.Close()
		defer close(ch)
		defer streamTransport.CloseIdleConnections()

		scanner := bufio.NewScanner(resp.Body)
		// PTY output events can be sizable; give the scanner headroom.
		buf := make([]byte, 0, 1024*1024)
		scanner.Buffer(buf, 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()

			if strings.HasPrefix(line, ":") || line == "" {
				continue
			}
			if strings.HasPrefix(line, "data: ") {
				jsonStr := strings.TrimPrefix(line, "data: ")
				var event models.Event
				if err := json.Unmarshal([]byte(jsonStr), &event); err != nil {
					continue // Skip malformed data
				}

				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
