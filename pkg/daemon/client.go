// Package daemon provides the client side of the weave daemon's IPC
// surface for CLI tools and embedding frontends.
package daemon

import (
	"context"

	"github.com/grovetools/weave/pkg/models"
)

// Client is the read surface CLI tools use against a running daemon.
type Client interface {
	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// GetSessions returns the daemon's local session list.
	GetSessions(ctx context.Context) ([]models.Session, error)

	// GetTunnelStatus reports whether the peer fabric is enabled.
	GetTunnelStatus(ctx context.Context) (models.TunnelStatus, error)

	// GetHosts returns the discovered peer hosts.
	GetHosts(ctx context.Context) ([]models.PeerHost, error)

	// StreamEvents subscribes to the daemon's event stream.
	StreamEvents(ctx context.Context) (<-chan models.Event, error)

	// Close cleans up any resources used by the client.
	Close() error
}
