package models

// HostStatus is the connection state of a discovered peer.
type HostStatus string

const (
	HostDiscovered   HostStatus = "discovered"
	HostConnecting   HostStatus = "connecting"
	HostConnected    HostStatus = "connected"
	HostDisconnected HostStatus = "disconnected"
)

// PeerHost describes a peer daemon on the LAN.
type PeerHost struct {
	InstanceID   string     `json:"instanceId"`
	Hostname     string     `json:"hostname"`
	IdentityHash string     `json:"identityHash"`
	Address      string     `json:"address"`
	Port         int        `json:"port"`
	Status       HostStatus `json:"status"`
}

// Identity is the local peer identity derived from the git global email.
type Identity struct {
	Email        string `json:"email"`
	IdentityHash string `json:"identityHash"`
	InstanceID   string `json:"instanceId"`
	Hostname     string `json:"hostname"`
}

// TunnelStatus reports whether the peer fabric is enabled and, if so, the
// local identity.
type TunnelStatus struct {
	Enabled  bool      `json:"enabled"`
	Identity *Identity `json:"identity,omitempty"`
}
