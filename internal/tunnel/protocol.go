// Package tunnel implements the LAN peer fabric: identity-scoped discovery,
// the authenticated encrypted session protocol, and the manager that makes
// remote sessions addressable next to local ones.
package tunnel

import "github.com/grovetools/weave/pkg/models"

// Frame types. Key exchange travels in plaintext; every frame after the
// shared secret is derived is an independently encrypted JSON object.
const (
	TypeKeyExchange  = "key:exchange"
	TypeAuthRequest  = "auth:request"
	TypeAuthApproved = "auth:approved"
	TypeAuthDenied   = "auth:denied"
	TypeDisconnect   = "disconnect"

	TypeSessionList           = "session:list"
	TypeSessionListResponse   = "session:list:response"
	TypeSessionCreate         = "session:create"
	TypeSessionCreateResponse = "session:create:response"
	TypeSessionClose          = "session:close"
	TypeSessionCloseResponse  = "session:close:response"
	TypeSessionWrite          = "session:write"
	TypeSessionResize         = "session:resize"

	TypeSessionOutput = "session:output"
	TypeSessionUpdate = "session:update"
	TypeSessionExit   = "session:exit"
)

// Message is the wire frame for the peer protocol. Only the fields relevant
// to Type are populated.
type Message struct {
	Type string `json:"type"`

	// Key exchange
	PublicKey string `json:"publicKey,omitempty"`

	// Auth
	IdentityHash string `json:"identityHash,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
	InstanceID   string `json:"instanceId,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// RPC correlation; echoed on every non-oneway reply.
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`

	// Session operations
	SessionID  string             `json:"sessionId,omitempty"`
	Kind       models.SessionKind `json:"kind,omitempty"`
	WorkingDir string             `json:"workingDir,omitempty"`
	Name       string             `json:"name,omitempty"`
	Data       []byte             `json:"data,omitempty"`
	Cols       uint16             `json:"cols,omitempty"`
	Rows       uint16             `json:"rows,omitempty"`

	// Payloads
	Sessions []models.Session `json:"sessions,omitempty"`
	Session  *models.Session  `json:"session,omitempty"`
	ExitCode *int             `json:"exitCode,omitempty"`
}

// BeaconMagic identifies weave UDP beacons; datagrams with any other magic
// are discarded.
const BeaconMagic = "TM_BEACON_V1"

// Beacon is the periodic UDP broadcast payload.
type Beacon struct {
	Magic        string `json:"magic"`
	InstanceID   string `json:"instanceId"`
	Hostname     string `json:"hostname"`
	IdentityHash string `json:"identityHash"`
	Port         int    `json:"port"`
}
