// Package models defines the shared data types for weave sessions, peers,
// and events.
package models

import "time"

// SessionKind identifies which assistant a session runs.
type SessionKind string

const (
	// KindClaude is the Claude Code CLI.
	KindClaude SessionKind = "claude"
	// KindCopilot is the GitHub Copilot CLI.
	KindCopilot SessionKind = "copilot"
)

// Valid reports whether the kind is one of the supported assistants.
func (k SessionKind) Valid() bool {
	return k == KindClaude || k == KindCopilot
}

// LaunchCommand returns the shell command that starts the assistant.
// When resume is requested and the kind supports it, a failed resume falls
// back to a fresh start.
func (k SessionKind) LaunchCommand(resume bool) string {
	switch k {
	case KindClaude:
		if resume {
			return "claude --continue || claude"
		}
		return "claude"
	case KindCopilot:
		return "copilot"
	}
	return string(k)
}

// SupportsResume reports whether the assistant can continue a previous
// conversation from the launch command.
func (k SessionKind) SupportsResume() bool {
	return k == KindClaude
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	// StatusActive means the PTY is alive.
	StatusActive SessionStatus = "active"
	// StatusIdle is reserved; treated as active for persistence.
	StatusIdle SessionStatus = "idle"
	// StatusClosed means the PTY has terminated but the record is retained.
	StatusClosed SessionStatus = "closed"
)

// SessionMetadata is the extracted runtime state of a session. All fields
// have safe empty defaults.
type SessionMetadata struct {
	WorkingDir      string `json:"workingDir"`
	GitRoot         string `json:"gitRoot,omitempty"`
	GitBranch       string `json:"gitBranch,omitempty"`
	Model           string `json:"model,omitempty"`
	ContextUsed     string `json:"contextUsed,omitempty"`
	LastMessage     string `json:"lastMessage,omitempty"`
	WaitingForInput bool   `json:"waitingForInput"`
}

// Session is the central entity: one supervised assistant process.
type Session struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      SessionKind     `json:"kind"`
	Status    SessionStatus   `json:"status"`
	Metadata  SessionMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SavedSession is the on-disk persistence record. Transient runtime state
// is never persisted.
type SavedSession struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Kind       SessionKind `json:"kind"`
	WorkingDir string      `json:"workingDir"`
}

// DiscoveredSession is an un-managed session surfaced by the auto-discovery
// watcher. It is announced to the frontend, never materialized directly.
type DiscoveredSession struct {
	SessionID   string      `json:"sessionId"`
	Kind        SessionKind `json:"kind"`
	WorkingDir  string      `json:"workingDir"`
	Name        string      `json:"name"`
	LastMessage string      `json:"lastMessage,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
