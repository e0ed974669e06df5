// Package paths provides XDG-compliant path resolution for Weave.
//
// Resolution order:
// 1. WEAVE_HOME (portable root) → $WEAVE_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/weave
// 3. Platform defaults → ~/.config/weave, ~/.local/share/weave, etc.
package paths

import (
	"os"
	"path/filepath"
)

// baseDir resolves one directory category. Under WEAVE_HOME everything
// lives in a single portable root; otherwise the XDG variable or its
// home-relative default gains a weave subdirectory.
func baseDir(category, xdgVar string, defaults ...string) string {
	if root := os.Getenv("WEAVE_HOME"); root != "" {
		return filepath.Join(root, category)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, "weave")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	parts := append([]string{home}, defaults...)
	return filepath.Join(append(parts, "weave")...)
}

// ConfigDir returns the Weave configuration directory.
// Used for config files like weave.yml.
func ConfigDir() string {
	return baseDir("config", "XDG_CONFIG_HOME", ".config")
}

// DataDir returns the Weave data directory.
// Used for durable user data: saved sessions, the tunnel instance id.
func DataDir() string {
	return baseDir("data", "XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the Weave state directory.
// Used for runtime state: socket, pidfile, logs.
func StateDir() string {
	return baseDir("state", "XDG_STATE_HOME", ".local", "state")
}

// ConfigFilePath returns the path to weave.yml.
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), "weave.yml")
}

// SessionsFilePath returns the path to the saved-sessions file.
func SessionsFilePath() string {
	return filepath.Join(DataDir(), "sessions.json")
}

// InstanceIDPath returns the path to the persisted tunnel instance id.
func InstanceIDPath() string {
	return filepath.Join(DataDir(), "tunnel-instance-id")
}

// SocketPath returns the daemon's unix socket path.
func SocketPath() string {
	return filepath.Join(StateDir(), "weaved.sock")
}

// PidFilePath returns the daemon's pidfile path.
func PidFilePath() string {
	return filepath.Join(StateDir(), "weaved.pid")
}

// LogDir returns the directory for component log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}
