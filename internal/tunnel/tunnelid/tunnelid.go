// Package tunnelid is the single site that applies and reverses the remote
// session id transform used at the IPC boundary. Inside the peer fabric,
// session ids stay in their remote form.
package tunnelid

import (
	"fmt"
	"strings"
)

// Prefix marks remote-owned session ids crossing the IPC boundary.
const Prefix = "tunnel:"

// Make wraps a remote session id: tunnel:<peer-instance-id>:<remote-id>.
func Make(instanceID, remoteID string) string {
	return Prefix + instanceID + ":" + remoteID
}

// IsTunnelID reports whether the id carries the remote prefix.
func IsTunnelID(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Parse splits a tunnel id into its peer instance id and remote session id.
func Parse(s string) (instanceID, remoteID string, err error) {
	if !IsTunnelID(s) {
		return "", "", fmt.Errorf("not a tunnel id: %s", s)
	}
	rest := strings.TrimPrefix(s, Prefix)
	idx := strings.Index(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("malformed tunnel id: %s", s)
	}
	return rest[:idx], rest[idx+1:], nil
}
