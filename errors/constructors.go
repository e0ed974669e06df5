package errors

import "fmt"

// SessionNotFound creates a session not found error
func SessionNotFound(id string) *WeaveError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", id)).
		WithDetail("id", id)
}

// SessionNotClosed creates an error for restarting a session that is still active
func SessionNotClosed(id string) *WeaveError {
	return New(ErrCodeSessionNotClosed, fmt.Sprintf("session '%s' is not closed", id)).
		WithDetail("id", id)
}

// SpawnFailed wraps a PTY spawn failure
func SpawnFailed(dir string, err error) *WeaveError {
	return Wrap(err, ErrCodeSpawnFailed, fmt.Sprintf("failed to spawn session in %s", dir)).
		WithDetail("workingDir", dir)
}

// TunnelDisabled creates an error for tunnel operations without an identity
func TunnelDisabled() *WeaveError {
	return New(ErrCodeTunnelDisabled, "tunnel is not enabled: no git user.email configured, or disabled in config")
}

// HostNotFound creates a host not found error
func HostNotFound(instanceID string) *WeaveError {
	return New(ErrCodeHostNotFound, fmt.Sprintf("host '%s' not found", instanceID)).
		WithDetail("instanceId", instanceID)
}

// NotConnected creates an error for remote operations on a disconnected host
func NotConnected(instanceID string) *WeaveError {
	return New(ErrCodeNotConnected, fmt.Sprintf("not connected to host '%s'", instanceID)).
		WithDetail("instanceId", instanceID)
}

// AuthDenied creates an authentication failure error
func AuthDenied(reason string) *WeaveError {
	return New(ErrCodeAuthDenied, fmt.Sprintf("authentication denied: %s", reason))
}

// RPCTimeout creates a request timeout error
func RPCTimeout(requestType string) *WeaveError {
	return New(ErrCodeRPCTimeout, fmt.Sprintf("request '%s' timed out", requestType)).
		WithDetail("requestType", requestType)
}

// ConnectionClosed creates an error for RPCs pending on a closed connection
func ConnectionClosed() *WeaveError {
	return New(ErrCodeConnectionClosed, "Connection closed")
}

// PortRangeExhausted creates an error for a fully occupied listen port range
func PortRangeExhausted(start, end int) *WeaveError {
	return New(ErrCodePortRangeExhausted, "all ports in range are in use").
		WithDetail("start", start).
		WithDetail("end", end)
}

// LoadFileInvalid creates an error for a malformed bulk-load file
func LoadFileInvalid(path string, err error) *WeaveError {
	return Wrap(err, ErrCodeLoadFileInvalid, fmt.Sprintf("invalid sessions file: %s", path)).
		WithDetail("path", path)
}

// DialogUnsupported creates an error for dialog requests on a headless daemon
func DialogUnsupported(dialog string) *WeaveError {
	return New(ErrCodeDialogUnsupported, fmt.Sprintf("dialog '%s' is not available without a frontend", dialog)).
		WithDetail("dialog", dialog)
}
