// Package pidfile provides PID file management for the weave daemon.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Acquire claims the pidfile for this process. A live PID already in the
// file means another daemon owns it; a dead or malformed one is stale and
// gets overwritten.
func Acquire(path string) error {
	if pid, err := Read(path); err == nil && alive(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file.
func Release(path string) error {
	return os.Remove(path)
}

// Read returns the PID stored in the file.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("malformed pidfile %s: %w", path, err)
	}
	return pid, nil
}

// IsRunning checks if the daemon described by the pidfile is active. A
// missing pidfile simply means no daemon.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	switch {
	case err == nil:
		return alive(pid), pid, nil
	case os.IsNotExist(err):
		return false, 0, nil
	default:
		return false, 0, err
	}
}

// alive probes a process with the null signal. EPERM still counts as
// alive: the process exists, it just belongs to another user.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	sigErr := proc.Signal(syscall.Signal(0))
	return sigErr == nil || errors.Is(sigErr, syscall.EPERM)
}
