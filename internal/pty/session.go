// Package pty wraps a child pseudo-terminal running an interactive shell that is
// handed an assistant launch command once the shell prompt settles.
package pty

import (
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
)

const (
	defaultCols = 120
	defaultRows = 30

	// idleGap is the output silence that marks the shell prompt as ready.
	idleGap = 300 * time.Millisecond
	// launchFallback forces the launch write when a shell never goes quiet.
	launchFallback = 5 * time.Second
	// killGrace is the pause between the graceful and forceful signals.
	killGrace = 50 * time.Millisecond
)

// Config describes a session to spawn.
type Config struct {
	// WorkingDir is the directory the shell starts in. A missing directory
	// falls back to the user's home.
	WorkingDir string
	// LaunchCommand is written to the shell once its prompt is idle.
	LaunchCommand string
	Cols          uint16
	Rows          uint16
}

// Session is a single supervised PTY. Callbacks are registered before Start
// and are never invoked after Kill.
type Session struct {
	cfg    Config
	logger *logrus.Entry

	onData func([]byte)
	onExit func(code int, signal string)

	mu            sync.Mutex
	ptmx          *os.File
	cmd           *exec.Cmd
	killed        bool
	exited        bool
	launched      bool
	idleTimer     *time.Timer
	fallbackTimer *time.Timer
}

// New creates an unstarted session.
func New(cfg Config, logger *logrus.Entry) *Session {
	if cfg.Cols == 0 {
		cfg.Cols = defaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = defaultRows
	}
	return &Session{cfg: cfg, logger: logger}
}

// OnData registers the output callback. Must be called before Start.
func (s *Session) OnData(fn func([]byte)) { s.onData = fn }

// OnExit registers the exit callback. Must be called before Start.
func (s *Session) OnExit(fn func(code int, signal string)) { s.onExit = fn }

// Start spawns the interactive shell and begins streaming output. The
// launch command is written after the first idle gap in shell output, or
// after the fallback timeout, whichever comes first. This keeps slow shell
// startup scripts from eating the command.
func (s *Session) Start() error {
	dir := s.cfg.WorkingDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		home, homeErr := os.UserHomeDir()
		if homeErr == nil {
			s.logger.WithFields(logrus.Fields{"dir": dir, "fallback": home}).
				Warn("Working directory does not exist, falling back to home")
			dir = home
		}
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		if runtime.GOOS == "windows" {
			shell = "powershell.exe"
		} else {
			shell = "/bin/bash"
		}
	}

	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: s.cfg.Cols, Rows: s.cfg.Rows})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ptmx = ptmx
	s.cmd = cmd
	if s.cfg.LaunchCommand != "" {
		s.fallbackTimer = time.AfterFunc(launchFallback, s.writeLaunchCommand)
	}
	s.mu.Unlock()

	go s.readLoop()
	return nil
}

// readLoop is the single reader for this PTY. It forwards chunks to the
// data callback and reports process exit when the stream ends.
func (s *Session) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.handleData(chunk)
		}
		if err != nil {
			s.handleEOF(err)
			return
		}
	}
}

func (s *Session) handleData(chunk []byte) {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	if !s.launched && s.cfg.LaunchCommand != "" {
		// Each burst of shell output pushes the launch out by the idle gap.
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		s.idleTimer = time.AfterFunc(idleGap, s.writeLaunchCommand)
	}
	onData := s.onData
	s.mu.Unlock()

	if onData != nil {
		onData(chunk)
	}
}

func (s *Session) handleEOF(readErr error) {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return
	}
	s.exited = true
	s.stopTimersLocked()
	cmd := s.cmd
	killed := s.killed
	onExit := s.onExit
	s.mu.Unlock()

	if readErr != nil && readErr != io.EOF {
		s.logger.WithError(readErr).Debug("PTY read ended")
	}

	code := 0
	signalName := ""
	if cmd != nil {
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
					if status.Signaled() {
						signalName = status.Signal().String()
					}
					code = status.ExitStatus()
				} else {
					code = exitErr.ExitCode()
				}
			} else {
				code = -1
			}
		}
	}

	// Post-kill emission is suppressed.
	if !killed && onExit != nil {
		onExit(code, signalName)
	}
}

// writeLaunchCommand writes the assistant launch command exactly once.
func (s *Session) writeLaunchCommand() {
	s.mu.Lock()
	if s.killed || s.launched || s.ptmx == nil {
		s.mu.Unlock()
		return
	}
	s.launched = true
	s.stopTimersLocked()
	ptmx := s.ptmx
	s.mu.Unlock()

	if _, err := ptmx.Write([]byte(s.cfg.LaunchCommand + "\r")); err != nil {
		s.logger.WithError(err).Warn("Failed to write launch command")
	}
}

// Write forwards bytes to the PTY. No-op after termination.
func (s *Session) Write(p []byte) {
	s.mu.Lock()
	ptmx := s.ptmx
	dead := s.killed || s.exited
	s.mu.Unlock()
	if dead || ptmx == nil {
		return
	}
	if _, err := ptmx.Write(p); err != nil {
		s.logger.WithError(err).Debug("PTY write failed")
	}
}

// Resize adjusts the terminal size. No-op after termination.
func (s *Session) Resize(cols, rows uint16) {
	s.mu.Lock()
	ptmx := s.ptmx
	dead := s.killed || s.exited
	s.mu.Unlock()
	if dead || ptmx == nil || cols == 0 || rows == 0 {
		return
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		s.logger.WithError(err).Debug("PTY resize failed")
	}
}

// Running reports whether the child process is still attached.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptmx != nil && !s.killed && !s.exited
}

// Kill terminates the session. It is idempotent: it marks the session
// killed, cancels pending timers, detaches callbacks, and signals the child
// gracefully, then forcefully after a short grace period.
func (s *Session) Kill() {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	s.killed = true
	s.stopTimersLocked()
	s.onData = nil
	s.onExit = nil
	cmd := s.cmd
	ptmx := s.ptmx
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		proc := cmd.Process
		_ = proc.Signal(syscall.SIGTERM)
		time.AfterFunc(killGrace, func() {
			_ = proc.Kill()
		})
	}
	if ptmx != nil {
		_ = ptmx.Close()
	}
}

func (s *Session) stopTimersLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.fallbackTimer != nil {
		s.fallbackTimer.Stop()
		s.fallbackTimer = nil
	}
}
