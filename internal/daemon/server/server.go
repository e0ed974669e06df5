// Package server exposes the daemon's IPC surface: JSON request/response
// endpoints plus a server-sent-events stream, served over a unix socket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/internal/supervisor"
	"github.com/grovetools/weave/internal/tunnel"
	"github.com/grovetools/weave/pkg/events"
	"github.com/grovetools/weave/pkg/models"
	"github.com/sirupsen/logrus"
)

// Server manages the daemon's HTTP server over a unix socket.
type Server struct {
	logger     *logrus.Entry
	server     *http.Server
	supervisor *supervisor.Supervisor
	manager    *tunnel.Manager

	// configEvents carries config_reload notifications into the SSE stream.
	configEvents *events.Bus

	mu         sync.Mutex
	importable map[string]models.DiscoveredSession
}

// New creates a new Server instance.
func New(sup *supervisor.Supervisor, manager *tunnel.Manager, logger *logrus.Entry) *Server {
	return &Server{
		logger:       logger,
		supervisor:   sup,
		manager:      manager,
		configEvents: events.NewBus(),
		importable:   make(map[string]models.DiscoveredSession),
	}
}

// NotifyConfigReload broadcasts a config_reload event to SSE subscribers.
func (s *Server) NotifyConfigReload(file string) {
	s.configEvents.Publish(models.Event{Type: models.EventConfigReload, ConfigFile: file})
}

// AddImportable registers a watcher-discovered session and announces it.
func (s *Server) AddImportable(d models.DiscoveredSession) {
	s.mu.Lock()
	s.importable[d.WorkingDir] = d
	s.mu.Unlock()
	copied := d
	s.configEvents.Publish(models.Event{Type: models.EventSessionDiscovered, Discovered: &copied})
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.server = &http.Server{Handler: s.routes()}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return s.server.Serve(listener)
}

// routes builds the IPC request surface.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Session API
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleRemoveSession)
	mux.HandleFunc("POST /api/sessions/{id}/close", s.handleCloseSession)
	mux.HandleFunc("POST /api/sessions/{id}/restart", s.handleRestartSession)
	mux.HandleFunc("POST /api/sessions/{id}/write", s.handleWriteSession)
	mux.HandleFunc("POST /api/sessions/{id}/resize", s.handleResizeSession)
	mux.HandleFunc("GET /api/importable", s.handleGetImportable)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/load", s.handleLoadFromFile)
	mux.HandleFunc("POST /api/dialogs/{dialog}", s.handleDialog)

	// Tunnel API
	mux.HandleFunc("GET /api/tunnel/status", s.handleTunnelStatus)
	mux.HandleFunc("GET /api/tunnel/hosts", s.handleTunnelHosts)
	mux.HandleFunc("GET /api/tunnel/connected", s.handleTunnelConnected)
	mux.HandleFunc("POST /api/tunnel/connect", s.handleTunnelConnect)
	mux.HandleFunc("POST /api/tunnel/disconnect", s.handleTunnelDisconnect)
	mux.HandleFunc("GET /api/tunnel/{instanceId}/sessions", s.handleTunnelListSessions)
	mux.HandleFunc("POST /api/tunnel/{instanceId}/sessions", s.handleTunnelCreateSession)
	mux.HandleFunc("POST /api/tunnel/{instanceId}/sessions/{sid}/close", s.handleTunnelCloseSession)
	mux.HandleFunc("POST /api/tunnel/{instanceId}/sessions/{sid}/write", s.handleTunnelWriteSession)
	mux.HandleFunc("POST /api/tunnel/{instanceId}/sessions/{sid}/resize", s.handleTunnelResizeSession)

	// Event stream
	mux.HandleFunc("GET /api/events", s.handleStreamEvents)

	return mux
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleStreamEvents provides Server-Sent Events for real-time updates.
// The stream merges local supervisor events, tunnel events, and config
// reload notifications.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	localCh := s.supervisor.Bus().Subscribe()
	defer s.supervisor.Bus().Unsubscribe(localCh)
	tunnelCh := s.manager.Bus().Subscribe()
	defer s.manager.Bus().Unsubscribe(tunnelCh)
	configCh := s.configEvents.Subscribe()
	defer s.configEvents.Unsubscribe(configCh)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	write := func(event models.Event) {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.WithError(err).Error("Failed to marshal event")
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case event := <-localCh:
			write(event)
		case event := <-tunnelCh:
			write(event)
		case event := <-configCh:
			write(event)
		}
	}
}

// writeJSON renders a success payload.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError renders a WeaveError with a status derived from its code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeSessionNotFound, errors.ErrCodeHostNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeLoadFileInvalid, errors.ErrCodeSessionNotClosed:
		status = http.StatusBadRequest
	case errors.ErrCodeDialogUnsupported:
		status = http.StatusNotImplemented
	case errors.ErrCodeTunnelDisabled:
		status = http.StatusServiceUnavailable
	case errors.ErrCodeNotConnected:
		status = http.StatusConflict
	case errors.ErrCodeRPCTimeout:
		status = http.StatusGatewayTimeout
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if weaveErr, ok := err.(*errors.WeaveError); ok {
		_, _ = w.Write([]byte(weaveErr.ToJSON()))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
