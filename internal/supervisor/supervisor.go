// Package supervisor owns all local sessions: lifecycle, persistence,
// metadata extraction, and event fan-out.
package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/internal/metadata"
	"github.com/grovetools/weave/internal/pty"
	"github.com/grovetools/weave/internal/store"
	"github.com/grovetools/weave/pkg/events"
	"github.com/grovetools/weave/pkg/models"
	"github.com/grovetools/weave/util/pathutil"
	"github.com/sirupsen/logrus"
)

// PTY is the supervisor's view of a pseudo-terminal session.
type PTY interface {
	Start() error
	Write(p []byte)
	Resize(cols, rows uint16)
	Kill()
	Running() bool
	OnData(fn func([]byte))
	OnExit(fn func(code int, signal string))
}

// managed pairs a session record with its PTY handle. The handle is nil
// exactly when the status is closed.
type managed struct {
	session models.Session
	pty     PTY
}

// Options configures a Supervisor.
type Options struct {
	// LazyRestore makes RestoreSessions create closed records without
	// spawning PTYs; Restart activates them on first use.
	LazyRestore bool
	// NewPTY overrides PTY construction, primarily for tests.
	NewPTY func(cfg pty.Config, logger *logrus.Entry) PTY
}

// Supervisor is the source of truth for local sessions.
type Supervisor struct {
	logger *logrus.Entry
	store  *store.Store
	bus    *events.Bus
	opts   Options

	mu       sync.Mutex
	sessions map[string]*managed
	counters map[models.SessionKind]int
	shutdown bool
}

// New creates a Supervisor over the given persistence store.
func New(st *store.Store, logger *logrus.Entry, opts Options) *Supervisor {
	if opts.NewPTY == nil {
		opts.NewPTY = func(cfg pty.Config, logger *logrus.Entry) PTY {
			return pty.New(cfg, logger)
		}
	}
	return &Supervisor{
		logger:   logger,
		store:    st,
		bus:      events.NewBus(),
		opts:     opts,
		sessions: make(map[string]*managed),
		counters: make(map[models.SessionKind]int),
	}
}

// Bus returns the supervisor's broadcast event stream.
func (s *Supervisor) Bus() *events.Bus {
	return s.bus
}

// CreateRequest describes a session to create.
type CreateRequest struct {
	Kind       models.SessionKind
	WorkingDir string
	Name       string
	Resume     bool
	// ID, when set, restores an existing record instead of creating a new
	// one; no persistence entry is written.
	ID string
}

// Create materializes a session: record, persistence (for fresh creates),
// PTY spawn, and handler wiring. Spawn failure is surfaced to the caller
// and nothing is registered.
func (s *Supervisor) Create(req CreateRequest) (models.Session, error) {
	if !req.Kind.Valid() {
		return models.Session{}, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown session kind '%s'", req.Kind))
	}

	workingDir, err := pathutil.Expand(req.WorkingDir)
	if err != nil {
		workingDir = req.WorkingDir
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return models.Session{}, errors.New(errors.ErrCodeInternal, "supervisor is shutting down")
	}

	id := req.ID
	restored := id != ""
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		return models.Session{}, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("session '%s' already exists", id))
	}

	name := req.Name
	if name == "" {
		s.counters[req.Kind]++
		name = fmt.Sprintf("%s-%d", req.Kind, s.counters[req.Kind])
	}

	session := models.Session{
		ID:     id,
		Name:   name,
		Kind:   req.Kind,
		Status: models.StatusActive,
		Metadata: models.SessionMetadata{
			WorkingDir: workingDir,
			GitRoot:    pathutil.GitRoot(workingDir),
			GitBranch:  pathutil.GitBranch(workingDir),
		},
		CreatedAt: time.Now(),
	}

	handle, err := s.spawnLocked(&session, req.Resume)
	if err != nil {
		s.mu.Unlock()
		return models.Session{}, errors.SpawnFailed(workingDir, err)
	}
	s.sessions[id] = &managed{session: session, pty: handle}
	s.mu.Unlock()

	if !restored {
		s.store.AddOrReplace(models.SavedSession{
			ID:         session.ID,
			Name:       session.Name,
			Kind:       session.Kind,
			WorkingDir: session.Metadata.WorkingDir,
		})
	}

	s.logger.WithFields(logrus.Fields{"id": id, "kind": req.Kind, "dir": workingDir}).Info("Session created")
	s.publishUpdate(session)
	return session, nil
}

// spawnLocked starts a PTY for the session and wires its handlers. Caller
// holds the supervisor lock.
func (s *Supervisor) spawnLocked(session *models.Session, resume bool) (PTY, error) {
	launch := session.Kind.LaunchCommand(resume && session.Kind.SupportsResume())
	handle := s.opts.NewPTY(pty.Config{
		WorkingDir:    session.Metadata.WorkingDir,
		LaunchCommand: launch,
	}, s.logger)

	id := session.ID
	handle.OnData(func(chunk []byte) { s.handleOutput(id, chunk) })
	handle.OnExit(func(code int, signal string) { s.handleExit(id, code, signal) })

	if err := handle.Start(); err != nil {
		return nil, err
	}
	return handle, nil
}

// handleOutput forwards a PTY chunk and applies its metadata patch. Only a
// changed field triggers a session-update event; the update observes the
// post-patch metadata of this chunk.
func (s *Supervisor) handleOutput(id string, chunk []byte) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	m, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	changed := applyPatch(&m.session.Metadata, metadata.Extract(chunk))
	session := m.session
	s.mu.Unlock()

	s.bus.Publish(models.Event{Type: models.EventSessionOutput, SessionID: id, Data: chunk})
	if changed {
		s.publishUpdate(session)
	}
}

// handleExit marks the session closed and emits session-exit followed by
// session-update.
func (s *Supervisor) handleExit(id string, code int, signal string) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	m, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	m.session.Status = models.StatusClosed
	m.pty = nil
	session := m.session
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"id": id, "code": code, "signal": signal}).Info("Session exited")
	s.bus.Publish(models.Event{Type: models.EventSessionExit, SessionID: id, ExitCode: &code})
	s.publishUpdate(session)
}

// Close kills the PTY but keeps the record and its persistence entry.
func (s *Supervisor) Close(id string) error {
	s.mu.Lock()
	m, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	handle := m.pty
	m.session.Status = models.StatusClosed
	m.pty = nil
	session := m.session
	s.mu.Unlock()

	if handle != nil {
		handle.Kill()
	}
	s.publishUpdate(session)
	return nil
}

// Remove kills the PTY, drops the record, and drops the persistence entry.
func (s *Supervisor) Remove(id string) error {
	s.mu.Lock()
	m, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	handle := m.pty
	delete(s.sessions, id)
	s.mu.Unlock()

	if handle != nil {
		handle.Kill()
	}
	s.store.Remove(id)
	return nil
}

// Restart respawns the PTY of an existing closed session, reusing its id
// and working directory and resuming the assistant where possible.
func (s *Supervisor) Restart(id string) (models.Session, error) {
	s.mu.Lock()
	m, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return models.Session{}, errors.SessionNotFound(id)
	}
	if m.session.Status != models.StatusClosed {
		s.mu.Unlock()
		return models.Session{}, errors.SessionNotClosed(id)
	}

	handle, err := s.spawnLocked(&m.session, true)
	if err != nil {
		s.mu.Unlock()
		return models.Session{}, errors.SpawnFailed(m.session.Metadata.WorkingDir, err)
	}
	m.pty = handle
	m.session.Status = models.StatusActive
	session := m.session
	s.mu.Unlock()

	s.publishUpdate(session)
	return session, nil
}

// RestoreSessions recreates sessions from persistence. With lazy restore
// enabled, records are registered closed and activated by Restart on first
// use. A single record's failure never affects the others.
func (s *Supervisor) RestoreSessions() {
	for _, saved := range s.store.Load() {
		if s.opts.LazyRestore {
			s.registerClosed(saved)
			continue
		}
		_, err := s.Create(CreateRequest{
			Kind:       saved.Kind,
			WorkingDir: saved.WorkingDir,
			Name:       saved.Name,
			Resume:     true,
			ID:         saved.ID,
		})
		if err != nil {
			s.logger.WithError(err).WithField("id", saved.ID).Warn("Failed to restore session")
		}
	}
}

// registerClosed adds a closed record for a saved session without a PTY.
func (s *Supervisor) registerClosed(saved models.SavedSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[saved.ID]; exists {
		return
	}
	s.sessions[saved.ID] = &managed{session: models.Session{
		ID:     saved.ID,
		Name:   saved.Name,
		Kind:   saved.Kind,
		Status: models.StatusClosed,
		Metadata: models.SessionMetadata{
			WorkingDir: saved.WorkingDir,
		},
		CreatedAt: time.Now(),
	}}
}

// Write forwards bytes to a session's PTY. No-op if the PTY is not running.
func (s *Supervisor) Write(id string, data []byte) {
	s.mu.Lock()
	m, ok := s.sessions[id]
	var handle PTY
	if ok {
		handle = m.pty
	}
	s.mu.Unlock()
	if handle != nil {
		handle.Write(data)
	}
}

// Resize adjusts a session's PTY size. No-op if the PTY is not running.
func (s *Supervisor) Resize(id string, cols, rows uint16) {
	s.mu.Lock()
	m, ok := s.sessions[id]
	var handle PTY
	if ok {
		handle = m.pty
	}
	s.mu.Unlock()
	if handle != nil {
		handle.Resize(cols, rows)
	}
}

// List returns all session records.
func (s *Supervisor) List() []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Session, 0, len(s.sessions))
	for _, m := range s.sessions {
		result = append(result, m.session)
	}
	return result
}

// Get returns one session record.
func (s *Supervisor) Get(id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[id]
	if !ok {
		return models.Session{}, errors.SessionNotFound(id)
	}
	return m.session, nil
}

// HasWorkingDir reports whether any session already represents the given
// working directory. The auto-discovery watcher uses it for deduplication.
func (s *Supervisor) HasWorkingDir(dir string) bool {
	key, err := pathutil.CanonicalKey(dir)
	if err != nil {
		key = dir
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.sessions {
		sessionKey, err := pathutil.CanonicalKey(m.session.Metadata.WorkingDir)
		if err != nil {
			sessionKey = m.session.Metadata.WorkingDir
		}
		if sessionKey == key {
			return true
		}
	}
	return false
}

// CloseAll sets the shutdown flag, which suppresses all further event
// emissions, then kills every PTY. Suppression protects against writes to a
// destroyed frontend channel.
func (s *Supervisor) CloseAll() {
	s.mu.Lock()
	s.shutdown = true
	handles := make([]PTY, 0, len(s.sessions))
	for _, m := range s.sessions {
		if m.pty != nil {
			handles = append(handles, m.pty)
			m.pty = nil
		}
		m.session.Status = models.StatusClosed
	}
	s.mu.Unlock()

	for _, handle := range handles {
		handle.Kill()
	}
}

func (s *Supervisor) publishUpdate(session models.Session) {
	s.mu.Lock()
	suppressed := s.shutdown
	s.mu.Unlock()
	if suppressed {
		return
	}
	copied := session
	s.bus.Publish(models.Event{Type: models.EventSessionUpdate, SessionID: session.ID, Session: &copied})
}

// applyPatch copies set patch fields into the metadata and reports whether
// any field actually changed.
func applyPatch(meta *models.SessionMetadata, patch metadata.Patch) bool {
	changed := false
	if patch.Model != nil && meta.Model != *patch.Model {
		meta.Model = *patch.Model
		changed = true
	}
	if patch.ContextUsed != nil && meta.ContextUsed != *patch.ContextUsed {
		meta.ContextUsed = *patch.ContextUsed
		changed = true
	}
	if patch.LastMessage != nil && meta.LastMessage != *patch.LastMessage {
		meta.LastMessage = *patch.LastMessage
		changed = true
	}
	if patch.WaitingForInput != nil && meta.WaitingForInput != *patch.WaitingForInput {
		meta.WaitingForInput = *patch.WaitingForInput
		changed = true
	}
	return changed
}
