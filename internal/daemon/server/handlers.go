package server

import (
	"encoding/json"
	"net/http"

	"github.com/grovetools/weave/config"
	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/internal/supervisor"
	"github.com/grovetools/weave/internal/tunnel/tunnelid"
	"github.com/grovetools/weave/pkg/models"
	"github.com/grovetools/weave/util/pathutil"
)

type createSessionRequest struct {
	Kind       models.SessionKind `json:"kind"`
	WorkingDir string             `json:"workingDir"`
	Name       string             `json:"name,omitempty"`
}

type writeRequest struct {
	Data []byte `json:"data"`
}

type resizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

type instanceRequest struct {
	InstanceID string `json:"instanceId"`
}

type importRequest struct {
	Project string `json:"project"`
	Name    string `json:"name,omitempty"`
}

type loadRequest struct {
	Path string `json:"path"`
}

type loadResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.supervisor.Create(supervisor.CreateRequest{
		Kind:       req.Kind,
		WorkingDir: req.WorkingDir,
		Name:       req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.supervisor.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.Remove(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if tunnelid.IsTunnelID(id) {
		instanceID, remoteID, err := tunnelid.Parse(id)
		if err != nil {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, err.Error()))
			return
		}
		if err := s.manager.CloseRemoteSession(instanceID, remoteID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
		return
	}
	if err := s.supervisor.Close(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.supervisor.Restart(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleWriteSession is oneway: input is forwarded and the request is
// acknowledged without waiting. Tunnel ids route to the owning peer.
func (s *Server) handleWriteSession(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if tunnelid.IsTunnelID(id) {
		instanceID, remoteID, err := tunnelid.Parse(id)
		if err != nil {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, err.Error()))
			return
		}
		if err := s.manager.WriteRemoteSession(instanceID, remoteID, req.Data); err != nil {
			writeError(w, err)
			return
		}
	} else {
		s.supervisor.Write(id, req.Data)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResizeSession(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if tunnelid.IsTunnelID(id) {
		instanceID, remoteID, err := tunnelid.Parse(id)
		if err != nil {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, err.Error()))
			return
		}
		if err := s.manager.ResizeRemoteSession(instanceID, remoteID, req.Cols, req.Rows); err != nil {
			writeError(w, err)
			return
		}
	} else {
		s.supervisor.Resize(id, req.Cols, req.Rows)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetImportable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	result := make([]models.DiscoveredSession, 0, len(s.importable))
	for _, d := range s.importable {
		result = append(result, d)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, result)
}

// handleImport materializes a previously discovered session.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	discovered, ok := s.importable[req.Project]
	s.mu.Unlock()
	if !ok {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "no importable session for project"))
		return
	}

	name := req.Name
	if name == "" {
		name = discovered.Name
	}
	session, err := s.supervisor.Create(supervisor.CreateRequest{
		Kind:       discovered.Kind,
		WorkingDir: discovered.WorkingDir,
		Name:       name,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	delete(s.importable, req.Project)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, session)
}

// handleLoadFromFile bulk-creates sessions from a validated JSON file.
// (kind, folder) pairs that already exist are skipped and counted.
func (s *Server) handleLoadFromFile(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	file, err := config.ParseLoadFile(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	existing := make(map[string]bool)
	for _, session := range s.supervisor.List() {
		existing[string(session.Kind)+"\x00"+session.Metadata.WorkingDir] = true
	}

	var result loadResult
	for _, entry := range file.Sessions {
		folder, err := pathutil.Expand(entry.Folder)
		if err != nil {
			folder = entry.Folder
		}
		key := string(entry.Type) + "\x00" + folder
		if existing[key] {
			result.Skipped++
			continue
		}
		if _, err := s.supervisor.Create(supervisor.CreateRequest{
			Kind:       entry.Type,
			WorkingDir: folder,
			Name:       entry.Name,
		}); err != nil {
			s.logger.WithError(err).WithField("folder", folder).Warn("Bulk-load session failed")
			result.Skipped++
			continue
		}
		existing[key] = true
		result.Created++
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDialog reports that native dialogs need a frontend; the daemon is
// headless.
func (s *Server) handleDialog(w http.ResponseWriter, r *http.Request) {
	writeError(w, errors.DialogUnsupported(r.PathValue("dialog")))
}

func (s *Server) handleTunnelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.GetStatus())
}

func (s *Server) handleTunnelHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.manager.GetDiscoveredHosts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleTunnelConnected(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.manager.GetConnectedHosts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleTunnelConnect(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.manager.Connect(req.InstanceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

func (s *Server) handleTunnelDisconnect(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.manager.Disconnect(req.InstanceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}

// handleTunnelListSessions returns a peer's sessions with the tunnel-id
// transform applied; this handler is part of the only site that applies it.
func (s *Server) handleTunnelListSessions(w http.ResponseWriter, r *http.Request) {
	instanceID := r.PathValue("instanceId")
	sessions, err := s.manager.ListRemoteSessions(instanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range sessions {
		sessions[i].ID = tunnelid.Make(instanceID, sessions[i].ID)
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleTunnelCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	instanceID := r.PathValue("instanceId")
	session, err := s.manager.CreateRemoteSession(instanceID, req.Kind, req.WorkingDir, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	session.ID = tunnelid.Make(instanceID, session.ID)
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleTunnelCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.CloseRemoteSession(r.PathValue("instanceId"), r.PathValue("sid")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func (s *Server) handleTunnelWriteSession(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.manager.WriteRemoteSession(r.PathValue("instanceId"), r.PathValue("sid"), req.Data); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTunnelResizeSession(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.manager.ResizeRemoteSession(r.PathValue("instanceId"), r.PathValue("sid"), req.Cols, req.Rows); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
