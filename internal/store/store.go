// Package store persists the saved-session list to sessions.json.
//
// Persistence is best-effort: errors are logged and never surfaced to the
// supervisor. The file is a human-inspectable JSON array rewritten in full
// on every change.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/grovetools/weave/pkg/models"
	"github.com/sirupsen/logrus"
)

// Store reads and writes the saved-session file. All writes are full-file
// rewrites; only the supervisor accesses the store.
type Store struct {
	path   string
	logger *logrus.Entry
}

// New creates a Store backed by the given file path.
func New(path string, logger *logrus.Entry) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the saved-session list. A missing or unparseable file yields an
// empty list. Records are deduplicated by id with the later occurrence
// winning; if deduplication changed the list, the file is rewritten.
func (s *Store) Load() []models.SavedSession {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to read sessions file")
		}
		return []models.SavedSession{}
	}

	var records []models.SavedSession
	if err := json.Unmarshal(content, &records); err != nil {
		s.logger.WithError(err).Warn("Sessions file is corrupt, treating as empty")
		return []models.SavedSession{}
	}

	deduped := dedupeByID(records)
	if len(deduped) != len(records) {
		s.logger.WithField("removed", len(records)-len(deduped)).Info("Removed duplicate session records")
		s.Save(deduped)
	}
	return deduped
}

// Save writes the full list, creating the parent directory if missing. The
// list is written to a temporary file that then replaces sessions.json.
func (s *Store) Save(records []models.SavedSession) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.logger.WithError(err).Error("Failed to create sessions directory")
		return
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal sessions")
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.logger.WithError(err).Error("Failed to write sessions file")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.WithError(err).Error("Failed to replace sessions file")
	}
}

// AddOrReplace upserts a record by id.
func (s *Store) AddOrReplace(record models.SavedSession) {
	records := s.Load()
	replaced := false
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}
	s.Save(records)
}

// Remove drops the record with the given id, if present.
func (s *Store) Remove(id string) {
	records := s.Load()
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) != len(records) {
		s.Save(kept)
	}
}

// Update applies a patch function to the record with the given id.
func (s *Store) Update(id string, patch func(*models.SavedSession)) {
	records := s.Load()
	for i := range records {
		if records[i].ID == id {
			patch(&records[i])
			s.Save(records)
			return
		}
	}
}

// dedupeByID keeps the last occurrence of each id, placed at the position
// where that id was first seen.
func dedupeByID(records []models.SavedSession) []models.SavedSession {
	index := make(map[string]int, len(records))
	var deduped []models.SavedSession
	for _, r := range records {
		if i, seen := index[r.ID]; seen {
			deduped[i] = r
			continue
		}
		index[r.ID] = len(deduped)
		deduped = append(deduped, r)
	}
	if deduped == nil {
		return []models.SavedSession{}
	}
	return deduped
}
