package watcher

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/weave/pkg/models"
)

// historyState snapshots the Claude Code history log between polls so each
// cycle reads only the appended suffix.
type historyState struct {
	offset  int64
	size    int64
	modTime time.Time
	primed  bool
}

// historyEntry is one line of the append-only history JSONL.
type historyEntry struct {
	SessionID string `json:"sessionId"`
	Project   string `json:"project"`
	Display   string `json:"display"`
	Timestamp int64  `json:"timestamp"`
}

func (w *Watcher) pollHistory() {
	path := w.cfg.HistoryPath
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if w.history.primed && info.Size() == w.history.size && info.ModTime().Equal(w.history.modTime) {
		return
	}

	if info.Size() < w.history.offset {
		// Truncated: reset and skip this cycle; the next one rereads from
		// the start and dedup absorbs anything already surfaced.
		w.logger.Debug("History log truncated, resetting offset")
		w.history = historyState{}
		return
	}

	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	if w.history.offset > 0 {
		if _, err := file.Seek(w.history.offset, io.SeekStart); err != nil {
			w.history = historyState{}
			return
		}
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry historyEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Project == "" {
			continue
		}

		w.consider(models.DiscoveredSession{
			SessionID:   entry.SessionID,
			Kind:        models.KindClaude,
			WorkingDir:  entry.Project,
			Name:        filepath.Base(entry.Project),
			LastMessage: entry.Display,
			Timestamp:   time.UnixMilli(entry.Timestamp),
		})
	}

	w.history.offset = info.Size()
	w.history.size = info.Size()
	w.history.modTime = info.ModTime()
	w.history.primed = true
}
