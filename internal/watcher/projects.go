package watcher

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/grovetools/weave/pkg/models"
	"github.com/grovetools/weave/util/pathutil"
)

// canonicalUUIDRe matches the canonical 8-4-4-4-12 lowercase form; transcript
// files named anything else are ignored.
var canonicalUUIDRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// pollProjects scans the Claude Code projects directory. Each child is an
// encoded working directory holding <sessionId>.jsonl transcripts.
func (w *Watcher) pollProjects() {
	dir := w.cfg.ProjectsDir
	if dir == "" {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		workingDir := pathutil.DecodeProjectDir(entry.Name())
		if workingDir == "" {
			continue
		}

		transcripts, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		for _, transcript := range transcripts {
			name := transcript.Name()
			if !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			sessionID := strings.TrimSuffix(name, ".jsonl")
			if !canonicalUUIDRe.MatchString(sessionID) {
				continue
			}

			timestamp := time.Time{}
			if info, err := transcript.Info(); err == nil {
				timestamp = info.ModTime()
			}
			w.consider(models.DiscoveredSession{
				SessionID:  sessionID,
				Kind:       models.KindClaude,
				WorkingDir: workingDir,
				Name:       filepath.Base(workingDir),
				Timestamp:  timestamp,
			})
		}
	}
}
