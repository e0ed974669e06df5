package watcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/weave/pkg/models"
	"gopkg.in/yaml.v3"
)

// copilotWorkspace is the flat key/value workspace.yaml the Copilot CLI
// writes per session.
type copilotWorkspace struct {
	CWD       string    `yaml:"cwd"`
	Summary   string    `yaml:"summary"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// pollCopilot scans the Copilot session-state directory: one child per
// session UUID, each with a workspace.yaml.
func (w *Watcher) pollCopilot() {
	dir := w.cfg.CopilotDir
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
		content, err := os.ReadFile(filepath.Join(dir, entry.Name(), "workspace.yaml"))
		if err != nil {
			continue
		}

		var ws copilotWorkspace
		if err := yaml.Unmarshal(content, &ws); err != nil {
			continue
		}
		if ws.CWD == "" {
			continue
		}

		name := ws.Summary
		if name == "" {
			name = filepath.Base(ws.CWD)
		}
		w.consider(models.DiscoveredSession{
			SessionID:   entry.Name(),
			Kind:        models.KindCopilot,
			WorkingDir:  ws.CWD,
			Name:        name,
			LastMessage: ws.Summary,
			Timestamp:   ws.UpdatedAt,
		})
	}
}
