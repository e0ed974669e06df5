package watcher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/weave/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

// collectingWatcher builds a watcher whose polls run manually and whose
// emits are captured.
type collectingWatcher struct {
	*Watcher
	emitted []models.DiscoveredSession
}

func newCollectingWatcher(t *testing.T, cfg Config) *collectingWatcher {
	t.Helper()
	cw := &collectingWatcher{}
	cfg.OnDiscovered = func(d models.DiscoveredSession) {
		cw.emitted = append(cw.emitted, d)
	}
	cw.Watcher = New(cfg, testLogger())
	return cw
}

func writeHistory(t *testing.T, path string, entries ...map[string]interface{}) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	for _, e := range entries {
		line, err := json.Marshal(e)
		require.NoError(t, err)
		_, err = f.Write(append(line, '\n'))
		require.NoError(t, err)
	}
}

func historyEntryFor(sid, project string) map[string]interface{} {
	return map[string]interface{}{
		"sessionId": sid,
		"project":   project,
		"display":   "working on " + project,
		"timestamp": time.Now().UnixMilli(),
	}
}

func TestHistoryPollEmitsNovelSessions(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "proj")
	require.NoError(t, os.MkdirAll(project, 0755))
	histPath := filepath.Join(dir, "history.jsonl")
	writeHistory(t, histPath, historyEntryFor("sid-1", project))

	cw := newCollectingWatcher(t, Config{HistoryPath: histPath})
	cw.poll()

	require.Len(t, cw.emitted, 1)
	assert.Equal(t, "sid-1", cw.emitted[0].SessionID)
	assert.Equal(t, models.KindClaude, cw.emitted[0].Kind)
	assert.Equal(t, project, cw.emitted[0].WorkingDir)
}

func TestHistoryDeltaReadsOnlyNewLines(t *testing.T) {
	dir := t.TempDir()
	projectA := filepath.Join(dir, "a")
	projectB := filepath.Join(dir, "b")
	require.NoError(t, os.MkdirAll(projectA, 0755))
	require.NoError(t, os.MkdirAll(projectB, 0755))
	histPath := filepath.Join(dir, "history.jsonl")

	writeHistory(t, histPath, historyEntryFor("sid-1", projectA))
	cw := newCollectingWatcher(t, Config{HistoryPath: histPath})
	cw.poll()
	require.Len(t, cw.emitted, 1)

	writeHistory(t, histPath, historyEntryFor("sid-2", projectB))
	cw.poll()
	require.Len(t, cw.emitted, 2)
	assert.Equal(t, "sid-2", cw.emitted[1].SessionID)
}

func TestHistoryTruncationResetsAndSkips(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "p")
	require.NoError(t, os.MkdirAll(project, 0755))
	histPath := filepath.Join(dir, "history.jsonl")
	writeHistory(t, histPath, historyEntryFor("sid-1", project), historyEntryFor("sid-2", project))

	cw := newCollectingWatcher(t, Config{HistoryPath: histPath})
	cw.poll()
	require.Len(t, cw.emitted, 1, "second uuid for the same directory is absorbed")

	// Truncate the file: the cycle that observes it must emit nothing.
	require.NoError(t, os.WriteFile(histPath, nil, 0644))
	cw.poll()
	assert.Len(t, cw.emitted, 1)

	// New content after truncation is picked up on the following cycle.
	other := filepath.Join(dir, "q")
	require.NoError(t, os.MkdirAll(other, 0755))
	writeHistory(t, histPath, historyEntryFor("sid-3", other))
	cw.poll()
	assert.Len(t, cw.emitted, 2)
}

func TestDirectoryClaimAbsorbsLaterSessions(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "proj")
	require.NoError(t, os.MkdirAll(project, 0755))
	histPath := filepath.Join(dir, "history.jsonl")

	writeHistory(t, histPath, historyEntryFor("sid-1", project))
	cw := newCollectingWatcher(t, Config{HistoryPath: histPath})
	cw.poll()
	require.Len(t, cw.emitted, 1)

	// A different session id for a claimed directory never re-emits.
	writeHistory(t, histPath, historyEntryFor("sid-2", project))
	cw.poll()
	assert.Len(t, cw.emitted, 1)
}

func TestKnownDirectoriesAreNotEmitted(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "proj")
	require.NoError(t, os.MkdirAll(project, 0755))
	histPath := filepath.Join(dir, "history.jsonl")
	writeHistory(t, histPath, historyEntryFor("sid-1", project))

	cw := newCollectingWatcher(t, Config{
		HistoryPath: histPath,
		IsKnownDir:  func(d string) bool { return d == project },
	})
	cw.poll()
	assert.Empty(t, cw.emitted)
}

func TestProjectsDirDiscovery(t *testing.T) {
	base := t.TempDir()
	workingDir := filepath.Join(base, "code", "webapp")
	require.NoError(t, os.MkdirAll(workingDir, 0755))

	projectsDir := filepath.Join(base, "projects")
	encoded := filepath.Join(projectsDir, encodeForTest(workingDir))
	require.NoError(t, os.MkdirAll(encoded, 0755))

	valid := "0f8fad5b-d9cb-469f-a165-70867728950e"
	require.NoError(t, os.WriteFile(filepath.Join(encoded, valid+".jsonl"), []byte("{}\n"), 0644))
	// Non-canonical UUIDs are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(encoded, "SUMMARY.jsonl"), []byte("{}\n"), 0644))

	cw := newCollectingWatcher(t, Config{ProjectsDir: projectsDir})
	cw.poll()

	require.Len(t, cw.emitted, 1)
	assert.Equal(t, valid, cw.emitted[0].SessionID)
	assert.Equal(t, workingDir, cw.emitted[0].WorkingDir)
	assert.Equal(t, "webapp", cw.emitted[0].Name)
}

func TestCopilotDiscovery(t *testing.T) {
	base := t.TempDir()
	workingDir := filepath.Join(base, "svc")
	require.NoError(t, os.MkdirAll(workingDir, 0755))

	stateDir := filepath.Join(base, "session-state")
	sid := "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	sessionDir := filepath.Join(stateDir, sid)
	require.NoError(t, os.MkdirAll(sessionDir, 0755))

	workspace := fmt.Sprintf("cwd: %s\nsummary: refactor the retry loop\nupdated_at: 2026-08-01T10:30:00Z\n", workingDir)
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "workspace.yaml"), []byte(workspace), 0644))

	// A session without a cwd is skipped.
	incomplete := filepath.Join(stateDir, "8d9e6679-7425-40de-944b-e07fc1f90ae8")
	require.NoError(t, os.MkdirAll(incomplete, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(incomplete, "workspace.yaml"), []byte("summary: orphan\n"), 0644))

	cw := newCollectingWatcher(t, Config{CopilotDir: stateDir})
	cw.poll()

	require.Len(t, cw.emitted, 1)
	got := cw.emitted[0]
	assert.Equal(t, sid, got.SessionID)
	assert.Equal(t, models.KindCopilot, got.Kind)
	assert.Equal(t, workingDir, got.WorkingDir)
	assert.Equal(t, "refactor the retry loop", got.Name)
	assert.Equal(t, 2026, got.Timestamp.Year())
}

// encodeForTest mirrors the Claude CLI's project directory naming.
func encodeForTest(path string) string {
	out := make([]byte, len(path))
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '/', '.', '_', ' ':
			out[i] = '-'
		default:
			out[i] = path[i]
		}
	}
	return string(out)
}
