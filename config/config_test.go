package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/weave/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesKnownSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.yml")
	content := `
logging:
  level: debug
restore:
  enabled: false
  lazy: true
tunnel:
  disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.RestoreEnabled())
	assert.True(t, cfg.Restore.Lazy)
	assert.True(t, cfg.Tunnel.Disabled)
}

func TestRestoreEnabledDefaultsTrue(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.RestoreEnabled())
}

func TestUnmarshalExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.yml")
	content := `
frontend:
  theme: dark
  refresh_ms: 250
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	var frontendCfg struct {
		Theme     string `yaml:"theme"`
		RefreshMs int    `yaml:"refresh_ms"`
	}
	require.NoError(t, cfg.UnmarshalExtension("frontend", &frontendCfg))
	assert.Equal(t, "dark", frontendCfg.Theme)
	assert.Equal(t, 250, frontendCfg.RefreshMs)

	// A missing key leaves the target zero-valued.
	var missing struct {
		Theme string `yaml:"theme"`
	}
	require.NoError(t, cfg.UnmarshalExtension("absent", &missing))
	assert.Empty(t, missing.Theme)
}

func TestParseLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	content := `{"sessions":[{"type":"claude","folder":"~/p"},{"type":"copilot","folder":"~/p","name":"helper"}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	file, err := ParseLoadFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sessions, 2)
	assert.Equal(t, models.KindClaude, file.Sessions[0].Type)
	assert.Equal(t, "~/p", file.Sessions[0].Folder)
	assert.Equal(t, "helper", file.Sessions[1].Name)
}

func TestParseLoadFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing sessions", `{}`},
		{"unknown kind", `{"sessions":[{"type":"vim","folder":"~/p"}]}`},
		{"missing folder", `{"sessions":[{"type":"claude"}]}`},
		{"empty folder", `{"sessions":[{"type":"claude","folder":""}]}`},
		{"not json", `sessions: yaml`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "load.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := ParseLoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestParseLoadFileMissingFile(t *testing.T) {
	_, err := ParseLoadFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
