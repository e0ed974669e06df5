package paths

import (
	"os"
	"path/filepath"
)

// ClaudeDir returns the Claude Code home directory (~/.claude).
// CLAUDE_CONFIG_DIR overrides it, matching the CLI's own behavior.
func ClaudeDir() string {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".claude")
	}
	return ""
}

// ClaudeHistoryPath returns the append-only Claude Code history log.
func ClaudeHistoryPath() string {
	base := ClaudeDir()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "history.jsonl")
}

// ClaudeProjectsDir returns the per-project transcript directory.
// Each child is an encoded working-directory name containing
// <sessionId>.jsonl transcripts.
func ClaudeProjectsDir() string {
	base := ClaudeDir()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "projects")
}

// CopilotDir returns the GitHub Copilot CLI home directory (~/.copilot).
func CopilotDir() string {
	if dir := os.Getenv("COPILOT_CONFIG_DIR"); dir != "" {
		return dir
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".copilot")
	}
	return ""
}

// CopilotSessionStateDir returns the Copilot session-state directory.
// Each child is a session UUID containing a workspace.yaml.
func CopilotSessionStateDir() string {
	base := CopilotDir()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "session-state")
}
