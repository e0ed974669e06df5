package pathutil

import (
	"os/exec"
	"strings"
)

// GitRoot returns the repository root for the given directory, or "" when
// the directory is not inside a git worktree. In a linked worktree this is
// that worktree's own top-level directory, so worktrees of one repository do
// not share a root.
func GitRoot(dir string) string {
	out, err := runGit(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return ""
	}
	return out
}

// GitBranch returns the current branch name for the given directory, or ""
// outside a repository or on a detached HEAD.
func GitBranch(dir string) string {
	out, err := runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || out == "HEAD" {
		return ""
	}
	return out
}

// GitGlobalEmail returns the configured global user.email, or "" when unset.
func GitGlobalEmail() string {
	out, err := runGit("", "config", "--global", "user.email")
	if err != nil {
		return ""
	}
	return out
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
