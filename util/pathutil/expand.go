package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Expand expands the home directory (~) and environment variables in a path.
// It returns an absolute path.
func Expand(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		path = home
	} else if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	path = os.ExpandEnv(path)

	return filepath.Abs(path)
}

// CanonicalKey reduces a path to a stable comparison key for directory
// claims and lookups: absolute, symlinks resolved where possible, and
// lowercased on filesystems that ignore case. Paths that do not exist yet
// still produce a usable key.
func CanonicalKey(path string) (string, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(key); err == nil {
		key = resolved
	}
	switch runtime.GOOS {
	case "darwin", "windows":
		key = strings.ToLower(key)
	}
	return key, nil
}
