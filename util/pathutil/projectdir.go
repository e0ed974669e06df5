package pathutil

import (
	"os"
	"strings"
)

// EncodeProjectDir converts a working directory into the flattened name
// Claude Code uses under its projects directory: every path separator and
// in-component separator becomes a dash, so `/home/me/my.app` is stored as
// `-home-me-my-app`.
func EncodeProjectDir(path string) string {
	replacer := strings.NewReplacer("/", "-", ".", "-", "_", "-", " ", "-")
	return replacer.Replace(path)
}

// segmentSeparators are the characters a dash in an encoded project
// directory may stand for, in preference order.
var segmentSeparators = []string{"/", ".", "-", "_"}

// DecodeProjectDir reverses EncodeProjectDir by trying each candidate
// separator at every segment boundary and keeping the first combination
// that names an existing filesystem path. When nothing on disk matches,
// every boundary is assumed to be a path separator.
func DecodeProjectDir(encoded string) string {
	trimmed := strings.TrimPrefix(encoded, "-")
	if trimmed == "" {
		return "/"
	}
	tokens := strings.Split(trimmed, "-")
	if resolved, ok := resolveSegments("/"+tokens[0], tokens[1:]); ok {
		return resolved
	}
	return "/" + strings.Join(tokens, "/")
}

func resolveSegments(prefix string, rest []string) (string, bool) {
	if len(rest) == 0 {
		if _, err := os.Stat(prefix); err == nil {
			return prefix, true
		}
		return "", false
	}
	for _, sep := range segmentSeparators {
		if sep == "/" {
			// A path separator implies the prefix so far is a real directory.
			if info, err := os.Stat(prefix); err != nil || !info.IsDir() {
				continue
			}
		}
		if resolved, ok := resolveSegments(prefix+sep+rest[0], rest[1:]); ok {
			return resolved, true
		}
	}
	return "", false
}
