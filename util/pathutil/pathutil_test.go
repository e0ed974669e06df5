package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tilde only", "~", home},
		{"tilde with path", "~/projects", filepath.Join(home, "projects")},
		{"absolute path unchanged", "/tmp/x", "/tmp/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCanonicalKeyResolvesSymlinks(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "real")
	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "alias")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	targetKey, err := CanonicalKey(target)
	if err != nil {
		t.Fatal(err)
	}
	linkKey, err := CanonicalKey(link)
	if err != nil {
		t.Fatal(err)
	}
	if targetKey != linkKey {
		t.Errorf("keys differ: %q vs %q", targetKey, linkKey)
	}
}

func TestCanonicalKeyToleratesMissingPaths(t *testing.T) {
	key, err := CanonicalKey("/no/such/weave/dir")
	if err != nil {
		t.Fatalf("CanonicalKey error: %v", err)
	}
	if key != "/no/such/weave/dir" {
		t.Errorf("CanonicalKey = %q", key)
	}
}

func TestEncodeProjectDir(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/home/me/app", "-home-me-app"},
		{"/home/me/my.app", "-home-me-my-app"},
		{"/home/me/my_app", "-home-me-my-app"},
	}
	for _, tt := range tests {
		if got := EncodeProjectDir(tt.input); got != tt.expected {
			t.Errorf("EncodeProjectDir(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDecodeProjectDirResolvesExistingPaths(t *testing.T) {
	base := t.TempDir()

	// A directory whose name contains a dot: the dash in the encoded form
	// must decode back to '.' because that path exists.
	dotted := filepath.Join(base, "my.app")
	if err := os.MkdirAll(dotted, 0755); err != nil {
		t.Fatal(err)
	}

	encoded := EncodeProjectDir(dotted)
	if got := DecodeProjectDir(encoded); got != dotted {
		t.Errorf("DecodeProjectDir(%q) = %q, want %q", encoded, got, dotted)
	}

	// Plain nested directories decode with path separators.
	nested := filepath.Join(base, "sub", "proj")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	encoded = EncodeProjectDir(nested)
	if got := DecodeProjectDir(encoded); got != nested {
		t.Errorf("DecodeProjectDir(%q) = %q, want %q", encoded, got, nested)
	}
}

func TestDecodeProjectDirDefaultsToSlash(t *testing.T) {
	// Nothing on disk matches; every boundary is assumed to be a separator.
	got := DecodeProjectDir("-no-such-weave-path-xyz")
	want := "/no/such/weave/path/xyz"
	if got != want {
		t.Errorf("DecodeProjectDir = %q, want %q", got, want)
	}
}

func TestGitRootOutsideRepository(t *testing.T) {
	dir := t.TempDir()
	if root := GitRoot(dir); root != "" {
		t.Errorf("GitRoot(%q) = %q, want empty", dir, root)
	}
	if branch := GitBranch(dir); branch != "" {
		t.Errorf("GitBranch(%q) = %q, want empty", dir, branch)
	}
}
