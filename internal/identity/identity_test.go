package identity

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func TestHashEmail(t *testing.T) {
	hash := HashEmail("dev@example.com")
	assert.Len(t, hash, 16)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), hash)

	// Deterministic, and distinct per email.
	assert.Equal(t, hash, HashEmail("dev@example.com"))
	assert.NotEqual(t, hash, HashEmail("other@example.com"))
}

func TestInstanceIDPersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tunnel-instance-id")

	first := loadOrCreateInstanceID(path, testLogger())
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	second := loadOrCreateInstanceID(path, testLogger())
	assert.Equal(t, first, second)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, string(content))
}

func TestInvalidInstanceIDIsRegenerated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunnel-instance-id")
	require.NoError(t, os.WriteFile(path, []byte("not-a-uuid"), 0644))

	id := loadOrCreateInstanceID(path, testLogger())
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}
