// Package identity resolves the local peer identity: the git global email
// hashed into the peer-pairing key, a persistent per-installation instance
// id, and the OS hostname.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/grovetools/weave/pkg/models"
	"github.com/grovetools/weave/util/pathutil"
	"github.com/sirupsen/logrus"
)

// Resolve builds the local identity. It returns nil when no git global
// user.email is configured; the peer fabric is disabled in that case rather
// than failing.
func Resolve(instanceIDPath string, logger *logrus.Entry) *models.Identity {
	email := pathutil.GitGlobalEmail()
	if email == "" {
		logger.Info("No git user.email configured, tunnel disabled")
		return nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &models.Identity{
		Email:        email,
		IdentityHash: HashEmail(email),
		InstanceID:   loadOrCreateInstanceID(instanceIDPath, logger),
		Hostname:     hostname,
	}
}

// HashEmail derives the identity hash: the first 16 hex characters of
// SHA-256 over the email.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])[:16]
}

// loadOrCreateInstanceID reads the persisted instance id, creating and
// storing a fresh UUID on first run.
func loadOrCreateInstanceID(path string, logger *logrus.Entry) string {
	if content, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(content))
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
		logger.WithField("path", path).Warn("Invalid instance id on disk, regenerating")
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.WithError(err).Warn("Failed to create data directory for instance id")
		return id
	}
	if err := os.WriteFile(path, []byte(id), 0644); err != nil {
		logger.WithError(err).Warn("Failed to persist instance id")
	}
	return id
}
