package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/campus-marketplace/internal/backend"
)

// SessionStore persists the client session between runs.
type SessionStore interface {
	// Load returns the stored session, or nil when none is stored.
	Load() (*backend.Session, error)
	Save(sess *backend.Session) error
	// Clear removes the stored session. Clearing an empty store is not an
	// error.
	Clear() error
}

// FileSessionStore keeps the session in a YAML file readable only by the
// current user.
type FileSessionStore struct {
	Path string
}

// DefaultSessionPath is ~/.config/marketplace/session.yaml, or the
// equivalent user config directory on the platform.
func DefaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "marketplace", "session.yaml")
}

func (s FileSessionStore) Load() (*backend.Session, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sess backend.Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	if sess.AccessToken == "" {
		return nil, nil
	}
	return &sess, nil
}

func (s FileSessionStore) Save(sess *backend.Session) error {
	data, err := yaml.Marshal(sess)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

func (s FileSessionStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
