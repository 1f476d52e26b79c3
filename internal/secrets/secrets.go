// Package secrets implements component A: a store mapping hex pubkey to
// raw signing key. The OS keychain is an external collaborator; any
// backend meeting three properties can stand in for it: entries keyed
// by hex pubkey, idempotent store, no-op remove-of-missing. The default
// backend here is a permissions-locked directory of one file per key,
// written with the same temp-file-then-rename pattern as the mediastore
// and groupengine packages; a real OS-keychain backend would
// satisfy the same Store interface without the rest of the engine
// noticing.
package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// Store maps pubkey (hex) to secret key (hex or bech32 nsec, caller's
// choice — the store treats it as an opaque string).
type Store interface {
	Store(pubkeyHex, secretKey string) error
	Get(pubkeyHex string) (string, error)
	Remove(pubkeyHex string) error
}

// FileStore is the default Store backend: one 0600 file per pubkey under
// a 0700 root directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates (or opens) a secrets directory rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "create secrets dir")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(pubkeyHex string) (string, error) {
	if pubkeyHex == "" || strings.ContainsAny(pubkeyHex, "/\\") {
		return "", werrors.New(werrors.InvalidInput, "invalid pubkey for secrets lookup")
	}
	return filepath.Join(s.dir, strings.ToLower(pubkeyHex)), nil
}

// Store persists secretKey under pubkeyHex. Idempotent: storing the same
// value twice succeeds silently.
func (s *FileStore) Store(pubkeyHex, secretKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(pubkeyHex)
	if err != nil {
		return err
	}

	if existing, err := os.ReadFile(path); err == nil && string(existing) == secretKey {
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, "key-*.tmp")
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "store secret: create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(secretKey); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.IO, err, "store secret: write")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.IO, err, "store secret: close")
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.IO, err, "store secret: chmod")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.IO, err, "store secret: rename")
	}
	return nil
}

// Get returns the secret key stored for pubkeyHex, or a NotFound error.
// The error message never includes key material.
func (s *FileStore) Get(pubkeyHex string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(pubkeyHex)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", werrors.New(werrors.NotFound, "no secret for pubkey")
		}
		return "", werrors.Wrap(werrors.IO, err, "read secret")
	}
	return string(data), nil
}

// Remove deletes the entry for pubkeyHex. A missing entry is a no-op.
func (s *FileStore) Remove(pubkeyHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(pubkeyHex)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return werrors.Wrap(werrors.IO, err, "remove secret")
	}
	return nil
}
