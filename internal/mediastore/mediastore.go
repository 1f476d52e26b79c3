// Package mediastore implements component C: a content-addressed,
// atomically-written media cache on the local filesystem. The network
// transfer of the encrypted blob is an external collaborator (the
// concrete Blossom HTTP client); this package only caches bytes the
// caller already has in hand, keyed by their hash.
package mediastore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// Store is a directory of content-addressed files named "<hash>.<ext>".
type Store struct {
	dir string
}

// New opens (creating if absent) a media cache rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "create media cache dir")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(hashHex, ext string) string {
	name := hashHex
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return filepath.Join(s.dir, name)
}

// Put writes data under its content hash and extension, atomically via a
// temp file renamed into place. If a file with the same name already
// exists, Put short-circuits without rewriting it. Callers are expected
// to pass the hash they've already computed over data, so an existing
// file at that path is the same bytes by construction.
func (s *Store) Put(hashHex, ext string, data []byte) (string, error) {
	path := s.pathFor(hashHex, ext)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	tmp, err := os.CreateTemp(s.dir, "upload-*.tmp")
	if err != nil {
		return "", werrors.Wrap(werrors.IO, err, "media cache: create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", werrors.Wrap(werrors.IO, err, "media cache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", werrors.Wrap(werrors.IO, err, "media cache: close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", werrors.Wrap(werrors.IO, err, "media cache: rename into place")
	}
	return path, nil
}

// Get reads back the bytes stored under hashHex/ext.
func (s *Store) Get(hashHex, ext string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(hashHex, ext))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, werrors.New(werrors.NotFound, "no cached media for hash")
		}
		return nil, werrors.Wrap(werrors.IO, err, "read cached media")
	}
	return data, nil
}

// Has reports whether hashHex/ext is already cached.
func (s *Store) Has(hashHex, ext string) bool {
	_, err := os.Stat(s.pathFor(hashHex, ext))
	return err == nil
}
