// Package objectstore implements jobqueue.ObjectStore for a deployment
// with no external blob storage configured: reports land on local disk
// under a directory the HTTP boundary can also serve from, rather than
// failing the report job outright.
package objectstore

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FileStore writes report bytes under a root directory, atomically
// (temp file + rename), the same write pattern as cache.FileTier.
type FileStore struct {
	root    string
	baseURL string
}

// New creates a FileStore rooted at dir. baseURL, if set, is prefixed to
// the key to build the signed URL Put returns (e.g. a reverse-proxy path
// that serves dir); with an empty baseURL, Put returns a file:// URL.
func New(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "objectstore: mkdir")
	}
	return &FileStore{root: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put implements jobqueue.ObjectStore.
func (s *FileStore) Put(_ context.Context, key string, body []byte) (string, error) {
	dest := filepath.Join(s.root, filepath.Base(key))
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", eris.Wrap(err, "objectstore: write")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", eris.Wrap(err, "objectstore: rename")
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + filepath.Base(key), nil
	}
	return (&url.URL{Scheme: "file", Path: dest}).String(), nil
}
