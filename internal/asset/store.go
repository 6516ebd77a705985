// Package asset stores uploaded merch images on the local file system under
// collision-resistant unique keys.
package asset

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// URLPrefix is the static-serving path prefix under which stored files are
// reachable by clients.
const URLPrefix = "/merch_images/"

// saveAttempts bounds how many unique keys Save tries before giving up.
// Collisions require the same millisecond and the same random draw, so a
// second attempt is already vanishingly unlikely.
const saveAttempts = 3

// StorageError wraps an I/O failure of the underlying file system.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("asset %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("asset %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DiskStore persists uploaded files in a single flat directory. Keys embed
// a millisecond timestamp and a random 31-bit component, so concurrent
// uploads with identical filenames never contend and never overwrite.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the directory if needed and returns a store over it.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create asset directory")
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *DiskStore) Dir() string { return s.dir }

// Save writes r to a new uniquely named file, preserving the extension of
// the original filename. The returned key is storage-relative; it never
// includes the directory or a URL.
func (s *DiskStore) Save(ctx context.Context, field, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := sanitizeExt(filepath.Ext(filename))
	label := sanitizeLabel(field)

	for range saveAttempts {
		key := fmt.Sprintf("%s_%d-%d%s", label, time.Now().UnixMilli(), rand.Int32(), ext)

		f, err := os.OpenFile(filepath.Join(s.dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", &StorageError{Op: "save", Key: key, Err: err}
		}

		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			os.Remove(filepath.Join(s.dir, key))
			return "", &StorageError{Op: "save", Key: key, Err: err}
		}
		if err := f.Close(); err != nil {
			os.Remove(filepath.Join(s.dir, key))
			return "", &StorageError{Op: "save", Key: key, Err: err}
		}
		return key, nil
	}

	return "", &StorageError{Op: "save", Err: errors.New("could not allocate a unique key")}
}

// Delete removes the file for key. An absent file is not an error, so
// retried cleanup stays idempotent.
func (s *DiskStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Exists reports whether a file for key is present.
func (s *DiskStore) Exists(key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &StorageError{Op: "stat", Key: key, Err: err}
	}
	return true, nil
}

// path validates that key names a direct child of the store directory.
func (s *DiskStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", &StorageError{Op: "resolve", Key: key, Err: errors.New("malformed key")}
	}
	return filepath.Join(s.dir, key), nil
}

// FileServer serves stored files by key. Requests for the bare prefix or
// for nested paths get a 404; stored keys are never enumerable over HTTP.
func (s *DiskStore) FileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, err := s.path(strings.Trim(r.URL.Path, "/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	})
}

// ResolveURL maps a storage key to a client-fetchable URL under base, where
// base is the scheme and host of the serving request.
func ResolveURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + URLPrefix + key
}

// sanitizeExt keeps a leading dot followed by up to 8 alphanumerics; every
// other shape is dropped rather than written to disk.
func sanitizeExt(ext string) string {
	if len(ext) < 2 || len(ext) > 9 || ext[0] != '.' {
		return ""
	}
	for i := 1; i < len(ext); i++ {
		c := ext[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return ""
		}
	}
	return strings.ToLower(ext)
}

// sanitizeLabel maps the form field label to a path-safe key prefix.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, c := range label {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
