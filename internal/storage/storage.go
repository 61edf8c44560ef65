// Package storage is the file-based persistence layer shared by the disk caches,
// the logo index and the user settings store. All paths are relative to the data
// directory the Store was created with.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const tempMarker = ".tmp-"

// Store wraps an afero filesystem with atomic write helpers.
type Store struct {
	fs   afero.Fs
	root string
	log  *slog.Logger

	// crossProcessLock guards each write with an flock on <path>.lock. Only
	// available when the store is backed by the OS filesystem.
	crossProcessLock bool
}

// Option configures a Store.
type Option func(*Store)

// WithCrossProcessLock enables flock-guarded writes for deployments where more
// than one process shares the same data directory.
func WithCrossProcessLock(enabled bool) Option {
	return func(s *Store) {
		s.crossProcessLock = enabled
	}
}

// New returns a Store over an arbitrary filesystem (tests use afero.NewMemMapFs).
func New(fsys afero.Fs, opts ...Option) *Store {
	s := &Store{
		fs:  fsys,
		log: slog.Default().With("component", "storage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.root == "" {
		s.crossProcessLock = false
	}
	return s
}

// NewOS returns a Store rooted at dir on the host filesystem.
func NewOS(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage directory not provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), dir),
		root: dir,
		log:  slog.Default().With("component", "storage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fs exposes the underlying filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Root returns the host directory backing the store, or "" for in-memory stores.
func (s *Store) Root() string {
	return s.root
}

// ReadFile reads name. Missing files return an error matching fs.ErrNotExist.
func (s *Store) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(s.fs, name)
}

// ReadJSON decodes name into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := s.ReadFile(name)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("decode %s: empty file", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// WriteJSON encodes v with indentation and writes it atomically.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.WriteFileAtomic(name, data)
}

// WriteFileAtomic writes data to a temp file next to name and renames it into
// place, so readers observe either the old or the new content.
func (s *Store) WriteFileAtomic(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	if s.crossProcessLock {
		lock := flock.New(filepath.Join(s.root, name+".lock"))
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("lock %s: %w", name, err)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				s.log.Warn("unlock failed", "path", name, "error", err)
			}
		}()
	}

	tmp := name + tempMarker + uuid.NewString()
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// Remove deletes name. A missing file is not an error.
func (s *Store) Remove(name string) error {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stat returns file info for name.
func (s *Store) Stat(name string) (fs.FileInfo, error) {
	return s.fs.Stat(name)
}

// ReadDir lists dir. A missing directory yields no entries.
func (s *Store) ReadDir(dir string) ([]fs.FileInfo, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return infos, err
}

// CleanupTemp removes temp files left behind by interrupted atomic writes that
// are older than maxAge. It returns the number of files and bytes removed.
func (s *Store) CleanupTemp(maxAge time.Duration) (int, int64, error) {
	cutoff := time.Now().Add(-maxAge)
	var removed int
	var freed int64

	err := afero.Walk(s.fs, ".", func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.Contains(info.Name(), tempMarker) {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := s.fs.Remove(path); err != nil {
			s.log.Warn("remove temp file failed", "path", path, "error", err)
			return nil
		}
		removed++
		freed += info.Size()
		return nil
	})
	return removed, freed, err
}
