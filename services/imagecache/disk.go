package imagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"plexfront/internal/storage"
)

// ErrCorrupt is returned by a DiskStore when the bytes and sidecar disagree.
var ErrCorrupt = errors.New("imagecache: corrupt disk entry")

// DiskStore is the persistent tier. Read must return an error matching
// fs.ErrNotExist for absent keys.
type DiskStore interface {
	Read(key string) (CachedImage, error)
	Write(key string, img CachedImage) error
	Delete(key string) error
}

type diskMeta struct {
	ContentType string    `json:"contentType"`
	CachedAt    time.Time `json:"cachedAt"`
	Size        int       `json:"size"`
}

// FSStore lays entries out as <dir>/<key[0:2]>/<key>.cache with a
// <key>.cache.meta JSON sidecar holding the content type and timestamp.
type FSStore struct {
	store *storage.Store
	dir   string
}

// NewFSStore returns a DiskStore rooted at dir inside fsys.
func NewFSStore(fsys afero.Fs, dir string) *FSStore {
	return &FSStore{store: storage.New(fsys), dir: dir}
}

// NewFSStoreFromStorage reuses an existing storage backend, keeping its
// locking options.
func NewFSStoreFromStorage(store *storage.Store, dir string) *FSStore {
	return &FSStore{store: store, dir: dir}
}

func (s *FSStore) paths(key string) (string, string) {
	shard := key
	if len(key) >= 2 {
		shard = key[:2]
	}
	data := filepath.Join(s.dir, shard, key+".cache")
	return data, data + ".meta"
}

func (s *FSStore) Read(key string) (CachedImage, error) {
	dataPath, metaPath := s.paths(key)

	var meta diskMeta
	if err := s.store.ReadJSON(metaPath, &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CachedImage{}, err
		}
		_ = s.Delete(key)
		return CachedImage{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	data, err := s.store.ReadFile(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = s.store.Remove(metaPath)
		}
		return CachedImage{}, err
	}
	if meta.Size > 0 && len(data) != meta.Size {
		_ = s.Delete(key)
		return CachedImage{}, fmt.Errorf("%w: %s has %d bytes, expected %d", ErrCorrupt, key, len(data), meta.Size)
	}

	return CachedImage{Bytes: data, ContentType: meta.ContentType, CachedAt: meta.CachedAt}, nil
}

// Write stores the bytes first and the sidecar second, so a sidecar always
// describes a complete data file.
func (s *FSStore) Write(key string, img CachedImage) error {
	dataPath, metaPath := s.paths(key)
	if err := s.store.WriteFileAtomic(dataPath, img.Bytes); err != nil {
		return err
	}
	return s.store.WriteJSON(metaPath, diskMeta{
		ContentType: img.ContentType,
		CachedAt:    img.CachedAt.UTC(),
		Size:        len(img.Bytes),
	})
}

func (s *FSStore) Delete(key string) error {
	dataPath, metaPath := s.paths(key)
	if err := s.store.Remove(metaPath); err != nil {
		return err
	}
	return s.store.Remove(dataPath)
}

// Clear removes every disk entry and returns the number of bytes freed.
func (s *FSStore) Clear() (int64, error) {
	var freed int64
	err := afero.Walk(s.store.Fs(), s.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			freed += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := s.store.Fs().RemoveAll(s.dir); err != nil {
		return 0, err
	}
	return freed, nil
}
