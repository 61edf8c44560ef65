package diskcache

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"plexfront/internal/storage"
)

// Entry is the on-disk envelope. A Version that differs from the reader's
// expected schema version is treated as a miss.
type Entry[T any] struct {
	Version   int       `json:"version"`
	FetchedAt time.Time `json:"fetchedAt"`
	Payload   T         `json:"payload"`
}

// Result is returned on a usable hit.
type Result[T any] struct {
	Payload  T
	IsStale  bool
	CachedAt time.Time
	Age      time.Duration
	// Fetched is set when the payload came from the origin rather than disk.
	Fetched bool
}

// CachedAtSeconds is the fetch time as unix seconds.
func (r Result[T]) CachedAtSeconds() int64 {
	return r.CachedAt.Unix()
}

// Options configures a Cache.
type Options struct {
	// Namespace is the subdirectory inside the data dir, e.g. "plex".
	Namespace string
	Version   int
	Policy    Policy
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache is a key -> JSON file store with a fresh window and a stale-but-usable window.
type Cache[T any] struct {
	store   *storage.Store
	dir     string
	version int
	policy  Policy
	now     func() time.Time
}

// New creates a cache over store.
func New[T any](store *storage.Store, opts Options) *Cache[T] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		store:   store,
		dir:     opts.Namespace,
		version: opts.Version,
		policy:  opts.Policy.normalized(),
		now:     now,
	}
}

// Policy returns the freshness policy of the cache.
func (c *Cache[T]) Policy() Policy {
	return c.policy
}

// Get returns the cached payload when its age is below the stale window.
// Missing, corrupt, expired or version-mismatched entries are all misses.
func (c *Cache[T]) Get(key string) (Result[T], bool) {
	var zero Result[T]
	p, err := c.path(key)
	if err != nil {
		return zero, false
	}

	var entry Entry[T]
	if err := c.store.ReadJSON(p, &entry); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[diskcache] ignoring unreadable entry %s: %v", p, err)
		}
		return zero, false
	}
	if entry.Version != c.version {
		return zero, false
	}

	age := c.now().Sub(entry.FetchedAt)
	switch c.policy.State(age) {
	case StateFresh:
		return Result[T]{Payload: entry.Payload, CachedAt: entry.FetchedAt, Age: age}, true
	case StateStale:
		return Result[T]{Payload: entry.Payload, IsStale: true, CachedAt: entry.FetchedAt, Age: age}, true
	default:
		return zero, false
	}
}

// Set overwrites the entry for key. Failures are logged and swallowed: the
// cache is an accelerator, never a dependency for correctness.
func (c *Cache[T]) Set(key string, payload T) {
	if err := c.Put(key, payload); err != nil {
		log.Printf("[diskcache] failed to write %s/%s: %v", c.dir, key, err)
	}
}

// Put is Set with the error surfaced, for callers that want to report it.
func (c *Cache[T]) Put(key string, payload T) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	entry := Entry[T]{
		Version:   c.version,
		FetchedAt: c.now().UTC(),
		Payload:   payload,
	}
	return c.store.WriteJSON(p, entry)
}

// Invalidate removes the entry for key.
func (c *Cache[T]) Invalidate(key string) {
	p, err := c.path(key)
	if err != nil {
		return
	}
	if err := c.store.Remove(p); err != nil {
		log.Printf("[diskcache] failed to invalidate %s: %v", p, err)
	}
}

// Clear removes every cached entry in the namespace and returns how many were removed.
func (c *Cache[T]) Clear() (int, error) {
	infos, err := c.store.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	var removed int
	for _, info := range infos {
		if info.IsDir() || filepath.Ext(info.Name()) != ".json" {
			continue
		}
		if err := c.store.Remove(filepath.Join(c.dir, info.Name())); err != nil {
			continue // best effort
		}
		removed++
	}
	return removed, nil
}

var safeKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func (c *Cache[T]) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("empty key")
	}
	if !safeKey.MatchString(key) || strings.HasPrefix(key, ".") {
		key = HashKey(key)
	}
	return filepath.Join(c.dir, key+".json"), nil
}

// HashKey derives a filesystem-safe key from arbitrary parts.
func HashKey(parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h[:])
}

// UserKey namespaces a reader-specific entry by a hash of the caller's token so
// two users never share an entry, while requests from the same user do.
func UserKey(prefix, token string) string {
	h := sha256.Sum256([]byte(token))
	return prefix + "-" + hex.EncodeToString(h[:8])
}
