// Package imagecache is the two-tier image byte cache behind the image proxy.
// A byte-bounded LRU in memory sits in front of a sharded disk store; memory is
// always a derived, evictable copy of what is (or is being) written to disk.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxMemoryBytes = 100 << 20
	DefaultMemoryTTL      = 24 * time.Hour
	DefaultDiskTTL        = 7 * 24 * time.Hour
	DefaultFetchTimeout   = 30 * time.Second

	// the LRU is bounded by bytes, the entry cap only keeps the list finite
	maxMemoryEntries = 1 << 20
)

// CachedImage is an image payload with its content type.
type CachedImage struct {
	Bytes       []byte
	ContentType string
	CachedAt    time.Time
}

// Origin fetches image bytes for a source path. The Plex client satisfies it.
type Origin interface {
	FetchImage(ctx context.Context, path string) ([]byte, string, error)
}

// Options configures a Cache. Zero values fall back to the defaults above.
type Options struct {
	MaxMemoryBytes int64
	MemoryTTL      time.Duration
	DiskTTL        time.Duration
	// FetchTimeout bounds a shared origin fetch in GetOrFetch.
	FetchTimeout time.Duration
	// Disk is the persistent tier. Nil disables it.
	Disk DiskStore
	Now  func() time.Time
}

type memEntry struct {
	img       CachedImage
	expiresAt time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
	Entries    int
	Bytes      int64
	MaxBytes   int64
}

func (s Stats) String() string {
	return fmt.Sprintf("entries=%d memory=%s/%s hits(mem=%d disk=%d) misses=%d",
		s.Entries, humanize.IBytes(uint64(s.Bytes)), humanize.IBytes(uint64(s.MaxBytes)),
		s.MemoryHits, s.DiskHits, s.Misses)
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, memEntry]
	memBytes int64
	maxBytes int64
	memTTL   time.Duration
	diskTTL  time.Duration
	fetchTTL time.Duration

	disk   DiskStore
	writes conc.WaitGroup
	group  singleflight.Group
	now    func() time.Time

	memHits  atomic.Int64
	diskHits atomic.Int64
	misses   atomic.Int64
}

// New creates an image cache.
func New(opts Options) *Cache {
	c := &Cache{
		maxBytes: opts.MaxMemoryBytes,
		memTTL:   opts.MemoryTTL,
		diskTTL:  opts.DiskTTL,
		fetchTTL: opts.FetchTimeout,
		disk:     opts.Disk,
		now:      opts.Now,
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxMemoryBytes
	}
	if c.memTTL <= 0 {
		c.memTTL = DefaultMemoryTTL
	}
	if c.diskTTL <= 0 {
		c.diskTTL = DefaultDiskTTL
	}
	if c.fetchTTL <= 0 {
		c.fetchTTL = DefaultFetchTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}

	// NewLRU only fails for a non-positive size.
	c.lru, _ = simplelru.NewLRU[string, memEntry](maxMemoryEntries, func(_ string, e memEntry) {
		c.memBytes -= int64(len(e.img.Bytes))
	})
	return c
}

// Key derives the cache key for a source path.
func Key(sourcePath string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	return hex.EncodeToString(sum[:])
}

// Get looks in memory first, then on disk. A disk hit is promoted to memory.
// Expired entries in either tier are removed on access.
func (c *Cache) Get(sourcePath string) (CachedImage, bool) {
	key := Key(sourcePath)

	if img, ok := c.getMemory(key); ok {
		c.memHits.Add(1)
		return img, true
	}

	if img, ok := c.getDisk(key); ok {
		c.diskHits.Add(1)
		// the memory copy must not outlive the disk entry it came from
		expires := c.now().Add(c.memTTL)
		if diskExpires := img.CachedAt.Add(c.diskTTL); diskExpires.Before(expires) {
			expires = diskExpires
		}
		c.storeMemory(key, img, expires)
		return img, true
	}

	c.misses.Add(1)
	return CachedImage{}, false
}

// Put stores bytes in memory immediately and on disk in the background.
// Disk failures are logged only.
func (c *Cache) Put(sourcePath string, data []byte, contentType string) CachedImage {
	key := Key(sourcePath)
	img := CachedImage{
		Bytes:       data,
		ContentType: contentType,
		CachedAt:    c.now(),
	}
	c.storeMemory(key, img, img.CachedAt.Add(c.memTTL))

	if c.disk != nil {
		c.writes.Go(func() {
			if err := c.disk.Write(key, img); err != nil {
				log.Printf("[imagecache] disk write failed for %s: %v", sourcePath, err)
			}
		})
	}
	return img
}

// GetOrFetch returns the cached image or fetches it from origin once, even
// when several callers miss on the same path at the same time. The shared
// fetch is detached from the caller that started it, so one cancelled request
// does not fail the others waiting on the same path.
func (c *Cache) GetOrFetch(ctx context.Context, sourcePath string, origin Origin) (CachedImage, error) {
	if img, ok := c.Get(sourcePath); ok {
		return img, nil
	}

	key := Key(sourcePath)
	ch := c.group.DoChan(key, func() (any, error) {
		// a fetch that finished between our miss and DoChan already populated memory
		if img, ok := c.getMemory(key); ok {
			return img, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTTL)
		defer cancel()
		data, contentType, err := origin.FetchImage(fetchCtx, sourcePath)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("empty image body for %s", sourcePath)
		}
		if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
			contentType = mimetype.Detect(data).String()
		}
		return c.Put(sourcePath, data, contentType), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return CachedImage{}, res.Err
		}
		return res.Val.(CachedImage), nil
	case <-ctx.Done():
		return CachedImage{}, ctx.Err()
	}
}

// Flush waits for pending disk writes.
func (c *Cache) Flush() {
	c.writes.Wait()
}

// PruneMemory drops memory entries past their TTL and returns how many were
// removed. Disk entries are only expired lazily on access.
func (c *Cache) PruneMemory() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && !now.Before(e.expiresAt) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Purge empties the memory tier.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.memBytes = 0
	c.mu.Unlock()
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries, bytes := c.lru.Len(), c.memBytes
	c.mu.Unlock()
	return Stats{
		MemoryHits: c.memHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Misses:     c.misses.Load(),
		Entries:    entries,
		Bytes:      bytes,
		MaxBytes:   c.maxBytes,
	}
}

func (c *Cache) getMemory(key string) (CachedImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return CachedImage{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return CachedImage{}, false
	}
	return e.img, true
}

func (c *Cache) getDisk(key string) (CachedImage, bool) {
	if c.disk == nil {
		return CachedImage{}, false
	}
	img, err := c.disk.Read(key)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[imagecache] disk read failed for %s: %v", key, err)
		}
		return CachedImage{}, false
	}
	if c.now().Sub(img.CachedAt) >= c.diskTTL {
		if err := c.disk.Delete(key); err != nil {
			log.Printf("[imagecache] failed to delete expired entry %s: %v", key, err)
		}
		return CachedImage{}, false
	}
	return img, true
}

// storeMemory inserts and then evicts from the cold end until the byte budget
// holds. Entries larger than the whole budget stay disk-only.
func (c *Cache) storeMemory(key string, img CachedImage, expiresAt time.Time) {
	size := int64(len(img.Bytes))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
	if size > c.maxBytes {
		return
	}

	c.lru.Add(key, memEntry{img: img, expiresAt: expiresAt})
	c.memBytes += size
	for c.memBytes > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}
