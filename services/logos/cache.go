// Package logos caches TMDB title-treatment logos on disk. Each (type, title,
// year) resolves to either a logo file or a negative entry meaning "no logo
// exists", and positive hits are re-verified against the file contents on
// every read so a corrupt or mislabeled file heals itself by refetching.
package logos

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"plexfront/internal/storage"
	"plexfront/utils"
)

const (
	indexFile = "tmdb/logo-cache.json"
	logosDir  = "tmdb/logos"

	DefaultPositiveTTL = 7 * 24 * time.Hour
	DefaultNegativeTTL = 24 * time.Hour
)

// Downloader fetches logo bytes. The TMDB client satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// LookupResult is the outcome of Lookup. Hit with an empty Filename is a
// cached negative result.
type LookupResult struct {
	Hit      bool
	Filename string
	TMDBID   int64
}

// Negative reports a cached "no logo" answer.
func (r LookupResult) Negative() bool {
	return r.Hit && r.Filename == ""
}

// Options configures a Cache.
type Options struct {
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	Now         func() time.Time
}

// Cache is the logo index plus the files it points to.
type Cache struct {
	mu       sync.Mutex
	store    *storage.Store
	download Downloader
	entries  map[string]Entry

	positiveTTL time.Duration
	negativeTTL time.Duration
	now         func() time.Time
}

// New loads (and if needed migrates) the index from store.
func New(store *storage.Store, download Downloader, opts Options) *Cache {
	c := &Cache{
		store:       store,
		download:    download,
		entries:     map[string]Entry{},
		positiveTTL: opts.PositiveTTL,
		negativeTTL: opts.NegativeTTL,
		now:         opts.Now,
	}
	if c.positiveTTL <= 0 {
		c.positiveTTL = DefaultPositiveTTL
	}
	if c.negativeTTL <= 0 {
		c.negativeTTL = DefaultNegativeTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.load()
	return c
}

func (c *Cache) load() {
	data, err := c.store.ReadFile(indexFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[logos] failed to read index: %v", err)
		}
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}

	entries, migrated, err := decodeIndex(data)
	if err != nil {
		log.Printf("[logos] discarding unreadable index: %v", err)
		return
	}
	c.entries = entries
	if migrated {
		log.Printf("[logos] migrated index to version %d (%d entries)", IndexVersion, len(entries))
		c.persistLocked()
	}
}

// Key builds the index key for a title.
func Key(mediaType, title string, year int) string {
	y := ""
	if year > 0 {
		y = strconv.Itoa(year)
	}
	return normalizeMediaType(mediaType) + ":" + utils.NormalizeTitle(title) + ":" + y
}

func normalizeMediaType(mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "show", "tv", "series":
		return "show"
	default:
		return "movie"
	}
}

// Lookup returns a cached answer. Positive hits are verified against the file
// on disk; a missing or corrupt file removes the entry and reports a miss.
func (c *Cache) Lookup(mediaType, title string, year int) LookupResult {
	key := Key(mediaType, title, year)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return LookupResult{}
	}
	if e.Negative() {
		return LookupResult{Hit: true, TMDBID: e.TMDBID}
	}

	if err := c.verify(*e.LogoFilename); err != nil {
		log.Printf("[logos] removing corrupt logo %s for %s: %v", *e.LogoFilename, key, err)
		c.removeFile(*e.LogoFilename)
		delete(c.entries, key)
		c.persistLocked()
		return LookupResult{}
	}
	return LookupResult{Hit: true, Filename: *e.LogoFilename, TMDBID: e.TMDBID}
}

// Store records a resolution. An empty sourceURL stores a negative entry.
// Otherwise the logo is downloaded and written before the entry is recorded;
// a failed download returns an error and caches nothing.
func (c *Cache) Store(ctx context.Context, mediaType, title string, year int, sourceURL string, tmdbID int64) (string, error) {
	key := Key(mediaType, title, year)

	if strings.TrimSpace(sourceURL) == "" {
		c.mu.Lock()
		c.replaceLocked(key, Entry{FetchedAt: c.now().UTC(), TMDBID: tmdbID})
		c.persistLocked()
		c.mu.Unlock()
		return "", nil
	}

	if c.download == nil {
		return "", errors.New("logo downloader not configured")
	}
	data, _, err := c.download.Download(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("download logo: %w", err)
	}

	ext, err := contentExt(data)
	if err != nil {
		return "", err
	}
	filename := filenameFor(key, ext)

	if err := c.store.WriteFileAtomic(filepath.Join(logosDir, filename), data); err != nil {
		return "", fmt.Errorf("write logo: %w", err)
	}

	c.mu.Lock()
	c.replaceLocked(key, Entry{LogoFilename: &filename, FetchedAt: c.now().UTC(), TMDBID: tmdbID})
	c.persistLocked()
	c.mu.Unlock()

	return filename, nil
}

// replaceLocked swaps the entry and removes a previous file whose name changed.
func (c *Cache) replaceLocked(key string, e Entry) {
	if prev, ok := c.entries[key]; ok && !prev.Negative() {
		if e.Negative() || *prev.LogoFilename != *e.LogoFilename {
			c.removeFile(*prev.LogoFilename)
		}
	}
	c.entries[key] = e
}

// Path returns the store-relative path of a logo file.
func (c *Cache) Path(filename string) (string, error) {
	if err := validFilename(filename); err != nil {
		return "", err
	}
	return filepath.Join(logosDir, filename), nil
}

// ReadLogo returns the bytes and content type of a stored logo.
func (c *Cache) ReadLogo(filename string) ([]byte, string, error) {
	p, err := c.Path(filename)
	if err != nil {
		return nil, "", err
	}
	data, err := c.store.ReadFile(p)
	if err != nil {
		return nil, "", err
	}
	return data, mimetype.Detect(data).String(), nil
}

// SweepStats summarizes a Sweep.
type SweepStats struct {
	Checked  int
	Expired  int
	Corrupt  int
	Orphaned int
}

// Sweep verifies every positive entry, drops expired entries and removes logo
// files that no entry references.
func (c *Cache) Sweep() (SweepStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats SweepStats
	referenced := map[string]bool{}
	changed := false

	for key, e := range c.entries {
		stats.Checked++
		if c.expired(e) {
			if !e.Negative() {
				c.removeFile(*e.LogoFilename)
			}
			delete(c.entries, key)
			stats.Expired++
			changed = true
			continue
		}
		if e.Negative() {
			continue
		}
		if err := c.verify(*e.LogoFilename); err != nil {
			log.Printf("[logos] sweep removing corrupt logo %s for %s: %v", *e.LogoFilename, key, err)
			c.removeFile(*e.LogoFilename)
			delete(c.entries, key)
			stats.Corrupt++
			changed = true
			continue
		}
		referenced[*e.LogoFilename] = true
	}

	infos, err := c.store.ReadDir(logosDir)
	if err != nil {
		return stats, err
	}
	for _, info := range infos {
		if info.IsDir() || referenced[info.Name()] || strings.Contains(info.Name(), ".tmp-") {
			continue
		}
		c.removeFile(info.Name())
		stats.Orphaned++
	}

	if changed {
		c.persistLocked()
	}
	return stats, nil
}

// Clear removes the index and every logo file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]Entry{}
	if err := c.store.Fs().RemoveAll(logosDir); err != nil {
		return err
	}
	return c.store.Remove(indexFile)
}

// Len returns the number of index entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(e Entry) bool {
	ttl := c.positiveTTL
	if e.Negative() {
		ttl = c.negativeTTL
	}
	return c.now().Sub(e.FetchedAt) >= ttl
}

// verify checks that the file exists, that its sniffed type agrees with its
// extension and that raster formats decode.
func (c *Cache) verify(filename string) error {
	if err := validFilename(filename); err != nil {
		return err
	}
	data, err := c.store.ReadFile(filepath.Join(logosDir, filename))
	if err != nil {
		return err
	}
	actual, err := contentExt(data)
	if err != nil {
		return err
	}
	if stored := canonicalExt(filepath.Ext(filename)); stored != actual {
		return fmt.Errorf("content is %s but file is named %s", actual, filename)
	}
	return nil
}

func (c *Cache) removeFile(filename string) {
	if validFilename(filename) != nil {
		return
	}
	if err := c.store.Remove(filepath.Join(logosDir, filename)); err != nil {
		log.Printf("[logos] failed to remove %s: %v", filename, err)
	}
}

func (c *Cache) persistLocked() {
	doc := indexDoc{Version: IndexVersion, Entries: c.entries}
	if err := c.store.WriteJSON(indexFile, doc); err != nil {
		log.Printf("[logos] failed to persist index: %v", err)
	}
}

// contentExt sniffs data and returns the canonical extension for it. Raster
// formats must also decode, which catches truncated downloads.
func contentExt(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", errUnsupportedFormat)
	}
	mt := mimetype.Detect(data)
	var ext string
	switch {
	case mt.Is("image/png"):
		ext = ".png"
	case mt.Is("image/jpeg"):
		ext = ".jpg"
	case mt.Is("image/webp"):
		ext = ".webp"
	case mt.Is("image/svg+xml"):
		return ".svg", nil
	default:
		return "", fmt.Errorf("%w: %s", errUnsupportedFormat, mt.String())
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("decode %s: %w", ext, err)
	}
	return ext, nil
}

func canonicalExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}

func filenameFor(key, ext string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:16] + ext
}
