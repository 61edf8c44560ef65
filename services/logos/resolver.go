package logos

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"plexfront/services/tmdb"
)

// TMDB is the subset of the TMDB client the resolver needs.
type TMDB interface {
	SearchMovie(ctx context.Context, title string, year int) ([]tmdb.SearchResult, error)
	SearchTV(ctx context.Context, title string, year int) ([]tmdb.SearchResult, error)
	GetMovieImages(ctx context.Context, id int64) (*tmdb.Images, error)
	GetTVImages(ctx context.Context, id int64) (*tmdb.Images, error)
	ImageURL(filePath string) string
}

// Resolver answers logo lookups from the cache and falls back to TMDB.
type Resolver struct {
	cache *Cache
	tmdb  TMDB
	group singleflight.Group
}

// NewResolver creates a resolver.
func NewResolver(cache *Cache, client TMDB) *Resolver {
	return &Resolver{cache: cache, tmdb: client}
}

// Cache returns the underlying logo cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the logo filename for a title. An empty filename with a nil
// error means the title has no logo. TMDB failures, rate limits included, are
// returned and leave the cache untouched so the next request retries.
func (r *Resolver) Resolve(ctx context.Context, mediaType, title string, year int) (LookupResult, error) {
	if strings.TrimSpace(title) == "" {
		return LookupResult{}, fmt.Errorf("logo lookup requires a title")
	}
	if res := r.cache.Lookup(mediaType, title, year); res.Hit {
		return res, nil
	}

	v, err, _ := r.group.Do(Key(mediaType, title, year), func() (any, error) {
		if res := r.cache.Lookup(mediaType, title, year); res.Hit {
			return res, nil
		}
		return r.fetch(ctx, mediaType, title, year)
	})
	if err != nil {
		return LookupResult{}, err
	}
	return v.(LookupResult), nil
}

func (r *Resolver) fetch(ctx context.Context, mediaType, title string, year int) (LookupResult, error) {
	isShow := normalizeMediaType(mediaType) == "show"

	var results []tmdb.SearchResult
	var err error
	if isShow {
		results, err = r.tmdb.SearchTV(ctx, title, year)
	} else {
		results, err = r.tmdb.SearchMovie(ctx, title, year)
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("tmdb search %q: %w", title, err)
	}

	match, ok := pickResult(results, year)
	if !ok {
		log.Printf("[logos] no tmdb match for %s %q (%d), caching negative", mediaType, title, year)
		if _, err := r.cache.Store(ctx, mediaType, title, year, "", 0); err != nil {
			return LookupResult{}, err
		}
		return LookupResult{Hit: true}, nil
	}

	var images *tmdb.Images
	if isShow {
		images, err = r.tmdb.GetTVImages(ctx, match.ID)
	} else {
		images, err = r.tmdb.GetMovieImages(ctx, match.ID)
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("tmdb images %d: %w", match.ID, err)
	}

	var logos []tmdb.Image
	if images != nil {
		logos = images.Logos
	}
	logo, ok := SelectLogo(logos)
	if !ok {
		if _, err := r.cache.Store(ctx, mediaType, title, year, "", match.ID); err != nil {
			return LookupResult{}, err
		}
		return LookupResult{Hit: true, TMDBID: match.ID}, nil
	}

	filename, err := r.cache.Store(ctx, mediaType, title, year, r.tmdb.ImageURL(logo.FilePath), match.ID)
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{Hit: true, Filename: filename, TMDBID: match.ID}, nil
}

// pickResult prefers a result released in the requested year.
func pickResult(results []tmdb.SearchResult, year int) (tmdb.SearchResult, bool) {
	if len(results) == 0 {
		return tmdb.SearchResult{}, false
	}
	if year > 0 {
		for _, res := range results {
			if res.Year() == year {
				return res, true
			}
		}
	}
	return results[0], true
}

var englishBase, _ = language.English.Base()

// SelectLogo prefers an English logo (any regional variant) and otherwise
// falls back to the first candidate.
func SelectLogo(logos []tmdb.Image) (tmdb.Image, bool) {
	var first *tmdb.Image
	for i := range logos {
		if logos[i].FilePath == "" {
			continue
		}
		if first == nil {
			first = &logos[i]
		}
		if isEnglish(logos[i].Language) {
			return logos[i], true
		}
	}
	if first == nil {
		return tmdb.Image{}, false
	}
	return *first, true
}

func isEnglish(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	t, err := language.Parse(tag)
	if err != nil {
		return false
	}
	base, conf := t.Base()
	return conf != language.No && base == englishBase
}
