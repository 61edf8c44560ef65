package models

import (
	"sort"
	"time"
)

// Source identifies where a watchlist record came from.
type Source string

const (
	SourcePlex  Source = "plex"
	SourceTrakt Source = "trakt"
	SourceIMDB  Source = "imdb"
)

// AllSources lists sources in precedence order.
var AllSources = []Source{SourcePlex, SourceTrakt, SourceIMDB}

// Rank orders sources by precedence; unknown sources sort last.
func (s Source) Rank() int {
	switch s {
	case SourcePlex:
		return 0
	case SourceTrakt:
		return 1
	case SourceIMDB:
		return 2
	default:
		return 3
	}
}

// SortSources orders sources by precedence in place.
func SortSources(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Rank() < sources[j].Rank()
	})
}

// AddedAt keeps the time each source added the title.
type AddedAt struct {
	Plex  *time.Time `json:"plex,omitempty"`
	Trakt *time.Time `json:"trakt,omitempty"`
	IMDB  *time.Time `json:"imdb,omitempty"`
}

// Set records t for source. Zero times are ignored; an earlier time wins.
func (a *AddedAt) Set(source Source, t time.Time) {
	if t.IsZero() {
		return
	}
	var slot **time.Time
	switch source {
	case SourcePlex:
		slot = &a.Plex
	case SourceTrakt:
		slot = &a.Trakt
	case SourceIMDB:
		slot = &a.IMDB
	default:
		return
	}
	if *slot == nil || t.Before(**slot) {
		tt := t.UTC()
		*slot = &tt
	}
}

// Earliest returns the earliest recorded time across sources.
func (a AddedAt) Earliest() (time.Time, bool) {
	var out time.Time
	found := false
	for _, t := range []*time.Time{a.Plex, a.Trakt, a.IMDB} {
		if t == nil {
			continue
		}
		if !found || t.Before(out) {
			out = *t
			found = true
		}
	}
	return out, found
}

// LocalLibraryRef points at the copy of a title in the user's Plex library.
type LocalLibraryRef struct {
	RatingKey string   `json:"ratingKey"`
	Thumb     string   `json:"thumb,omitempty"`
	Type      string   `json:"type"`
	IsWatched bool     `json:"isWatched"`
	Rating    *float64 `json:"rating,omitempty"`
}

// UnifiedWatchlistItem is one title merged across every source that lists it.
// IsLocal, IsWatched, LocalLibraryRef and Rating depend on the live library and
// are recomputed on every read.
type UnifiedWatchlistItem struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Type         string           `json:"type"`
	Year         int              `json:"year,omitempty"`
	ThumbnailURL string           `json:"thumbnailUrl,omitempty"`
	Sources      []Source         `json:"sources"`
	AddedAt      AddedAt          `json:"addedAt"`
	LocalRef     *LocalLibraryRef `json:"localLibraryRef,omitempty"`
	IsLocal      bool             `json:"isLocal"`
	IMDBID       string           `json:"imdbId,omitempty"`
	TMDBID       string           `json:"tmdbId,omitempty"`
	PlexGUID     string           `json:"plexGuid,omitempty"`
	Rating       *float64         `json:"rating,omitempty"`
	IsWatched    *bool            `json:"isWatched,omitempty"`
	// SourceRating is the best community rating reported by the sources.
	SourceRating *float64 `json:"sourceRating,omitempty"`
}

// HasSource reports whether s contributed to the item.
func (i UnifiedWatchlistItem) HasSource(s Source) bool {
	for _, have := range i.Sources {
		if have == s {
			return true
		}
	}
	return false
}

// StripVolatile clears the fields derived from the live library.
func (i *UnifiedWatchlistItem) StripVolatile() {
	i.LocalRef = nil
	i.IsLocal = false
	i.IsWatched = nil
	i.Rating = nil
}

// WatchlistCounts are computed over the merged item set.
type WatchlistCounts struct {
	All   int `json:"all"`
	Plex  int `json:"plex"`
	Trakt int `json:"trakt"`
	IMDB  int `json:"imdb"`
}

// CountWatchlist tallies items per source.
func CountWatchlist(items []UnifiedWatchlistItem) WatchlistCounts {
	counts := WatchlistCounts{All: len(items)}
	for _, item := range items {
		for _, s := range item.Sources {
			switch s {
			case SourcePlex:
				counts.Plex++
			case SourceTrakt:
				counts.Trakt++
			case SourceIMDB:
				counts.IMDB++
			}
		}
	}
	return counts
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}
