// Package library indexes the titles of a user's Plex server so watchlist
// entries can be matched against what is already available locally.
package library

import (
	"strings"

	"plexfront/models"
	"plexfront/services/plex"
	"plexfront/utils"
)

// durableIDKinds are the external ids used for matching, in lookup order.
var durableIDKinds = []string{"imdb", "tmdb", "plex"}

// Index maps external ids and title+year keys to local library entries.
// An Index is immutable once built and safe for concurrent readers.
type Index struct {
	byID    map[string]models.LocalLibraryRef
	byTitle map[string]models.LocalLibraryRef
	size    int
}

// NewIndex builds an index over movies and shows; other item types are skipped.
// When two items share a key the first one wins.
func NewIndex(items []plex.Metadata) *Index {
	ix := &Index{
		byID:    make(map[string]models.LocalLibraryRef, len(items)*2),
		byTitle: make(map[string]models.LocalLibraryRef, len(items)),
	}
	for _, item := range items {
		ix.add(item)
	}
	return ix
}

// Empty returns an index that never matches.
func Empty() *Index {
	return NewIndex(nil)
}

func (ix *Index) add(item plex.Metadata) {
	mediaType := plex.NormalizeMediaType(item.Type)
	if mediaType != "movie" && mediaType != "show" {
		return
	}
	ref := models.LocalLibraryRef{
		RatingKey: item.RatingKey,
		Thumb:     item.Thumb,
		Type:      mediaType,
		IsWatched: IsWatched(item),
		Rating:    localRating(item),
	}

	added := false
	for kind, id := range item.ExternalIDs() {
		if !isDurable(kind) || id == "" {
			continue
		}
		key := idKey(kind, mediaType, id)
		if _, exists := ix.byID[key]; !exists {
			ix.byID[key] = ref
		}
		added = true
	}
	if title := titleKey(mediaType, item.Title, item.Year); title != "" {
		if _, exists := ix.byTitle[title]; !exists {
			ix.byTitle[title] = ref
		}
		added = true
	}
	if added {
		ix.size++
	}
}

// Len is the number of indexed items.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Match looks an item up by its external ids first and falls back to
// type + normalized title + year.
func (ix *Index) Match(ids map[string]string, mediaType, title string, year int) (models.LocalLibraryRef, bool) {
	if ix == nil {
		return models.LocalLibraryRef{}, false
	}
	mediaType = plex.NormalizeMediaType(mediaType)
	for _, kind := range durableIDKinds {
		if id := ids[kind]; id != "" {
			if ref, ok := ix.byID[idKey(kind, mediaType, id)]; ok {
				return ref, true
			}
		}
	}
	if key := titleKey(mediaType, title, year); key != "" {
		if ref, ok := ix.byTitle[key]; ok {
			return ref, true
		}
	}
	return models.LocalLibraryRef{}, false
}

// IsWatched applies the watched rules: a movie is watched once played, a show
// once every episode has been played.
func IsWatched(item plex.Metadata) bool {
	switch plex.NormalizeMediaType(item.Type) {
	case "movie":
		return item.ViewCount > 0
	case "show":
		return item.LeafCount > 0 && item.ViewedLeafCount >= item.LeafCount
	default:
		return item.ViewCount > 0
	}
}

// localRating prefers the user's own rating over the audience and critic ones.
func localRating(item plex.Metadata) *float64 {
	for _, r := range []float64{item.UserRating, item.AudienceRating, item.Rating} {
		if r > 0 {
			return models.Float64Ptr(r)
		}
	}
	return nil
}

func isDurable(kind string) bool {
	for _, k := range durableIDKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// idKey scopes TMDB ids by media type; movie and TV ids are separate
// numbering schemes.
func idKey(kind, mediaType, id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if kind == "tmdb" {
		return kind + ":" + mediaType + ":" + id
	}
	return kind + ":" + id
}

func titleKey(mediaType, title string, year int) string {
	if utils.NormalizeTitle(title) == "" {
		return ""
	}
	return mediaType + ":" + utils.TitleYearKey(title, year)
}
