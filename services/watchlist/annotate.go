package watchlist

import (
	"fmt"
	"strings"

	"plexfront/models"
	"plexfront/services/library"
)

// RatingPolicy decides which rating an item shows when both the local library
// and the watchlist sources have one.
type RatingPolicy string

const (
	RatingLocalFirst  RatingPolicy = "local-first"
	RatingSourceFirst RatingPolicy = "source-first"
)

// ParseRatingPolicy accepts the config spelling; empty means local-first.
func ParseRatingPolicy(s string) (RatingPolicy, error) {
	switch RatingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RatingLocalFirst:
		return RatingLocalFirst, nil
	case RatingSourceFirst:
		return RatingSourceFirst, nil
	default:
		return "", fmt.Errorf("unknown rating policy %q", s)
	}
}

// Annotate returns copies of items cross-referenced against the live library
// index. The input slice is not modified.
func Annotate(items []models.UnifiedWatchlistItem, index *library.Index, policy RatingPolicy) []models.UnifiedWatchlistItem {
	out := make([]models.UnifiedWatchlistItem, len(items))
	for i, item := range items {
		item.StripVolatile()
		item.Sources = append([]models.Source(nil), item.Sources...)

		ids := map[string]string{"imdb": item.IMDBID, "tmdb": item.TMDBID, "plex": item.PlexGUID}
		if ref, ok := index.Match(ids, item.Type, item.Title, item.Year); ok {
			ref := ref
			item.LocalRef = &ref
			item.IsLocal = true
			item.IsWatched = models.BoolPtr(ref.IsWatched)
		}
		item.Rating = pickRating(item, policy)
		out[i] = item
	}
	return out
}

func pickRating(item models.UnifiedWatchlistItem, policy RatingPolicy) *float64 {
	var local *float64
	if item.LocalRef != nil {
		local = item.LocalRef.Rating
	}
	first, second := local, item.SourceRating
	if policy == RatingSourceFirst {
		first, second = second, first
	}
	if first != nil {
		v := *first
		return &v
	}
	if second != nil {
		v := *second
		return &v
	}
	return nil
}
