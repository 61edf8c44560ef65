package watchlist_test

import (
	"reflect"
	"testing"
	"time"

	"plexfront/models"
	"plexfront/services/library"
	"plexfront/services/plex"
	"plexfront/services/watchlist"
)

func TestMergeIdentityPrecedence(t *testing.T) {
	records := []watchlist.Record{
		{Source: models.SourcePlex, IDs: map[string]string{"plex": "aaa111"}, Type: "movie", Title: "Plex Only", AddedAt: t2024Jan},
		{Source: models.SourceTrakt, IDs: map[string]string{"tmdb": "603", "trakt": "481"}, Type: "movie", Title: "The Matrix", Year: 1999, AddedAt: t2024Jan},
		{Source: models.SourceTrakt, IDs: map[string]string{}, Type: "movie", Title: "Arrival", Year: 2016, AddedAt: t2024Jan},
		{Source: models.SourceIMDB, IDs: map[string]string{"imdb": "tt0816692"}, Type: "movie", Title: "Interstellar", Year: 2014, AddedAt: t2024Jan},
	}

	items := watchlist.Merge(records)
	got := make(map[string]string, len(items))
	for _, item := range items {
		got[item.Title] = item.ID
	}
	want := map[string]string{
		"Plex Only":    "plex:aaa111",
		"The Matrix":   "tmdb:603",
		"Arrival":      "title:movie:arrival:2016",
		"Interstellar": "imdb:tt0816692",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestMergeLinksThroughAnySharedID(t *testing.T) {
	records := []watchlist.Record{
		{Source: models.SourcePlex, IDs: map[string]string{"plex": "bbb222", "tmdb": "603"}, Type: "movie", Title: "The Matrix", Year: 1999, Thumb: "plex-thumb", AddedAt: t2024Feb},
		{Source: models.SourceIMDB, IDs: map[string]string{"imdb": "tt0133093"}, Type: "movie", Title: "Matrix", Year: 1999, Rating: 8.7, AddedAt: t2024Jan},
		{Source: models.SourceTrakt, IDs: map[string]string{"imdb": "tt0133093", "tmdb": "603"}, Type: "movie", Title: "The Matrix", Year: 1999, AddedAt: t2024Mar},
	}

	items := watchlist.Merge(records)
	if len(items) != 1 {
		t.Fatalf("expected one merged item, got %d: %+v", len(items), items)
	}
	item := items[0]
	if item.ID != "imdb:tt0133093" {
		t.Fatalf("ID = %q", item.ID)
	}
	if !reflect.DeepEqual(item.Sources, []models.Source{models.SourcePlex, models.SourceTrakt, models.SourceIMDB}) {
		t.Fatalf("Sources = %v", item.Sources)
	}
	if item.Title != "The Matrix" || item.ThumbnailURL != "plex-thumb" {
		t.Fatalf("plex fields should win: %+v", item)
	}
	if item.PlexGUID != "bbb222" || item.TMDBID != "603" {
		t.Fatalf("ids not carried: %+v", item)
	}
	if !item.AddedAt.Plex.Equal(t2024Feb) || !item.AddedAt.Trakt.Equal(t2024Mar) || !item.AddedAt.IMDB.Equal(t2024Jan) {
		t.Fatalf("addedAt not kept per source: %+v", item.AddedAt)
	}
	if item.SourceRating == nil || *item.SourceRating != 8.7 {
		t.Fatalf("SourceRating = %v", item.SourceRating)
	}
}

func TestMergeTMDBIDsAreScopedByType(t *testing.T) {
	records := []watchlist.Record{
		{Source: models.SourceTrakt, IDs: map[string]string{"tmdb": "1399"}, Type: "show", Title: "Game of Thrones", Year: 2011},
		{Source: models.SourceTrakt, IDs: map[string]string{"tmdb": "1399"}, Type: "movie", Title: "Some Movie", Year: 1980},
	}
	items := watchlist.Merge(records)
	if len(items) != 2 {
		t.Fatalf("movie and show with the same tmdb number must stay apart, got %+v", items)
	}
	if items[0].ID == items[1].ID {
		t.Fatalf("ids must be unique, got %q twice", items[0].ID)
	}
}

func TestMergeLooseRecordsAttachByTitle(t *testing.T) {
	records := []watchlist.Record{
		{Source: models.SourceTrakt, IDs: map[string]string{}, Type: "movie", Title: "Amélie", Year: 2001, AddedAt: t2024Jan},
		{Source: models.SourcePlex, IDs: map[string]string{"imdb": "tt0211915"}, Type: "movie", Title: "Amelie (2001)", Year: 2001, AddedAt: t2024Feb},
		{Source: models.SourceIMDB, IDs: map[string]string{}, Type: "movie", Title: "amelie", Year: 2001, AddedAt: t2024Mar},
	}
	items := watchlist.Merge(records)
	if len(items) != 1 {
		t.Fatalf("expected a single item, got %+v", items)
	}
	if items[0].ID != "imdb:tt0211915" || len(items[0].Sources) != 3 {
		t.Fatalf("unexpected item %+v", items[0])
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	records := []watchlist.Record{
		{Source: models.SourcePlex, IDs: map[string]string{"imdb": "tt1160419", "plex": "abc"}, Type: "movie", Title: "Dune", Year: 2021, AddedAt: t2024Feb},
		{Source: models.SourceTrakt, IDs: map[string]string{"imdb": "tt1160419", "tmdb": "438631"}, Type: "movie", Title: "Dune", Year: 2021, AddedAt: t2024Jan},
		{Source: models.SourceTrakt, IDs: map[string]string{"tmdb": "95396"}, Type: "show", Title: "Severance", Year: 2022, AddedAt: t2024Mar},
		{Source: models.SourceIMDB, IDs: map[string]string{"imdb": "tt7888964"}, Type: "show", Title: "Chernobyl", Year: 2019},
	}

	first := watchlist.Merge(records)
	if again := watchlist.Merge(records); !reflect.DeepEqual(first, again) {
		t.Fatalf("merge is not deterministic:\n%+v\n%+v", first, again)
	}

	doubled := append(append([]watchlist.Record(nil), records...), records...)
	if merged := watchlist.Merge(doubled); !reflect.DeepEqual(first, merged) {
		t.Fatalf("duplicated input changed the result:\n%+v\n%+v", first, merged)
	}

	reversed := make([]watchlist.Record, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	if merged := watchlist.Merge(reversed); !reflect.DeepEqual(first, merged) {
		t.Fatalf("input order changed the result:\n%+v\n%+v", first, merged)
	}
}

func TestMergeOrdersNewestFirst(t *testing.T) {
	records := []watchlist.Record{
		{Source: models.SourceIMDB, IDs: map[string]string{"imdb": "tt3"}, Type: "movie", Title: "Undated"},
		{Source: models.SourceIMDB, IDs: map[string]string{"imdb": "tt1"}, Type: "movie", Title: "Old", AddedAt: t2024Jan},
		{Source: models.SourceIMDB, IDs: map[string]string{"imdb": "tt2"}, Type: "movie", Title: "New", AddedAt: t2024Mar},
		{Source: models.SourceIMDB, IDs: map[string]string{"imdb": "tt4"}, Type: "movie", Title: "Also New", AddedAt: t2024Mar},
		// merged item sorts by the earliest time any source added it
		{Source: models.SourceTrakt, IDs: map[string]string{"imdb": "tt2"}, Type: "movie", Title: "New", AddedAt: t2024Jan.Add(-time.Hour)},
	}
	items := watchlist.Merge(records)
	var titles []string
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	want := []string{"Also New", "Old", "New", "Undated"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("order = %v, want %v", titles, want)
	}
}

func TestAnnotateIsLiveAndPure(t *testing.T) {
	items := watchlist.Merge([]watchlist.Record{
		{Source: models.SourceTrakt, IDs: map[string]string{"imdb": "tt1160419"}, Type: "movie", Title: "Dune", Year: 2021, Rating: 7.9},
		{Source: models.SourceTrakt, IDs: map[string]string{"imdb": "tt0816692"}, Type: "movie", Title: "Interstellar", Year: 2014},
	})
	index := library.NewIndex([]plex.Metadata{
		{RatingKey: "10", Type: "movie", Title: "Dune", Year: 2021, ViewCount: 1, AudienceRating: 8.5, Guids: []plex.Guid{{ID: "imdb://tt1160419"}}},
	})

	local := watchlist.Annotate(items, index, watchlist.RatingLocalFirst)
	var dune models.UnifiedWatchlistItem
	for _, item := range local {
		if item.Title == "Dune" {
			dune = item
		}
	}
	if !dune.IsLocal || dune.LocalRef == nil || dune.LocalRef.RatingKey != "10" {
		t.Fatalf("Dune should be local: %+v", dune)
	}
	if dune.IsWatched == nil || !*dune.IsWatched {
		t.Fatalf("Dune should be watched: %+v", dune)
	}
	if dune.Rating == nil || *dune.Rating != 8.5 {
		t.Fatalf("local-first rating = %v", dune.Rating)
	}

	source := watchlist.Annotate(items, index, watchlist.RatingSourceFirst)
	for _, item := range source {
		if item.Title == "Dune" && (item.Rating == nil || *item.Rating != 7.9) {
			t.Fatalf("source-first rating = %v", item.Rating)
		}
		if item.Title == "Interstellar" && (item.IsLocal || item.IsWatched != nil || item.Rating != nil) {
			t.Fatalf("Interstellar should not be local: %+v", item)
		}
	}

	for _, item := range items {
		if item.IsLocal || item.LocalRef != nil {
			t.Fatalf("Annotate modified its input: %+v", item)
		}
	}

	if again := watchlist.Annotate(local, library.Empty(), watchlist.RatingLocalFirst); again[0].IsLocal || again[1].IsLocal {
		t.Fatal("annotation must be recomputed, not carried over")
	}
}

func TestParseRatingPolicy(t *testing.T) {
	for in, want := range map[string]watchlist.RatingPolicy{
		"":             watchlist.RatingLocalFirst,
		"local-first":  watchlist.RatingLocalFirst,
		"Source-First": watchlist.RatingSourceFirst,
	} {
		got, err := watchlist.ParseRatingPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseRatingPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := watchlist.ParseRatingPolicy("imdb"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
