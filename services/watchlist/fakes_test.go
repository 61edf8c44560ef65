package watchlist_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"plexfront/models"
	"plexfront/services/imdb"
	"plexfront/services/library"
	"plexfront/services/plex"
	"plexfront/services/trakt"
)

type fakePlex struct {
	mu    sync.Mutex
	items []plex.WatchlistItem
	err   error
	calls int32
}

func (f *fakePlex) GetWatchlist(ctx context.Context, token, filter string) ([]plex.WatchlistItem, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, f.err
}

func (f *fakePlex) Calls() int32 { return atomic.LoadInt32(&f.calls) }

type fakeTrakt struct {
	mu    sync.Mutex
	items []trakt.WatchlistItem
	err   error
	calls int32
}

func (f *fakeTrakt) GetPublicWatchlist(ctx context.Context, username string) ([]trakt.WatchlistItem, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, f.err
}

func (f *fakeTrakt) set(items []trakt.WatchlistItem, err error) {
	f.mu.Lock()
	f.items, f.err = items, err
	f.mu.Unlock()
}

type fakeIMDB struct {
	lists map[string][]imdb.Item
	err   error
	calls int32
}

func (f *fakeIMDB) GetPublicWatchlist(ctx context.Context, listID string) ([]imdb.Item, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.lists[listID], nil
}

type fakeResolver struct {
	ids   map[string]map[string]string
	calls int32
}

func (f *fakeResolver) GetItemDetails(ctx context.Context, token, ratingKey string) (map[string]string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.ids[ratingKey], nil
}

type fakeLibrary struct {
	mu    sync.Mutex
	items []plex.Metadata
	err   error
}

func (f *fakeLibrary) BuildLibraryIndex(ctx context.Context, token string) (*library.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return library.NewIndex(f.items), nil
}

func (f *fakeLibrary) set(items []plex.Metadata) {
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

type fakeSettings struct {
	mu       sync.Mutex
	settings map[string]models.UserSettings
}

func (f *fakeSettings) Get(userID string) (models.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[userID]; ok {
		return s, nil
	}
	return models.DefaultUserSettings(), nil
}

func (f *fakeSettings) set(userID string, s models.UserSettings) {
	f.mu.Lock()
	if f.settings == nil {
		f.settings = make(map[string]models.UserSettings)
	}
	f.settings[userID] = s
	f.mu.Unlock()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	t2024Jan = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	t2024Feb = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	t2024Mar = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

// duneSources lists Dune on all three sources: Plex knows the IMDB id through
// its Guid list, Trakt has IMDB and TMDB ids, the IMDB list only the IMDB id.
func duneSources() (*fakePlex, *fakeTrakt, *fakeIMDB) {
	p := &fakePlex{items: []plex.WatchlistItem{{
		RatingKey: "5d776b59ad5437001f79c6f8",
		GUID:      "plex://movie/5d776b59ad5437001f79c6f8",
		Guids:     []plex.Guid{{ID: "imdb://tt1160419"}},
		Type:      "movie",
		Title:     "Dune",
		Year:      2021,
		Thumb:     "https://metadata-static.plex.tv/dune.jpg",
		AddedAt:   t2024Feb.Unix(),
	}}}
	tr := &fakeTrakt{items: []trakt.WatchlistItem{{
		ListedAt: t2024Jan,
		Type:     "movie",
		Movie:    &trakt.Movie{Title: "Dune", Year: 2021, Rating: 7.9, IDs: trakt.IDs{Trakt: 1, IMDB: "tt1160419", TMDB: 438631}},
	}}}
	im := &fakeIMDB{lists: map[string][]imdb.Item{"ls012345678": {
		{IMDBID: "tt1160419", Title: "Dune", Type: "movie", Year: 2021, Rating: 8.0, AddedAt: t2024Mar},
	}}}
	return p, tr, im
}
