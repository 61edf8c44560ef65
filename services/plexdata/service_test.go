package plexdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"plexfront/internal/httpx"
	"plexfront/internal/storage"
	"plexfront/services/plex"
)

type fakeServer struct {
	deckCalls    int32
	libraryCalls int32
	scanCalls    int32
	deckErr      error

	mu    sync.Mutex
	added []plex.Metadata
}

func (f *fakeServer) add(item plex.Metadata) {
	f.mu.Lock()
	f.added = append(f.added, item)
	f.mu.Unlock()
}

func (f *fakeServer) GetLibraries(ctx context.Context, token string) ([]plex.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddInt32(&f.libraryCalls, 1)
	return []plex.Directory{
		{Key: "1", Type: "movie", Title: "Movies"},
		{Key: "2", Type: "show", Title: "TV"},
		{Key: "3", Type: "artist", Title: "Music"},
	}, nil
}

func (f *fakeServer) GetLibraryItems(ctx context.Context, token, sectionKey string, opts plex.ItemsOptions) ([]plex.Metadata, int, error) {
	return []plex.Metadata{{RatingKey: "10", Type: "movie", Title: "Dune"}}, 40, nil
}

func (f *fakeServer) GetAllLibraryItems(ctx context.Context, token, sectionKey string, pageSize int) ([]plex.Metadata, error) {
	atomic.AddInt32(&f.scanCalls, 1)
	switch sectionKey {
	case "1":
		f.mu.Lock()
		defer f.mu.Unlock()
		items := []plex.Metadata{{RatingKey: "10", Type: "movie", Title: "Dune", Year: 2021, Guids: []plex.Guid{{ID: "imdb://tt1160419"}}}}
		return append(items, f.added...), nil
	case "2":
		return []plex.Metadata{{RatingKey: "20", Type: "show", Title: "Severance", Year: 2022}}, nil
	}
	return nil, errors.New("unexpected section " + sectionKey)
}

func (f *fakeServer) GetMetadata(ctx context.Context, token, ratingKey string) (*plex.Metadata, error) {
	if ratingKey != "10" {
		return nil, &httpx.StatusError{Service: "plex", StatusCode: 404}
	}
	return &plex.Metadata{RatingKey: "10", Type: "movie", Title: "Dune"}, nil
}

func (f *fakeServer) GetOnDeck(ctx context.Context, token string, limit int) ([]plex.Metadata, error) {
	atomic.AddInt32(&f.deckCalls, 1)
	if f.deckErr != nil {
		return nil, f.deckErr
	}
	return []plex.Metadata{{RatingKey: "30", Type: "episode", Title: "Pilot"}}, nil
}

func (f *fakeServer) GetRecentlyAdded(ctx context.Context, token, sectionKey string, limit int) ([]plex.Metadata, error) {
	return []plex.Metadata{{RatingKey: "10", Type: "movie", Title: "Dune"}}, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(server Server, c *clock) *Service {
	opts := DefaultOptions()
	opts.Now = c.Now
	opts.RefreshTimeout = time.Second
	return NewService(storage.New(afero.NewMemMapFs()), server, opts)
}

func TestHomeIsCachedPerUser(t *testing.T) {
	server := &fakeServer{}
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(server, c)
	ctx := context.Background()

	home, err := svc.Home(ctx, "alice")
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if len(home.Data.OnDeck) != 1 || len(home.Data.RecentlyAdded) != 1 || home.IsStale {
		t.Fatalf("unexpected home %+v", home)
	}

	if _, err := svc.Home(ctx, "alice"); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if got := atomic.LoadInt32(&server.deckCalls); got != 1 {
		t.Fatalf("expected cached home, got %d origin calls", got)
	}

	if _, err := svc.Home(ctx, "bob"); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if got := atomic.LoadInt32(&server.deckCalls); got != 2 {
		t.Fatalf("users must not share entries, got %d origin calls", got)
	}

	c.now = c.now.Add(time.Minute)
	home, err = svc.Home(ctx, "alice")
	if err != nil || !home.IsStale {
		t.Fatalf("expected stale home after 1m, got %+v, %v", home, err)
	}
	svc.Wait()
	if got := atomic.LoadInt32(&server.deckCalls); got != 3 {
		t.Fatalf("expected a background refresh, got %d origin calls", got)
	}
}

func TestHomeErrorIsReturned(t *testing.T) {
	server := &fakeServer{deckErr: httpx.ErrRateLimited}
	svc := newTestService(server, &clock{now: time.Now()})
	if _, err := svc.Home(context.Background(), "alice"); !errors.Is(err, httpx.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if _, err := svc.Home(context.Background(), " "); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}

func TestBuildLibraryIndexScansVideoSections(t *testing.T) {
	server := &fakeServer{}
	svc := newTestService(server, &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	index, err := svc.BuildLibraryIndex(ctx, "alice")
	if err != nil {
		t.Fatalf("BuildLibraryIndex: %v", err)
	}
	if index.Len() != 2 {
		t.Fatalf("expected 2 indexed items, got %d", index.Len())
	}
	if ref, ok := index.Match(map[string]string{"imdb": "tt1160419"}, "movie", "", 0); !ok || ref.RatingKey != "10" {
		t.Fatalf("expected Dune in index, got %+v %v", ref, ok)
	}
	if got := atomic.LoadInt32(&server.scanCalls); got != 2 {
		t.Fatalf("expected one scan of two sections, got %d section reads", got)
	}
}

func TestBuildLibraryIndexSeesNewTitles(t *testing.T) {
	server := &fakeServer{}
	svc := newTestService(server, &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	index, err := svc.BuildLibraryIndex(ctx, "alice")
	if err != nil {
		t.Fatalf("BuildLibraryIndex: %v", err)
	}
	arrival := map[string]string{"imdb": "tt15239678"}
	if _, ok := index.Match(arrival, "movie", "Dune: Part Two", 2024); ok {
		t.Fatal("title matched before it was added")
	}

	server.add(plex.Metadata{RatingKey: "11", Type: "movie", Title: "Dune: Part Two", Year: 2024,
		Guids: []plex.Guid{{ID: "imdb://tt15239678"}}})

	// same instant: no cache window may hide the new title
	index, err = svc.BuildLibraryIndex(ctx, "alice")
	if err != nil {
		t.Fatalf("BuildLibraryIndex: %v", err)
	}
	if ref, ok := index.Match(arrival, "movie", "", 0); !ok || ref.RatingKey != "11" {
		t.Fatalf("expected new title in index, got %+v %v", ref, ok)
	}
	if got := atomic.LoadInt32(&server.scanCalls); got != 4 {
		t.Fatalf("expected two full scans, got %d section reads", got)
	}
}

func TestBuildLibraryIndexSurvivesCancelledCaller(t *testing.T) {
	server := &fakeServer{}
	svc := newTestService(server, &clock{now: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	index, err := svc.BuildLibraryIndex(ctx, "alice")
	if err != nil {
		t.Fatalf("BuildLibraryIndex: %v", err)
	}
	if index.Len() != 2 {
		t.Fatalf("expected 2 indexed items, got %d", index.Len())
	}
}

func TestLibraryReads(t *testing.T) {
	server := &fakeServer{}
	svc := newTestService(server, &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	libs, err := svc.Libraries(ctx, "alice")
	if err != nil || len(libs.Data) != 3 {
		t.Fatalf("Libraries = %+v, %v", libs, err)
	}
	page, err := svc.LibraryItems(ctx, "alice", "1", plex.ItemsOptions{Limit: 1, Sort: "titleSort:asc"})
	if err != nil || page.Data.TotalSize != 40 || len(page.Data.Items) != 1 {
		t.Fatalf("LibraryItems = %+v, %v", page, err)
	}
	meta, err := svc.Metadata(ctx, "alice", "10")
	if err != nil || meta.Data.Title != "Dune" {
		t.Fatalf("Metadata = %+v, %v", meta, err)
	}
	if _, err := svc.Metadata(ctx, "alice", "404"); !errors.Is(err, httpx.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	svc.Invalidate("alice")
	if _, err := svc.Libraries(ctx, "alice"); err != nil {
		t.Fatalf("Libraries: %v", err)
	}
	if got := atomic.LoadInt32(&server.libraryCalls); got != 2 {
		t.Fatalf("expected refetch after Invalidate, got %d calls", got)
	}
	if removed, err := svc.Clear(); err != nil || removed == 0 {
		t.Fatalf("Clear = %d, %v", removed, err)
	}
}
