package logos

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"plexfront/internal/httpx"
	"plexfront/services/tmdb"
)

type fakeTMDB struct {
	searchCalls int32
	imageCalls  int32
	results     []tmdb.SearchResult
	logos       []tmdb.Image
	searchErr   error
	delay       time.Duration
}

func (f *fakeTMDB) SearchMovie(ctx context.Context, title string, year int) ([]tmdb.SearchResult, error) {
	atomic.AddInt32(&f.searchCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.results, f.searchErr
}

func (f *fakeTMDB) SearchTV(ctx context.Context, title string, year int) ([]tmdb.SearchResult, error) {
	return f.SearchMovie(ctx, title, year)
}

func (f *fakeTMDB) GetMovieImages(ctx context.Context, id int64) (*tmdb.Images, error) {
	atomic.AddInt32(&f.imageCalls, 1)
	return &tmdb.Images{ID: id, Logos: f.logos}, nil
}

func (f *fakeTMDB) GetTVImages(ctx context.Context, id int64) (*tmdb.Images, error) {
	return f.GetMovieImages(ctx, id)
}

func (f *fakeTMDB) ImageURL(filePath string) string {
	return "https://image.example" + filePath
}

func TestSelectLogoPrefersEnglish(t *testing.T) {
	logos := []tmdb.Image{
		{FilePath: "/fr.png", Language: "fr"},
		{FilePath: "/none.png", Language: ""},
		{FilePath: "/en.png", Language: "en-US"},
	}
	got, ok := SelectLogo(logos)
	if !ok || got.FilePath != "/en.png" {
		t.Fatalf("expected english logo, got %+v", got)
	}

	got, ok = SelectLogo([]tmdb.Image{{FilePath: "/de.png", Language: "de"}, {FilePath: "/ja.png", Language: "ja"}})
	if !ok || got.FilePath != "/de.png" {
		t.Fatalf("expected first candidate fallback, got %+v", got)
	}

	if _, ok := SelectLogo(nil); ok {
		t.Fatal("expected no selection for empty list")
	}
	if _, ok := SelectLogo([]tmdb.Image{{Language: "en"}}); ok {
		t.Fatal("candidates without a path are ignored")
	}
}

func TestResolverDownloadsPreferredLogo(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	dl := &fakeDownloader{data: pngBytes(t)}
	cache := newTestCache(t, afero.NewMemMapFs(), dl, clock)
	fake := &fakeTMDB{
		results: []tmdb.SearchResult{
			{ID: 841, Title: "Dune", ReleaseDate: "1984-12-14"},
			{ID: 438631, Title: "Dune", ReleaseDate: "2021-09-15"},
		},
		logos: []tmdb.Image{{FilePath: "/it.png", Language: "it"}, {FilePath: "/en.png", Language: "en"}},
	}
	r := NewResolver(cache, fake)

	res, err := r.Resolve(context.Background(), "movie", "Dune", 2021)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Hit || res.Filename == "" || res.TMDBID != 438631 {
		t.Fatalf("unexpected result %+v", res)
	}

	again, err := r.Resolve(context.Background(), "movie", "Dune (2021)", 2021)
	if err != nil || again.Filename != res.Filename {
		t.Fatalf("second resolve = %+v, %v", again, err)
	}
	if got := atomic.LoadInt32(&fake.searchCalls); got != 1 {
		t.Fatalf("expected cached second lookup, got %d searches", got)
	}
	if got := atomic.LoadInt32(&dl.calls); got != 1 {
		t.Fatalf("expected one download, got %d", got)
	}
}

func TestResolverCachesNegativeResults(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(t, afero.NewMemMapFs(), nil, clock)

	noMatch := &fakeTMDB{}
	r := NewResolver(cache, noMatch)
	res, err := r.Resolve(context.Background(), "movie", "Nothing Here", 0)
	if err != nil || !res.Negative() {
		t.Fatalf("expected negative result, got %+v, %v", res, err)
	}

	noLogos := &fakeTMDB{results: []tmdb.SearchResult{{ID: 5, Name: "Quiet Show"}}}
	r = NewResolver(cache, noLogos)
	res, err = r.Resolve(context.Background(), "show", "Quiet Show", 0)
	if err != nil || !res.Negative() || res.TMDBID != 5 {
		t.Fatalf("expected negative result with id, got %+v, %v", res, err)
	}

	if _, err := r.Resolve(context.Background(), "show", "Quiet Show", 0); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&noLogos.searchCalls); got != 1 {
		t.Fatalf("negative entry should short-circuit, got %d searches", got)
	}
}

func TestResolverDoesNotCacheRateLimit(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(t, afero.NewMemMapFs(), nil, clock)
	fake := &fakeTMDB{searchErr: &httpx.StatusError{Service: "tmdb", StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}}
	r := NewResolver(cache, fake)

	_, err := r.Resolve(context.Background(), "movie", "Dune", 2021)
	if !errors.Is(err, httpx.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if res := cache.Lookup("movie", "Dune", 2021); res.Hit {
		t.Fatalf("rate limit must not be cached as negative, got %+v", res)
	}
}

func TestResolverDeduplicatesConcurrentMisses(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := newTestCache(t, afero.NewMemMapFs(), &fakeDownloader{data: pngBytes(t)}, clock)
	fake := &fakeTMDB{
		results: []tmdb.SearchResult{{ID: 1, Title: "Heat"}},
		logos:   []tmdb.Image{{FilePath: "/heat.png", Language: "en"}},
		delay:   30 * time.Millisecond,
	}
	r := NewResolver(cache, fake)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), "movie", "Heat", 1995); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fake.searchCalls); got != 1 {
		t.Fatalf("expected one tmdb search, got %d", got)
	}
}
