package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"plexfront/internal/httpx"
)

func TestParseYear(t *testing.T) {
	if year := parseYear("2024-05-01", ""); year != 2024 {
		t.Fatalf("expected 2024, got %d", year)
	}
	if year := parseYear("", "2019-01-01"); year != 2019 {
		t.Fatalf("expected 2019, got %d", year)
	}
	if year := parseYear("199", ""); year != 0 {
		t.Fatalf("expected 0 for invalid date, got %d", year)
	}
}

func TestImageURL(t *testing.T) {
	c := NewClient("key", time.Second, 0)
	if got := c.ImageURL(""); got != "" {
		t.Fatalf("expected empty url for empty path, got %q", got)
	}
	if got := c.ImageURL("/logo.png"); got != "https://image.tmdb.org/t/p/original/logo.png" {
		t.Fatalf("unexpected image url: %s", got)
	}
}

func TestSearchAndImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search/movie":
			if r.URL.Query().Get("query") != "Dune" || r.URL.Query().Get("year") != "2021" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"results":[{"id":438631,"title":"Dune","release_date":"2021-09-15"}]}`))
		case "/movie/438631/images":
			w.Write([]byte(`{"id":438631,"logos":[{"file_path":"/fr.png","iso_639_1":"fr"},{"file_path":"/en.png","iso_639_1":"en"},{"file_path":"/none.png","iso_639_1":null}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("secret", time.Second, 100).WithBaseURL(srv.URL, "")

	results, err := c.SearchMovie(context.Background(), "Dune", 2021)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 438631 || results[0].Year() != 2021 || results[0].DisplayTitle() != "Dune" {
		t.Fatalf("unexpected results %+v", results)
	}

	images, err := c.GetMovieImages(context.Background(), 438631)
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	if len(images.Logos) != 3 || images.Logos[1].Language != "en" || images.Logos[2].Language != "" {
		t.Fatalf("unexpected logos %+v", images.Logos)
	}

	if _, err := c.GetTVImages(context.Background(), 1); !errors.Is(err, httpx.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRateLimitedResponseIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("secret", time.Second, 100).WithBaseURL(srv.URL, "")
	_, err := c.SearchTV(context.Background(), "Severance", 0)

	var se *httpx.StatusError
	if !errors.As(err, &se) || !se.IsRateLimited() {
		t.Fatalf("expected rate limit status error, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("  ", time.Second, 0)
	if c.IsConfigured() {
		t.Fatal("blank key should not count as configured")
	}
	if _, err := c.SearchMovie(context.Background(), "x", 0); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
