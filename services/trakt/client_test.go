package trakt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetPublicWatchlist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/paul/watchlist" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("trakt-api-key") != "test-client-id" {
			t.Errorf("expected trakt-api-key header")
		}
		if r.Header.Get("trakt-api-version") != "2" {
			t.Errorf("expected trakt-api-version header")
		}
		if r.URL.Query().Get("limit") != "100" {
			t.Errorf("unexpected limit %q", r.URL.Query().Get("limit"))
		}

		w.Header().Set("X-Pagination-Item-Count", "101")
		switch r.URL.Query().Get("page") {
		case "1":
			items := make([]string, 0, 100)
			for i := 0; i < 100; i++ {
				items = append(items, fmt.Sprintf(`{"rank":%d,"listed_at":"2024-01-01T00:00:00.000Z","type":"movie","movie":{"title":"Movie %d","year":2000,"ids":{"trakt":%d}}}`, i+1, i, i+1))
			}
			fmt.Fprintf(w, "[%s]", strings.Join(items, ","))
		case "2":
			fmt.Fprint(w, `[{"rank":101,"listed_at":"2024-02-01T10:00:00.000Z","type":"show","show":{"title":"Severance","year":2022,"rating":8.4,"ids":{"trakt":1,"imdb":"tt11280740","tmdb":95396,"tvdb":371980}}}]`)
		default:
			t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
			fmt.Fprint(w, `[]`)
		}
	}))
	defer server.Close()

	client := NewClient("test-client-id", time.Second).WithBaseURL(server.URL)
	items, err := client.GetPublicWatchlist(context.Background(), "paul")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 101 {
		t.Fatalf("expected 101 items, got %d", len(items))
	}

	last := items[100]
	if last.Title() != "Severance" || last.Year() != 2022 || last.Rating() != 8.4 {
		t.Errorf("unexpected item %+v", last)
	}
	ids := IDsToMap(last.IDs())
	if ids["imdb"] != "tt11280740" || ids["tmdb"] != "95396" || ids["tvdb"] != "371980" {
		t.Errorf("unexpected ids %v", ids)
	}
	if !last.ListedAt.Equal(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected listed_at %v", last.ListedAt)
	}
}

func TestUnknownUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient("test-client-id", time.Second).WithBaseURL(server.URL)
	if _, err := client.GetPublicWatchlist(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := client.GetUserProfile(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := client.GetPublicWatchlist(context.Background(), "  "); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for blank user, got %v", err)
	}
}

func TestGetUserProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/paul" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"username":"paul","private":false,"ids":{"slug":"paul"}}`)
	}))
	defer server.Close()

	client := NewClient("test-client-id", time.Second).WithBaseURL(server.URL)
	profile, err := client.GetUserProfile(context.Background(), "paul")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Username != "paul" || profile.IDs.Slug != "paul" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestMissingCredentials(t *testing.T) {
	client := NewClient("", time.Second)
	if client.HasCredentials() {
		t.Fatal("expected no credentials")
	}
	if _, err := client.GetPublicWatchlist(context.Background(), "paul"); err == nil {
		t.Fatal("expected error without client id")
	}
}
