package imdb

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

const sampleExport = "\ufeffPosition,Const,Created,Modified,Description,Title,URL,Title Type,IMDb Rating,Runtime (mins),Year,Genres,Num Votes,Release Date,Directors\n" +
	"1,tt1160419,2024-03-01,2024-03-01,,Dune,https://www.imdb.com/title/tt1160419/,Movie,8.0,155,2021,\"Action, Adventure, Drama\",900000,2021-09-15,Denis Villeneuve\n" +
	"2,tt11280740,2024-02-10,2024-02-10,,Severance,https://www.imdb.com/title/tt11280740/,TV Series,8.7,55,2022,Drama,300000,2022-02-18,\n" +
	"3,tt0000001,2024-01-01,2024-01-01,,Some Episode,https://www.imdb.com/title/tt0000001/,TV Episode,7.0,30,2020,,10,,\n" +
	"4,tt7888964,2024-01-05,2024-01-05,,Chernobyl,https://www.imdb.com/title/tt7888964/,TV Mini Series,9.3,330,2019,Drama,800000,2019-05-06,\n"

func TestParseExport(t *testing.T) {
	items, err := ParseExport(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items (episode dropped), got %d: %+v", len(items), items)
	}

	dune := items[0]
	if dune.IMDBID != "tt1160419" || dune.Title != "Dune" || dune.Type != "movie" || dune.Year != 2021 || dune.Rating != 8.0 {
		t.Fatalf("unexpected first item %+v", dune)
	}
	if !dune.AddedAt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected addedAt %v", dune.AddedAt)
	}
	if items[1].Type != "show" || items[2].Type != "show" {
		t.Fatalf("series and mini series should be shows: %+v", items[1:])
	}
}

func TestParseExportEmpty(t *testing.T) {
	items, err := ParseExport(strings.NewReader(""))
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty result, got %v, %v", items, err)
	}
	if _, err := ParseExport(strings.NewReader("a,b\n1,2\n")); err == nil {
		t.Fatal("expected error for export without Const column")
	}
}

func TestNormalizeListID(t *testing.T) {
	for _, ok := range []string{"ls012345678", " ur1234567 "} {
		if _, err := NormalizeListID(ok); err != nil {
			t.Errorf("NormalizeListID(%q) unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"", "tt1160419", "ls12", "ls012345678/../x"} {
		if _, err := NormalizeListID(bad); !errors.Is(err, ErrInvalidListID) {
			t.Errorf("NormalizeListID(%q) expected ErrInvalidListID, got %v", bad, err)
		}
	}
}

func TestGetPublicWatchlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list/ls012345678/export":
			w.Header().Set("Content-Type", "text/csv")
			fmt.Fprint(w, sampleExport)
		case "/user/ur7654321/watchlist/export":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(time.Second).WithBaseURL(srv.URL)

	items, err := c.GetPublicWatchlist(context.Background(), "ls012345678")
	if err != nil || len(items) != 3 {
		t.Fatalf("GetPublicWatchlist = %d items, %v", len(items), err)
	}

	if _, err := c.GetPublicWatchlist(context.Background(), "ur7654321"); !errors.Is(err, ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound for private watchlist, got %v", err)
	}
}
