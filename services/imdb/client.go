// Package imdb reads public IMDB lists and watchlists through their CSV export.
package imdb

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"plexfront/internal/httpx"
)

const imdbBaseURL = "https://www.imdb.com"

var (
	// ErrInvalidListID is returned for identifiers that are neither list (ls…)
	// nor user (ur…) ids.
	ErrInvalidListID = errors.New("invalid imdb list id")
	// ErrListNotFound is returned when the list does not exist or is private.
	ErrListNotFound = errors.New("imdb list not found or private")

	listIDRe = regexp.MustCompile(`^(ls|ur)\d{6,}$`)
)

// Item is one row of a list export.
type Item struct {
	IMDBID  string
	Title   string
	Type    string // "movie" or "show"
	Year    int
	Rating  float64
	AddedAt time.Time
}

// Client downloads list exports.
type Client struct {
	http    *httpx.Client
	baseURL string
}

// NewClient creates a client.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:    httpx.New("imdb", timeout, 2),
		baseURL: imdbBaseURL,
	}
}

// WithBaseURL overrides the IMDB host (tests).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// NormalizeListID trims an id and validates its shape.
func NormalizeListID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !listIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidListID, id)
	}
	return id, nil
}

// GetPublicWatchlist returns the items of a public list (ls…) or of a user's
// public watchlist (ur…).
func (c *Client) GetPublicWatchlist(ctx context.Context, listID string) ([]Item, error) {
	id, err := NormalizeListID(listID)
	if err != nil {
		return nil, err
	}

	path := "/list/" + id + "/export"
	if strings.HasPrefix(id, "ur") {
		path = "/user/" + id + "/watchlist/export"
	}

	body, _, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/csv")
		req.Header.Set("Accept-Language", "en-US")
		return req, nil
	})
	if err != nil {
		switch httpx.StatusCode(err) {
		case http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s", ErrListNotFound, id)
		}
		return nil, fmt.Errorf("imdb list %s: %w", id, err)
	}
	return ParseExport(bytes.NewReader(body))
}

// ParseExport decodes an IMDB list CSV export. Columns are located by header
// name since IMDB has reordered them over time.
func ParseExport(r io.Reader) ([]Item, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read imdb export header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	constCol, ok := cols["const"]
	if !ok {
		return nil, errors.New("imdb export has no Const column")
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var items []Item
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read imdb export: %w", err)
		}
		if constCol >= len(rec) || !strings.HasPrefix(strings.TrimSpace(rec[constCol]), "tt") {
			continue
		}

		mediaType := normalizeTitleType(field(rec, "title type"))
		if mediaType == "" {
			continue
		}

		item := Item{
			IMDBID: strings.TrimSpace(rec[constCol]),
			Title:  field(rec, "title"),
			Type:   mediaType,
		}
		item.Year, _ = strconv.Atoi(field(rec, "year"))
		item.Rating, _ = strconv.ParseFloat(field(rec, "imdb rating"), 64)
		if created := field(rec, "created"); created != "" {
			if t, err := time.Parse("2006-01-02", created); err == nil {
				item.AddedAt = t.UTC()
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// normalizeTitleType maps IMDB title types to movie/show; episodes, games and
// other types are dropped.
func normalizeTitleType(t string) string {
	switch strings.ToLower(strings.ReplaceAll(t, " ", "")) {
	case "movie", "tvmovie", "video", "short", "tvspecial", "documentary":
		return "movie"
	case "tvseries", "tvminiseries", "tvshow", "tvminiserie":
		return "show"
	default:
		return ""
	}
}
