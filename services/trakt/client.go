package trakt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"plexfront/internal/httpx"
)

const (
	traktAPIBaseURL = "https://api.trakt.tv"
	traktAPIVersion = "2"

	watchlistPageSize = 100
)

// ErrUserNotFound is returned when a username does not exist or its profile is private.
var ErrUserNotFound = errors.New("trakt user not found or private")

// Client reads public Trakt data with an application API key.
type Client struct {
	http     *httpx.Client
	clientID string
	baseURL  string
}

// UserProfile represents basic Trakt user information
type UserProfile struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	VIP      bool   `json:"vip"`
	Private  bool   `json:"private"`
	IDs      struct {
		Slug string `json:"slug"`
	} `json:"ids"`
}

// IDs holds external identifiers for a media item
type IDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
	TVDB  int    `json:"tvdb,omitempty"`
}

// Movie represents a Trakt movie
type Movie struct {
	Title  string  `json:"title"`
	Year   int     `json:"year"`
	IDs    IDs     `json:"ids"`
	Rating float64 `json:"rating,omitempty"`
}

// Show represents a Trakt TV show
type Show struct {
	Title  string  `json:"title"`
	Year   int     `json:"year"`
	IDs    IDs     `json:"ids"`
	Rating float64 `json:"rating,omitempty"`
}

// WatchlistItem represents an item from the Trakt watchlist
type WatchlistItem struct {
	Rank     int       `json:"rank"`
	ListedAt time.Time `json:"listed_at"`
	Type     string    `json:"type"` // "movie" or "show"
	Movie    *Movie    `json:"movie,omitempty"`
	Show     *Show     `json:"show,omitempty"`
}

// Title returns the title of the movie or show.
func (w WatchlistItem) Title() string {
	switch {
	case w.Movie != nil:
		return w.Movie.Title
	case w.Show != nil:
		return w.Show.Title
	}
	return ""
}

// Year returns the release year of the movie or show.
func (w WatchlistItem) Year() int {
	switch {
	case w.Movie != nil:
		return w.Movie.Year
	case w.Show != nil:
		return w.Show.Year
	}
	return 0
}

// IDs returns the identifiers of the movie or show.
func (w WatchlistItem) IDs() IDs {
	switch {
	case w.Movie != nil:
		return w.Movie.IDs
	case w.Show != nil:
		return w.Show.IDs
	}
	return IDs{}
}

// Rating returns the Trakt community rating (0-10), 0 when unknown.
func (w WatchlistItem) Rating() float64 {
	switch {
	case w.Movie != nil:
		return w.Movie.Rating
	case w.Show != nil:
		return w.Show.Rating
	}
	return 0
}

// NewClient creates a new Trakt API client
func NewClient(clientID string, timeout time.Duration) *Client {
	return &Client{
		http:     httpx.New("trakt", timeout, 2),
		clientID: strings.TrimSpace(clientID),
		baseURL:  traktAPIBaseURL,
	}
}

// WithBaseURL overrides the API host (tests).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// HasCredentials checks if the client has an API key configured
func (c *Client) HasCredentials() bool {
	return c != nil && c.clientID != ""
}

// setTraktHeaders adds required Trakt API headers to a request
func (c *Client) setTraktHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", traktAPIVersion)
	req.Header.Set("trakt-api-key", c.clientID)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, http.Header, error) {
	if !c.HasCredentials() {
		return nil, nil, errors.New("trakt client id not configured")
	}
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	body, header, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		c.setTraktHeaders(req)
		return req, nil
	})
	if err != nil {
		// private profiles answer 401/403 to anonymous reads
		switch httpx.StatusCode(err) {
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
			return nil, nil, fmt.Errorf("%w: %w", ErrUserNotFound, err)
		}
		return nil, nil, err
	}
	return body, header, nil
}

// GetUserProfile returns the public profile of username.
func (c *Client) GetUserProfile(ctx context.Context, username string) (*UserProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}
	body, _, err := c.get(ctx, "/users/"+url.PathEscape(username), nil)
	if err != nil {
		return nil, err
	}
	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &profile, nil
}

// GetWatchlistPage retrieves one page of a user's public watchlist and the
// total item count reported by the pagination headers.
func (c *Client) GetWatchlistPage(ctx context.Context, username string, page, limit int) ([]WatchlistItem, int, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("extended", "full")

	body, header, err := c.get(ctx, fmt.Sprintf("/users/%s/watchlist", url.PathEscape(username)), query)
	if err != nil {
		return nil, 0, fmt.Errorf("trakt watchlist: %w", err)
	}

	totalCount := 0
	if totalHeader := header.Get("X-Pagination-Item-Count"); totalHeader != "" {
		totalCount, _ = strconv.Atoi(totalHeader)
	}

	var items []WatchlistItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}
	return items, totalCount, nil
}

// GetPublicWatchlist retrieves the complete public watchlist of username,
// keeping only movies and shows.
func (c *Client) GetPublicWatchlist(ctx context.Context, username string) ([]WatchlistItem, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}

	var allItems []WatchlistItem
	for page := 1; ; page++ {
		items, totalCount, err := c.GetWatchlistPage(ctx, username, page, watchlistPageSize)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.Movie != nil || item.Show != nil {
				allItems = append(allItems, item)
			}
		}
		// without a count header there is no way to know about more pages
		if totalCount == 0 || page*watchlistPageSize >= totalCount || len(items) == 0 {
			break
		}
	}
	return allItems, nil
}

// IDsToMap converts IDs struct to a map for compatibility with watchlist service
func IDsToMap(ids IDs) map[string]string {
	result := make(map[string]string)
	if ids.IMDB != "" {
		result["imdb"] = ids.IMDB
	}
	if ids.TMDB != 0 {
		result["tmdb"] = strconv.Itoa(ids.TMDB)
	}
	if ids.TVDB != 0 {
		result["tvdb"] = strconv.Itoa(ids.TVDB)
	}
	if ids.Trakt != 0 {
		result["trakt"] = strconv.Itoa(ids.Trakt)
	}
	return result
}
