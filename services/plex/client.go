package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"plexfront/internal/httpx"
)

const (
	plexDiscoverBaseURL = "https://discover.provider.plex.tv"
	product             = "plexfront"
	productVersion      = "1.0.0"

	watchlistPageSize = 50
)

// ErrNoServer is returned by server calls when no media server URL is configured.
var ErrNoServer = errors.New("plex server url not configured")

// Client talks to a Plex Media Server and to the plex.tv discover API.
// Calls take the caller's token so one client serves every user.
type Client struct {
	http        *httpx.Client
	clientID    string
	serverURL   string
	discoverURL string
}

// NewClient creates a new Plex API client. serverURL may be empty when only
// the discover API (watchlists) is used.
func NewClient(serverURL, clientID string, timeout time.Duration) *Client {
	if strings.TrimSpace(clientID) == "" {
		clientID = GenerateClientID()
	}
	return &Client{
		http:        httpx.New("plex", timeout, 2),
		clientID:    clientID,
		serverURL:   strings.TrimRight(strings.TrimSpace(serverURL), "/"),
		discoverURL: plexDiscoverBaseURL,
	}
}

// WithDiscoverURL overrides the discover API host (tests).
func (c *Client) WithDiscoverURL(u string) *Client {
	c.discoverURL = strings.TrimRight(u, "/")
	return c
}

// setPlexHeaders adds required Plex headers to a request
func (c *Client) setPlexHeaders(req *http.Request, token string) {
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", product)
	req.Header.Set("X-Plex-Version", productVersion)
	req.Header.Set("X-Plex-Platform", "Web")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
}

func (c *Client) get(ctx context.Context, base, path string, query url.Values, token string) ([]byte, http.Header, error) {
	reqURL := base + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	return c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		c.setPlexHeaders(req, token)
		return req, nil
	})
}

func (c *Client) getContainer(ctx context.Context, base, path string, query url.Values, token string) (*MediaContainer, error) {
	body, _, err := c.get(ctx, base, path, query, token)
	if err != nil {
		return nil, err
	}
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp.MediaContainer, nil
}

// GetWatchlist retrieves the user's Plex watchlist (all pages). filter is
// "movie", "show" or empty for everything.
func (c *Client) GetWatchlist(ctx context.Context, authToken, filter string) ([]WatchlistItem, error) {
	var allItems []WatchlistItem
	offset := 0

	for {
		items, totalSize, err := c.getWatchlistPage(ctx, authToken, filter, offset, watchlistPageSize)
		if err != nil {
			return nil, err
		}

		allItems = append(allItems, items...)

		if len(allItems) >= totalSize || len(items) == 0 {
			break
		}
		offset += len(items)
	}

	return allItems, nil
}

func (c *Client) getWatchlistPage(ctx context.Context, authToken, filter string, offset, limit int) ([]WatchlistItem, int, error) {
	query := url.Values{}
	query.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	query.Set("X-Plex-Container-Size", strconv.Itoa(limit))
	query.Set("includeGuids", "1")
	switch NormalizeMediaType(filter) {
	case "movie":
		query.Set("type", "1")
	case "show":
		query.Set("type", "2")
	}

	body, _, err := c.get(ctx, c.discoverURL, "/library/sections/watchlist/all", query, authToken)
	if err != nil {
		return nil, 0, fmt.Errorf("plex watchlist: %w", err)
	}

	var page watchlistPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("decode watchlist: %w", err)
	}
	total := page.MediaContainer.TotalSize
	if total == 0 {
		total = page.MediaContainer.Size
	}
	return page.MediaContainer.Metadata, total, nil
}

var guidPatterns = map[string]*regexp.Regexp{
	"imdb": regexp.MustCompile(`imdb://?(tt\d+)`),
	"tmdb": regexp.MustCompile(`tmdb://(\d+)`),
	"tvdb": regexp.MustCompile(`tvdb://(\d+)`),
	"plex": regexp.MustCompile(`plex://(?:movie|show|season|episode)/([a-f0-9]+)`),
}

// ParseGUID extracts external IDs from a Plex GUID string
// Example GUID: "plex://movie/5d7768532e80df001ebe18e3" or contains references like "imdb://tt1234567"
func ParseGUID(guid string) map[string]string {
	ids := make(map[string]string)
	for service, pattern := range guidPatterns {
		if matches := pattern.FindStringSubmatch(guid); len(matches) > 1 {
			ids[service] = matches[1]
		}
	}
	return ids
}

// GetItemDetails retrieves the external IDs of a discover item. A failed
// lookup is non-critical and yields no IDs.
func (c *Client) GetItemDetails(ctx context.Context, authToken, ratingKey string) (map[string]string, error) {
	if strings.TrimSpace(ratingKey) == "" {
		return nil, nil
	}
	container, err := c.getContainer(ctx, c.discoverURL, "/library/metadata/"+url.PathEscape(ratingKey), nil, authToken)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	ids := make(map[string]string)
	if len(container.Metadata) > 0 {
		for k, v := range container.Metadata[0].ExternalIDs() {
			ids[k] = v
		}
	}
	return ids, nil
}

// NormalizeMediaType maps Plex and external type names onto "movie" or "show".
func NormalizeMediaType(plexType string) string {
	switch strings.ToLower(strings.TrimSpace(plexType)) {
	case "movie", "movies", "film":
		return "movie"
	case "show", "shows", "series", "tv":
		return "show"
	default:
		return strings.ToLower(strings.TrimSpace(plexType))
	}
}

// ClientID returns the client identifier
func (c *Client) ClientID() string {
	return c.clientID
}

// GenerateClientID generates a new unique client identifier
func GenerateClientID() string {
	return product + "-" + uuid.NewString()
}
