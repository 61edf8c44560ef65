// Package tmdb is a minimal TMDB v3 client covering the search and image
// endpoints used by the logo resolver.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"plexfront/internal/httpx"
	"plexfront/utils"
)

const (
	defaultBaseURL      = "https://api.themoviedb.org/3"
	defaultImageBaseURL = "https://image.tmdb.org/t/p/original"

	// TMDB allows roughly 40 requests per 10 seconds per IP.
	defaultRequestsPerSecond = 4
	defaultBurst             = 8
)

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("tmdb api key not configured")

// SearchResult is a movie or TV search hit.
type SearchResult struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// DisplayTitle returns the movie title or the show name.
func (r SearchResult) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// Year parses the release or first-air year, 0 when unknown.
func (r SearchResult) Year() int {
	return parseYear(r.ReleaseDate, r.FirstAirDate)
}

// Image is one entry of an images response.
type Image struct {
	FilePath    string  `json:"file_path"`
	Language    string  `json:"iso_639_1"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	VoteAverage float64 `json:"vote_average"`
}

// Images groups the artwork of a title.
type Images struct {
	ID        int64   `json:"id"`
	Logos     []Image `json:"logos"`
	Posters   []Image `json:"posters"`
	Backdrops []Image `json:"backdrops"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Client talks to the TMDB API with a client-side rate limit.
type Client struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	http         *httpx.Client
	limiter      *rate.Limiter
}

// NewClient creates a client. requestsPerSecond <= 0 uses the default budget.
func NewClient(apiKey string, timeout time.Duration, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	return &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      defaultBaseURL,
		imageBaseURL: defaultImageBaseURL,
		http:         httpx.New("tmdb", timeout, 2),
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), defaultBurst),
	}
}

// WithBaseURL points the API and image hosts elsewhere (tests, proxies).
func (c *Client) WithBaseURL(apiURL, imageURL string) *Client {
	if apiURL != "" {
		c.baseURL = strings.TrimRight(apiURL, "/")
	}
	if imageURL != "" {
		c.imageBaseURL = strings.TrimRight(imageURL, "/")
	}
	return c
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// ImageURL builds the full-size URL for an image path.
func (c *Client) ImageURL(filePath string) string {
	if filePath == "" {
		return ""
	}
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	return c.imageBaseURL + filePath
}

// SearchMovie searches movies by title, narrowed by year when non-zero.
func (c *Client) SearchMovie(ctx context.Context, title string, year int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", title)
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}
	return c.search(ctx, "/search/movie", params)
}

// SearchTV searches shows by name, narrowed by first-air year when non-zero.
func (c *Client) SearchTV(ctx context.Context, title string, year int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", title)
	if year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(year))
	}
	return c.search(ctx, "/search/tv", params)
}

// GetMovieImages returns the artwork of a movie.
func (c *Client) GetMovieImages(ctx context.Context, id int64) (*Images, error) {
	return c.images(ctx, "movie", id)
}

// GetTVImages returns the artwork of a show.
func (c *Client) GetTVImages(ctx context.Context, id int64) (*Images, error) {
	return c.images(ctx, "tv", id)
}

// Download fetches raw bytes from an image URL and returns them with the
// reported content type.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	encoded, err := utils.EncodeURLWithSpaces(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("tmdb download %q: %w", rawURL, err)
	}
	body, header, err := c.http.Get(ctx, encoded, nil)
	if err != nil {
		return nil, "", err
	}
	return body, header.Get("Content-Type"), nil
}

func (c *Client) search(ctx context.Context, path string, params url.Values) ([]SearchResult, error) {
	var resp searchResponse
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) images(ctx context.Context, kind string, id int64) (*Images, error) {
	params := url.Values{}
	// logos are mostly untagged or English; asking for both keeps responses small
	params.Set("include_image_language", "en,null")
	var out Images
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/%d/images", kind, id), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	body, _, err := c.http.Get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode tmdb %s: %w", path, err)
	}
	return nil
}

func parseYear(dates ...string) int {
	for _, d := range dates {
		if len(d) < 4 {
			continue
		}
		if y, err := strconv.Atoi(d[:4]); err == nil && y > 0 {
			return y
		}
	}
	return 0
}

