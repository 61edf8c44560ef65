package plex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ItemsOptions narrows a library listing.
type ItemsOptions struct {
	Offset int
	// Limit of 0 lets the server choose its page size.
	Limit int
	Sort  string
}

// GetLibraries returns all library sections on the server.
func (c *Client) GetLibraries(ctx context.Context, token string) ([]Directory, error) {
	if c.serverURL == "" {
		return nil, ErrNoServer
	}
	container, err := c.getContainer(ctx, c.serverURL, "/library/sections", nil, token)
	if err != nil {
		return nil, fmt.Errorf("plex libraries: %w", err)
	}
	return container.Directory, nil
}

// GetLibraryItems returns one page of a section and the section's total size.
func (c *Client) GetLibraryItems(ctx context.Context, token, sectionKey string, opts ItemsOptions) ([]Metadata, int, error) {
	if c.serverURL == "" {
		return nil, 0, ErrNoServer
	}
	query := url.Values{}
	query.Set("includeGuids", "1")
	query.Set("X-Plex-Container-Start", strconv.Itoa(opts.Offset))
	if opts.Limit > 0 {
		query.Set("X-Plex-Container-Size", strconv.Itoa(opts.Limit))
	}
	if opts.Sort != "" {
		query.Set("sort", opts.Sort)
	}

	path := fmt.Sprintf("/library/sections/%s/all", url.PathEscape(sectionKey))
	container, err := c.getContainer(ctx, c.serverURL, path, query, token)
	if err != nil {
		return nil, 0, fmt.Errorf("plex library %s: %w", sectionKey, err)
	}
	total := container.TotalSize
	if total == 0 {
		total = container.Size
	}
	return container.Metadata, total, nil
}

// GetAllLibraryItems pages through a whole section.
func (c *Client) GetAllLibraryItems(ctx context.Context, token, sectionKey string, pageSize int) ([]Metadata, error) {
	if pageSize <= 0 {
		pageSize = 200
	}
	var all []Metadata
	for offset := 0; ; {
		items, total, err := c.GetLibraryItems(ctx, token, sectionKey, ItemsOptions{Offset: offset, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) == 0 || len(all) >= total {
			return all, nil
		}
		offset += len(items)
	}
}

// GetMetadata returns a single item with its external GUIDs.
func (c *Client) GetMetadata(ctx context.Context, token, ratingKey string) (*Metadata, error) {
	if c.serverURL == "" {
		return nil, ErrNoServer
	}
	query := url.Values{}
	query.Set("includeGuids", "1")
	container, err := c.getContainer(ctx, c.serverURL, "/library/metadata/"+url.PathEscape(ratingKey), query, token)
	if err != nil {
		return nil, fmt.Errorf("plex metadata %s: %w", ratingKey, err)
	}
	if len(container.Metadata) == 0 {
		return nil, fmt.Errorf("plex metadata %s: empty response", ratingKey)
	}
	return &container.Metadata[0], nil
}

// GetOnDeck returns the user's continue-watching row.
func (c *Client) GetOnDeck(ctx context.Context, token string, limit int) ([]Metadata, error) {
	if c.serverURL == "" {
		return nil, ErrNoServer
	}
	query := url.Values{}
	if limit > 0 {
		query.Set("X-Plex-Container-Start", "0")
		query.Set("X-Plex-Container-Size", strconv.Itoa(limit))
	}
	container, err := c.getContainer(ctx, c.serverURL, "/library/onDeck", query, token)
	if err != nil {
		return nil, fmt.Errorf("plex on deck: %w", err)
	}
	return container.Metadata, nil
}

// GetRecentlyAdded returns recently added items of one section, or of the
// whole server when sectionKey is empty.
func (c *Client) GetRecentlyAdded(ctx context.Context, token, sectionKey string, limit int) ([]Metadata, error) {
	if c.serverURL == "" {
		return nil, ErrNoServer
	}
	path := "/library/recentlyAdded"
	if sectionKey != "" {
		path = fmt.Sprintf("/library/sections/%s/recentlyAdded", url.PathEscape(sectionKey))
	}
	query := url.Values{}
	if limit > 0 {
		query.Set("X-Plex-Container-Start", "0")
		query.Set("X-Plex-Container-Size", strconv.Itoa(limit))
	}
	container, err := c.getContainer(ctx, c.serverURL, path, query, token)
	if err != nil {
		return nil, fmt.Errorf("plex recently added: %w", err)
	}
	return container.Metadata, nil
}

// FetchImage downloads an image by its server-relative path, e.g.
// "/library/metadata/123/thumb/1700000000".
func (c *Client) FetchImage(ctx context.Context, token, path string) ([]byte, string, error) {
	if c.serverURL == "" {
		return nil, "", ErrNoServer
	}
	if !strings.HasPrefix(path, "/") || strings.Contains(path, "://") || strings.Contains(path, "..") {
		return nil, "", fmt.Errorf("invalid image path %q", path)
	}
	rawPath, rawQuery, _ := strings.Cut(path, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image query %q: %w", rawQuery, err)
	}
	query.Del("X-Plex-Token")

	body, header, err := c.get(ctx, c.serverURL, rawPath, query, token)
	if err != nil {
		return nil, "", fmt.Errorf("plex image %s: %w", rawPath, err)
	}
	return body, header.Get("Content-Type"), nil
}

// ImageSource binds a token to the client so it can act as an image origin.
type ImageSource struct {
	client *Client
	token  string
}

// ImageSource returns an origin that fetches images with token.
func (c *Client) ImageSource(token string) ImageSource {
	return ImageSource{client: c, token: token}
}

// FetchImage implements the image cache origin.
func (s ImageSource) FetchImage(ctx context.Context, path string) ([]byte, string, error) {
	return s.client.FetchImage(ctx, s.token, path)
}
