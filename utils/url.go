package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// EncodeURLWithSpaces properly encodes a URL that may contain unencoded spaces.
// Some external services provide URLs with raw spaces which need to be %20 encoded for HTTP.
func EncodeURLWithSpaces(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	// Build URL with properly encoded path and query
	encoded := parsedURL.Scheme + "://" + parsedURL.Host + parsedURL.EscapedPath()
	if parsedURL.RawQuery != "" {
		// Encode spaces in query string as %20
		encodedQuery := strings.ReplaceAll(parsedURL.RawQuery, " ", "%20")
		encoded += "?" + encodedQuery
	}
	return encoded, nil
}

// CleanImagePath validates a Plex image path taken from a client request and
// returns it with a single leading slash. Absolute URLs and dot segments are
// rejected so the proxy can only reach the configured server.
func CleanImagePath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", fmt.Errorf("empty image path")
	}
	if strings.Contains(p, "://") || strings.HasPrefix(p, "//") {
		return "", fmt.Errorf("image path %q must be relative to the server", raw)
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("invalid image path %q: %w", raw, err)
	}
	if u.Scheme != "" || u.Host != "" {
		return "", fmt.Errorf("image path %q must be relative to the server", raw)
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." || seg == "." {
			return "", fmt.Errorf("image path %q contains dot segments", raw)
		}
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, nil
}
