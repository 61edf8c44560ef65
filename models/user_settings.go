package models

import (
	"strings"
	"time"
)

// UserSettingsVersion is the schema version written to settings files.
const UserSettingsVersion = 1

// UserSettings holds the per-user watchlist source configuration.
type UserSettings struct {
	Version          int       `json:"version"`
	TraktUsername    string    `json:"traktUsername,omitempty"`
	IMDBWatchlistIDs []string  `json:"imdbWatchlistIds"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DefaultUserSettings returns settings with no external sources configured.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		Version:          UserSettingsVersion,
		IMDBWatchlistIDs: []string{},
	}
}

// Normalize trims the Trakt username and trims and deduplicates IMDB list ids,
// keeping their first-seen order.
func (s *UserSettings) Normalize() {
	s.Version = UserSettingsVersion
	s.TraktUsername = strings.TrimSpace(s.TraktUsername)

	seen := make(map[string]struct{}, len(s.IMDBWatchlistIDs))
	ids := make([]string, 0, len(s.IMDBWatchlistIDs))
	for _, id := range s.IMDBWatchlistIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	s.IMDBWatchlistIDs = ids
}

// IsEmpty reports whether no external source is configured.
func (s UserSettings) IsEmpty() bool {
	return strings.TrimSpace(s.TraktUsername) == "" && len(s.IMDBWatchlistIDs) == 0
}

// SourceValidation is the cached outcome of checking a user's configured
// sources against Trakt and IMDB.
type SourceValidation struct {
	TraktUsername string          `json:"traktUsername,omitempty"`
	TraktValid    bool            `json:"traktValid"`
	TraktError    string          `json:"traktError,omitempty"`
	IMDBLists     map[string]bool `json:"imdbLists"`
	CheckedAt     time.Time       `json:"checkedAt"`
}

// Valid reports whether every configured source checked out.
func (v SourceValidation) Valid() bool {
	if v.TraktUsername != "" && !v.TraktValid {
		return false
	}
	for _, ok := range v.IMDBLists {
		if !ok {
			return false
		}
	}
	return true
}
