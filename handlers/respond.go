package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"plexfront/internal/httpx"
	"plexfront/services/plex"
	"plexfront/services/plexdata"
	"plexfront/services/tmdb"
	"plexfront/services/user_settings"
	"plexfront/services/watchlist"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForError maps service and origin errors onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, watchlist.ErrTokenRequired), errors.Is(err, plexdata.ErrTokenRequired):
		return http.StatusUnauthorized
	case errors.Is(err, user_settings.ErrUserIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, plex.ErrNoServer), errors.Is(err, tmdb.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, httpx.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, httpx.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, watchlist.ErrAllSourcesFailed):
		return http.StatusBadGateway
	}
	switch code := httpx.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return http.StatusUnauthorized
	case code != 0:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondErr(w http.ResponseWriter, component string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] request failed: %v", component, err)
	}
	writeError(w, status, err.Error())
}

// Options answers CORS preflight requests.
func Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
