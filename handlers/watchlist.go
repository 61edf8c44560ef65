package handlers

import (
	"context"
	"net/http"
	"strconv"

	"plexfront/internal/auth"
	"plexfront/services/watchlist"
)

type watchlistService interface {
	Get(ctx context.Context, req watchlist.Request) (watchlist.Response, error)
}

var _ watchlistService = (*watchlist.Service)(nil)

// WatchlistHandler serves the unified Plex/Trakt/IMDB watchlist.
type WatchlistHandler struct {
	Service watchlistService
}

func NewWatchlistHandler(service watchlistService) *WatchlistHandler {
	return &WatchlistHandler{Service: service}
}

// Get serves /api/watchlist. ?refresh=true bypasses the cache.
func (h *WatchlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	resp, err := h.Service.Get(r.Context(), watchlist.Request{
		Token:  auth.GetPlexToken(r),
		UserID: auth.GetUserID(r),
		Force:  force,
	})
	if err != nil {
		respondErr(w, "watchlist", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
