package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"plexfront/internal/auth"
	"plexfront/services/plex"
	"plexfront/services/plexdata"
)

type plexDataService interface {
	Home(ctx context.Context, token string) (plexdata.Cached[plexdata.Home], error)
	Libraries(ctx context.Context, token string) (plexdata.Cached[[]plex.Directory], error)
	LibraryItems(ctx context.Context, token, sectionKey string, opts plex.ItemsOptions) (plexdata.Cached[plexdata.ItemsPage], error)
	Metadata(ctx context.Context, token, ratingKey string) (plexdata.Cached[plex.Metadata], error)
}

var _ plexDataService = (*plexdata.Service)(nil)

// PlexHandler serves cached Plex server data.
type PlexHandler struct {
	Service plexDataService
}

func NewPlexHandler(service plexDataService) *PlexHandler {
	return &PlexHandler{Service: service}
}

// Home serves /api/home: on-deck plus recently added.
func (h *PlexHandler) Home(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Home(r.Context(), auth.GetPlexToken(r))
	if err != nil {
		respondErr(w, "home", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Libraries serves /api/libraries.
func (h *PlexHandler) Libraries(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Libraries(r.Context(), auth.GetPlexToken(r))
	if err != nil {
		respondErr(w, "libraries", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LibraryItems serves /api/libraries/{section}/items?offset=&limit=&sort=.
func (h *PlexHandler) LibraryItems(w http.ResponseWriter, r *http.Request) {
	section := strings.TrimSpace(mux.Vars(r)["section"])
	query := r.URL.Query()
	offset, err := queryInt(query.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative number")
		return
	}
	limit, err := queryInt(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative number")
		return
	}

	res, err := h.Service.LibraryItems(r.Context(), auth.GetPlexToken(r), section, plex.ItemsOptions{
		Offset: offset,
		Limit:  limit,
		Sort:   strings.TrimSpace(query.Get("sort")),
	})
	if err != nil {
		respondErr(w, "libraries", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Metadata serves /api/metadata/{ratingKey}.
func (h *PlexHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Metadata(r.Context(), auth.GetPlexToken(r), mux.Vars(r)["ratingKey"])
	if err != nil {
		respondErr(w, "metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func queryInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
