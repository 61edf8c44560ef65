package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"plexfront/services/logos"
)

type logoResolver interface {
	Resolve(ctx context.Context, mediaType, title string, year int) (logos.LookupResult, error)
	Cache() *logos.Cache
}

var _ logoResolver = (*logos.Resolver)(nil)

// LogoHandler serves title logos resolved through TMDB and cached on disk.
type LogoHandler struct {
	Resolver logoResolver
}

func NewLogoHandler(resolver logoResolver) *LogoHandler {
	return &LogoHandler{Resolver: resolver}
}

// Get serves /api/logos/{type}?title=&year=. A cached "no logo" answer is a 404.
func (h *LogoHandler) Get(w http.ResponseWriter, r *http.Request) {
	mediaType := strings.ToLower(strings.TrimSpace(mux.Vars(r)["type"]))
	switch mediaType {
	case "movie", "show", "series", "tv":
	default:
		writeError(w, http.StatusBadRequest, "type must be movie or show")
		return
	}

	query := r.URL.Query()
	title := strings.TrimSpace(query.Get("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	year := 0
	if y := strings.TrimSpace(query.Get("year")); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "year must be a number")
			return
		}
		year = parsed
	}

	res, err := h.Resolver.Resolve(r.Context(), mediaType, title, year)
	if err != nil {
		respondErr(w, "logos", err)
		return
	}
	if res.Negative() || res.Filename == "" {
		writeError(w, http.StatusNotFound, "no logo for title")
		return
	}

	data, contentType, err := h.Resolver.Cache().ReadLogo(res.Filename)
	if err != nil {
		respondErr(w, "logos", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
