package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"plexfront/internal/auth"
	"plexfront/services/imagecache"
	"plexfront/services/plex"
	"plexfront/utils"
)

type imageCache interface {
	GetOrFetch(ctx context.Context, sourcePath string, origin imagecache.Origin) (imagecache.CachedImage, error)
}

var _ imageCache = (*imagecache.Cache)(nil)

// OriginFunc returns the image origin to use for a caller's token.
type OriginFunc func(token string) imagecache.Origin

// PlexOrigins adapts the Plex client into an OriginFunc.
func PlexOrigins(client *plex.Client) OriginFunc {
	return func(token string) imagecache.Origin {
		return client.ImageSource(token)
	}
}

// ImageHandler proxies Plex artwork through the two-tier image cache.
type ImageHandler struct {
	Cache   imageCache
	Origins OriginFunc
	// MaxAge is sent as Cache-Control max-age in seconds.
	MaxAge int
}

func NewImageHandler(cache imageCache, origins OriginFunc) *ImageHandler {
	return &ImageHandler{Cache: cache, Origins: origins, MaxAge: 86400}
}

// Get serves /api/images/{path}. The path may also be passed as ?path= for
// transcode URLs that carry their own query string.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		raw = mux.Vars(r)["path"]
	}
	sourcePath, err := utils.CleanImagePath(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := h.Cache.GetOrFetch(r.Context(), sourcePath, h.Origins(auth.GetPlexToken(r)))
	if err != nil {
		respondErr(w, "images", err)
		return
	}

	contentType := img.ContentType
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Bytes)))
	if h.MaxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(h.MaxAge))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(img.Bytes)
}
