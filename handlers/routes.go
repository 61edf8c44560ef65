package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"plexfront/api"
)

// Routes bundles the handlers mounted under /api. Nil handlers are skipped.
type Routes struct {
	Images      *ImageHandler
	Logos       *LogoHandler
	Watchlist   *WatchlistHandler
	Plex        *PlexHandler
	Settings    *SettingsHandler
	Logs        *LogsHandler
	Admin       *AdminHandler
	ImageLimits *api.ClientRateLimiter
	// AdminTokens are the Plex tokens allowed to read logs and run tasks.
	// Without any, the log and admin routes are not mounted.
	AdminTokens []string
}

// Register mounts the routes on r. Everything except /api/version requires a
// Plex token; logs and admin routes additionally require an admin token.
func (rt Routes) Register(r *mux.Router) {
	r.HandleFunc("/api/version", GetVersion).Methods(http.MethodGet)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(api.TokenMiddleware())

	if rt.Images != nil {
		var images http.Handler = http.HandlerFunc(rt.Images.Get)
		if rt.ImageLimits != nil {
			images = api.RateLimitHandler(rt.ImageLimits, images)
		}
		protected.Handle("/images", images).Methods(http.MethodGet)
		protected.Handle("/images/{path:.*}", images).Methods(http.MethodGet)
	}
	if rt.Logos != nil {
		protected.HandleFunc("/logos/{type}", rt.Logos.Get).Methods(http.MethodGet)
	}
	if rt.Watchlist != nil {
		protected.HandleFunc("/watchlist", rt.Watchlist.Get).Methods(http.MethodGet)
	}
	if rt.Plex != nil {
		protected.HandleFunc("/home", rt.Plex.Home).Methods(http.MethodGet)
		protected.HandleFunc("/libraries", rt.Plex.Libraries).Methods(http.MethodGet)
		protected.HandleFunc("/libraries/{section}/items", rt.Plex.LibraryItems).Methods(http.MethodGet)
		protected.HandleFunc("/metadata/{ratingKey}", rt.Plex.Metadata).Methods(http.MethodGet)
	}
	if rt.Settings != nil {
		protected.HandleFunc("/settings", rt.Settings.GetSettings).Methods(http.MethodGet)
		protected.HandleFunc("/settings", rt.Settings.PutSettings).Methods(http.MethodPut)
		protected.HandleFunc("/settings", rt.Settings.DeleteSettings).Methods(http.MethodDelete)
		protected.HandleFunc("/settings/validate", rt.Settings.Validate).Methods(http.MethodGet)
	}
	if len(rt.AdminTokens) > 0 {
		adminOnly := api.AdminMiddleware(rt.AdminTokens)
		if rt.Logs != nil {
			protected.Handle("/logs", adminOnly(http.HandlerFunc(rt.Logs.Tail))).Methods(http.MethodGet)
		}
		if rt.Admin != nil {
			protected.Handle("/admin/tasks", adminOnly(http.HandlerFunc(rt.Admin.Tasks))).Methods(http.MethodGet)
			protected.Handle("/admin/tasks/{id}/run", adminOnly(http.HandlerFunc(rt.Admin.RunTask))).Methods(http.MethodPost)
			protected.Handle("/admin/cache", adminOnly(http.HandlerFunc(rt.Admin.CacheStats))).Methods(http.MethodGet)
		}
	}

	// preflight for every /api route
	protected.PathPrefix("/").HandlerFunc(Options).Methods(http.MethodOptions)
}
