package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"plexfront/internal/auth"
	"plexfront/models"
	"plexfront/services/user_settings"
)

const maxSettingsBody = 64 << 10

type settingsService interface {
	Get(userID string) (models.UserSettings, error)
	HasOverrides(userID string) bool
	Update(userID string, settings models.UserSettings) (models.UserSettings, error)
	Delete(userID string) error
	Validate(ctx context.Context, userID string) (models.SourceValidation, error)
}

var _ settingsService = (*user_settings.Service)(nil)

// SettingsHandler serves the caller's watchlist source settings.
type SettingsHandler struct {
	Service settingsService
}

func NewSettingsHandler(service settingsService) *SettingsHandler {
	return &SettingsHandler{Service: service}
}

// SettingsResponse wraps the stored settings with runtime flags.
type SettingsResponse struct {
	models.UserSettings
	IsDefault bool `json:"isDefault"`
}

// settingsUpdate is the PUT body; only source fields are client-writable.
type settingsUpdate struct {
	TraktUsername    string   `json:"traktUsername"`
	IMDBWatchlistIDs []string `json:"imdbWatchlistIds"`
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r)
	s, err := h.Service.Get(userID)
	if err != nil {
		respondErr(w, "settings", err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{UserSettings: s, IsDefault: !h.Service.HasOverrides(userID)})
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsUpdate
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload: "+err.Error())
		return
	}

	userID := auth.GetUserID(r)
	saved, err := h.Service.Update(userID, models.UserSettings{
		TraktUsername:    body.TraktUsername,
		IMDBWatchlistIDs: body.IMDBWatchlistIDs,
	})
	if err != nil {
		respondErr(w, "settings", err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{UserSettings: saved, IsDefault: saved.IsEmpty()})
}

func (h *SettingsHandler) DeleteSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(auth.GetUserID(r)); err != nil {
		respondErr(w, "settings", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate checks the configured Trakt user and IMDB lists against the origins.
func (h *SettingsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Validate(r.Context(), auth.GetUserID(r))
	if err != nil {
		respondErr(w, "settings", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
