package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"plexfront/services/imagecache"
	"plexfront/services/scheduler"
)

type taskRunner interface {
	GetTaskStatus() []scheduler.TaskStatus
	RunTaskNow(taskID string) error
}

var _ taskRunner = (*scheduler.Service)(nil)

type imageStats interface {
	Stats() imagecache.Stats
}

// AdminHandler reports cache and maintenance state.
type AdminHandler struct {
	Scheduler taskRunner
	Images    imageStats
}

type cacheStatsResponse struct {
	Images  imagecache.Stats `json:"images"`
	Summary string           `json:"summary"`
}

func NewAdminHandler(sched taskRunner, images imageStats) *AdminHandler {
	return &AdminHandler{Scheduler: sched, Images: images}
}

// Tasks serves GET /api/admin/tasks.
func (h *AdminHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.GetTaskStatus())
}

// RunTask serves POST /api/admin/tasks/{id}/run.
func (h *AdminHandler) RunTask(w http.ResponseWriter, r *http.Request) {
	err := h.Scheduler.RunTaskNow(mux.Vars(r)["id"])
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrTaskRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		respondErr(w, "admin", err)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// CacheStats serves GET /api/admin/cache.
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.Images.Stats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{Images: stats, Summary: stats.String()})
}
