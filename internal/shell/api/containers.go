package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/docklite/internal/core/runtime"
	"github.com/artpar/docklite/internal/shell/docker"
)

// =============================================================================
// Container Handlers
// =============================================================================

func (h *Handler) handleListContainers(w http.ResponseWriter, r *http.Request) {
	opts := docker.ListOptions{All: r.URL.Query().Get("all") == "true"}
	if project := r.URL.Query().Get("project"); project != "" {
		opts.Filters = map[string]string{"label": runtime.LabelComposeProject + "=" + project}
	}

	containers, err := h.containers.List(r.Context(), opts)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newList(containers))
}

func (h *Handler) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	snap, err := h.containers.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleStartContainer(w http.ResponseWriter, r *http.Request) {
	if err := h.containers.Start(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Status: "started"})
}

func (h *Handler) handleStopContainer(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.stopOptions(w, r)
	if !ok {
		return
	}
	if err := h.containers.Stop(r.Context(), chi.URLParam(r, "id"), opts); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Status: "stopped"})
}

func (h *Handler) handleRestartContainer(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.stopOptions(w, r)
	if !ok {
		return
	}
	if err := h.containers.Restart(r.Context(), chi.URLParam(r, "id"), opts); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Status: "restarted"})
}

func (h *Handler) handleRemoveContainer(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := h.containers.Remove(r.Context(), chi.URLParam(r, "id"), docker.RemoveOptions{Force: force}); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	tail, ok := h.queryInt(w, r, "tail", docker.DefaultLogTail)
	if !ok {
		return
	}
	opts := docker.DefaultLogOptions()
	opts.Tail = tail

	logs, err := h.containers.Logs(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LogsResponse{Logs: logs})
}

func (h *Handler) handleContainerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.containers.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// stopOptions reads the optional grace period in seconds.
func (h *Handler) stopOptions(w http.ResponseWriter, r *http.Request) (docker.StopOptions, bool) {
	secs, ok := h.queryInt(w, r, "timeout", 0)
	if !ok {
		return docker.StopOptions{}, false
	}
	return docker.StopOptions{Timeout: time.Duration(secs) * time.Second}, true
}
