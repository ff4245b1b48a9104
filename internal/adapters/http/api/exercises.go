// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strings"
)

// ExercisesHandler serves the exercise read model and task conversion.
type ExercisesHandler struct {
	deps Dependencies
}

// NewExercisesHandler creates a new exercises handler.
func NewExercisesHandler(deps Dependencies) *ExercisesHandler {
	return &ExercisesHandler{deps: deps}
}

// HandleList handles GET /exercises requests. Every returned entry
// already reflects overlay merging and carries its added flag.
func (h *ExercisesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	views, err := h.deps.Exercises(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleAddTask handles POST /exercises/{id}/task requests.
func (h *ExercisesHandler) HandleAddTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	// Path shape: /exercises/{id}/task
	rest := strings.TrimPrefix(r.URL.Path, "/exercises/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "task" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	task, err := h.deps.AddTask(r.Context(), parts[0])
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		// Creation failures are retryable by the caller.
		writeError(w, http.StatusBadGateway, "create_failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"task_id": task.ID})
}
