// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	feedbackbus "github.com/okian/drillbook/internal/adapters/mq/bus"
	service "github.com/okian/drillbook/internal/app"
	"github.com/okian/drillbook/internal/domain/model"
	"github.com/okian/drillbook/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Exercises returns the overlay-merged read model.
	Exercises(ctx context.Context) ([]types.ExerciseView, error)

	// AddTask converts an exercise into a recurring task.
	AddTask(ctx context.Context, exerciseID string) (model.Task, error)

	// Publish forwards a feedback event onto the bus. Returns false on
	// backpressure or when the service is down.
	Publish(ctx context.Context, e feedbackbus.Event) bool
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	exercisesHandler *ExercisesHandler
	feedbackHandler  *FeedbackHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		exercisesHandler: NewExercisesHandler(deps),
		feedbackHandler:  NewFeedbackHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/exercises", MetricsMiddleware(s.exercisesHandler.HandleList, "exercises"))
	mux.HandleFunc("/exercises/", MetricsMiddleware(s.exercisesHandler.HandleAddTask, "exercises_add"))
	mux.HandleFunc("/feedback/events", MetricsMiddleware(s.feedbackHandler.HandlePostEvent, "feedback_events"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound translates upstream unknown-entity errors to 404.
func isNotFound(err error) bool {
	return errors.Is(err, service.ErrUnknownExercise)
}
