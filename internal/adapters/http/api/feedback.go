// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/drillbook/internal/domain/model"
)

// Feedback event type discriminators accepted by the webhook.
const (
	eventTypeSaved      = "saved"
	eventTypeSaveFailed = "save-failed"
)

// feedbackEventRequest mirrors the webhook payload of the feedback
// subsystem. Every field except type may be absent; absent fields are
// forwarded as unknown, never rejected.
type feedbackEventRequest struct {
	Type           string   `json:"type"`
	TemplateID     string   `json:"template_id,omitempty"`
	ActivityID     string   `json:"activity_id,omitempty"`
	TaskInstanceID string   `json:"task_instance_id,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	OptimisticID   string   `json:"optimistic_id,omitempty"`
}

func (e feedbackEventRequest) validate() error {
	switch strings.TrimSpace(e.Type) {
	case eventTypeSaved, eventTypeSaveFailed:
		return nil
	case "":
		return errors.New("missing type")
	default:
		return errors.New("unknown type; must be saved or save-failed")
	}
}

type ackResponse struct {
	Status string `json:"status"`
}

// FeedbackHandler accepts feedback webhooks and publishes them on the bus.
type FeedbackHandler struct {
	deps Dependencies
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps Dependencies) *FeedbackHandler {
	return &FeedbackHandler{deps: deps}
}

// HandlePostEvent handles POST /feedback/events requests.
func (h *FeedbackHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req feedbackEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var event any
	switch strings.TrimSpace(req.Type) {
	case eventTypeSaved:
		event = model.FeedbackSaved{
			TemplateID:     req.TemplateID,
			ActivityID:     req.ActivityID,
			TaskInstanceID: req.TaskInstanceID,
			Rating:         req.Rating,
			OptimisticID:   req.OptimisticID,
		}
	case eventTypeSaveFailed:
		event = model.FeedbackSaveFailed{OptimisticID: req.OptimisticID}
	}

	if ok := h.deps.Publish(r.Context(), event); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", ErrBackpressure)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
