package simfeedback

import "time"

// Config holds configuration for the feedback simulation.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumEvents  int           // Number of feedback events to generate
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	EditRatio  float64       // Fraction of events that re-rate a prior activity
	FailRatio  float64       // Fraction of saved events followed by a save-failed
	OutputFile string        // Output file for generated events
	LogFile    string        // Log file for simulation output
	Verbose    bool          // Enable verbose logging
}

// Webhook is the feedback event payload posted to the service.
type Webhook struct {
	Type           string   `json:"type"`
	TemplateID     string   `json:"template_id,omitempty"`
	ActivityID     string   `json:"activity_id,omitempty"`
	TaskInstanceID string   `json:"task_instance_id,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	OptimisticID   string   `json:"optimistic_id,omitempty"`
}

// ExerciseEntry is a single entry of the exercise list response.
type ExerciseEntry struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	LastScore      *float64 `json:"last_score"`
	ExecutionCount int      `json:"execution_count"`
	Added          bool     `json:"added"`
}

// AckResponse represents the response from webhook submission.
type AckResponse struct {
	Status string `json:"status"`
}

// TaskResponse represents the response from task creation.
type TaskResponse struct {
	TaskID string `json:"task_id"`
}

// Stats holds simulation statistics.
type Stats struct {
	ExercisesListed  int
	TasksCreated     int
	EventsGenerated  int
	EventsSubmitted  int
	EventsAccepted   int
	EventsDropped    int
	EventsFailed     int
	RollbacksEmitted int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
