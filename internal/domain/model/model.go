// Package model contains domain models passed between layers.
package model

// Exercise is a catalog entry representing a trainable drill.
// LastScore and ExecutionCount are nil until the server has recorded
// at least one execution.
type Exercise struct {
	ID             string
	Title          string
	Description    string
	VideoIdentity  string // URL or opaque identifier of the instruction video
	LastScore      *float64
	ExecutionCount *int
}

// Task is the recurring-activity template created when a user adds an
// exercise. This engine never mutates tasks, only reads them to infer
// or confirm linkage.
type Task struct {
	ID            string
	Title         string
	Description   string
	VideoIdentity string
}

// ExplicitLink is an authoritative server-side record tying a task back
// to the exercise it was created from.
type ExplicitLink struct {
	TaskID     string
	ExerciseID string
}

// Counters is the pair of per-exercise values that feedback events keep
// more current than the last full fetch.
type Counters struct {
	LastScore      *float64
	ExecutionCount *int
}

// FeedbackSaved is emitted by the feedback subsystem after a score was
// recorded for one execution. Any field may be absent; absent fields are
// treated as unknown, never as an error.
type FeedbackSaved struct {
	TemplateID     string
	ActivityID     string
	TaskInstanceID string
	Rating         *float64
	OptimisticID   string
}

// FeedbackSaveFailed is emitted when a previously announced save turned
// out not to have persisted.
type FeedbackSaveFailed struct {
	OptimisticID string
}

// Score returns a copy of v suitable for pointer fields.
func Score(v float64) *float64 { return &v }

// Count returns a copy of v suitable for pointer fields.
func Count(v int) *int { return &v }
