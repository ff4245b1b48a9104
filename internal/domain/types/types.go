// Package types contains common types shared across layers.
package types

// ExerciseView is the read model entry handed to the presentation layer.
// LastScore and ExecutionCount already reflect overlay merging; an unknown
// execution count is presented as zero.
type ExerciseView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	VideoIdentity  string   `json:"video_identity,omitempty"`
	LastScore      *float64 `json:"last_score"`
	ExecutionCount int      `json:"execution_count"`
	Added          bool     `json:"added"`
}
