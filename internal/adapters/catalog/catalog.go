// Package catalog defines the exercise/task data source contract.
//
// The remote store behind it is eventually consistent and not
// transactional across tables; callers treat every fetch failure as
// retryable and never roll back local state because of one.
package catalog

import (
	"context"

	"github.com/okian/drillbook/internal/domain/model"
)

// Scope selects which slice of the exercise catalog to fetch, e.g. a
// training-plan or team identifier. The empty scope means everything.
type Scope string

// Source provides read/write access to the remote exercise and task tables.
type Source interface {
	// FetchExercises returns the exercises visible in the given scope.
	FetchExercises(ctx context.Context, scope Scope) ([]model.Exercise, error)

	// FetchExplicitLinks returns the authoritative task-to-exercise link
	// records. Links may lag behind task creation.
	FetchExplicitLinks(ctx context.Context) ([]model.ExplicitLink, error)

	// FetchTasks returns all task templates currently alive.
	FetchTasks(ctx context.Context) ([]model.Task, error)

	// CreateTask creates a task template from an exercise and returns it.
	CreateTask(ctx context.Context, exercise model.Exercise) (model.Task, error)
}
