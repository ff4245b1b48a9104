package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/drillbook/internal/domain/model"
)

// MemorySource implements Source in memory. It backs the service in
// development and tests, including simulated per-call faults to exercise
// the retry paths of callers.
type MemorySource struct {
	mu        sync.RWMutex
	exercises []model.Exercise
	tasks     []model.Task
	links     []model.ExplicitLink

	// Fault injection; nil means never fail.
	failFetch  func() error
	failCreate func() error

	// recordLinks controls whether CreateTask also writes an explicit
	// link record. Real deployments lag here, so it defaults to off.
	recordLinks bool
}

// NewMemorySource creates an in-memory source with configuration options.
func NewMemorySource(opts ...MemoryOption) *MemorySource {
	s := &MemorySource{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchExercises returns a copy of the current exercise table.
// The scope is accepted for contract parity; the in-memory table holds a
// single scope.
func (s *MemorySource) FetchExercises(ctx context.Context, _ Scope) ([]model.Exercise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failFetch != nil {
		if err := s.failFetch(); err != nil {
			return nil, fmt.Errorf("fetch exercises: %w", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Exercise, len(s.exercises))
	copy(out, s.exercises)
	return out, nil
}

// FetchExplicitLinks returns a copy of the link records.
func (s *MemorySource) FetchExplicitLinks(ctx context.Context) ([]model.ExplicitLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failFetch != nil {
		if err := s.failFetch(); err != nil {
			return nil, fmt.Errorf("fetch links: %w", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ExplicitLink, len(s.links))
	copy(out, s.links)
	return out, nil
}

// FetchTasks returns a copy of the live task templates.
func (s *MemorySource) FetchTasks(ctx context.Context) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failFetch != nil {
		if err := s.failFetch(); err != nil {
			return nil, fmt.Errorf("fetch tasks: %w", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}

// CreateTask creates a task template carrying the exercise's content.
func (s *MemorySource) CreateTask(ctx context.Context, exercise model.Exercise) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	if s.failCreate != nil {
		if err := s.failCreate(); err != nil {
			return model.Task{}, fmt.Errorf("create task: %w", err)
		}
	}

	task := model.Task{
		ID:            uuid.New().String(),
		Title:         exercise.Title,
		Description:   exercise.Description,
		VideoIdentity: exercise.VideoIdentity,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	if s.recordLinks {
		s.links = append(s.links, model.ExplicitLink{TaskID: task.ID, ExerciseID: exercise.ID})
	}
	return task, nil
}

// SeedExercises replaces the exercise table.
func (s *MemorySource) SeedExercises(exercises []model.Exercise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exercises = append([]model.Exercise(nil), exercises...)
}

// SeedTasks replaces the task table.
func (s *MemorySource) SeedTasks(tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]model.Task(nil), tasks...)
}

// SeedLinks replaces the explicit link records.
func (s *MemorySource) SeedLinks(links []model.ExplicitLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append([]model.ExplicitLink(nil), links...)
}

// DeleteTask removes a task template, modeling deletion outside this
// screen. Link records referencing it are removed as well.
func (s *MemorySource) DeleteTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ID != taskID {
			tasks = append(tasks, t)
		}
	}
	s.tasks = tasks
	links := s.links[:0]
	for _, l := range s.links {
		if l.TaskID != taskID {
			links = append(links, l)
		}
	}
	s.links = links
}
