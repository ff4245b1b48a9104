package linkage

import "sync"

// Registry holds the linkage map together with the per-exercise "already
// converted to a task" flag. The two are mutated as a pair: an added flag
// and its linkage entry are set together and cleared together, so they can
// never disagree.
type Registry struct {
	mu    sync.RWMutex
	links Map
	added map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		links: make(Map),
		added: make(map[string]bool),
	}
}

// MarkAdded records that taskID was created from exerciseID, setting the
// added flag and the linkage entry in one step. Callers invoke this only
// after the task creation call succeeded.
func (r *Registry) MarkAdded(exerciseID, taskID string) {
	if exerciseID == "" || taskID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[exerciseID] = taskID
	r.added[exerciseID] = true
}

// IsAdded reports whether the exercise has been converted to a task.
func (r *Registry) IsAdded(exerciseID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.added[exerciseID]
}

// TaskFor returns the task linked to the exercise, if any.
func (r *Registry) TaskFor(exerciseID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	taskID, ok := r.links[exerciseID]
	return taskID, ok
}

// ExerciseFor returns the exercise linked to the task, if any.
func (r *Registry) ExerciseFor(taskID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for exerciseID, linked := range r.links {
		if linked == taskID {
			return exerciseID, true
		}
	}
	return "", false
}

// Links returns a copy of the current linkage map.
func (r *Registry) Links() Map {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.links.Clone()
}

// Adopt replaces the linkage map with a freshly resolved one and flags
// every mapped exercise as added. Entries are only ever widened here;
// removal happens exclusively through Reconcile.
func (r *Registry) Adopt(resolved Map) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for exerciseID, taskID := range resolved {
		r.links[exerciseID] = taskID
		r.added[exerciseID] = true
	}
}

// Reconcile clears the added flag and linkage entry, together, for every
// exercise whose linked task no longer appears in the live task list.
// It returns the ids of the exercises that were cleared.
func (r *Registry) Reconcile(liveTaskIDs []string) []string {
	live := make(map[string]bool, len(liveTaskIDs))
	for _, id := range liveTaskIDs {
		live[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared []string
	for exerciseID, taskID := range r.links {
		if live[taskID] {
			continue
		}
		delete(r.links, exerciseID)
		delete(r.added, exerciseID)
		cleared = append(cleared, exerciseID)
	}
	return cleared
}

// Len returns the number of linkage entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}
