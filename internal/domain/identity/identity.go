// Package identity tracks which concrete executions have already been
// counted, so a stream of feedback events increments an exercise's
// execution count exactly once per execution and edits never re-count.
package identity

import (
	"context"
	"sync"
	"sync/atomic"
)

// keySeparator joins the key parts; ids are server-assigned and never
// contain control characters.
const keySeparator = "\x1f"

// Key identifies one concrete performance of a task on one occasion.
type Key string

// NewKey builds the execution identity for an event. Both the activity
// reference and a task-instance-or-template reference must be present;
// otherwise the event is non-identifiable and ok is false. Callers must
// never increment for a non-identifiable event: the engine fails safe
// toward under-counting.
func NewKey(exerciseID, activityID, taskRef string) (Key, bool) {
	if exerciseID == "" || activityID == "" || taskRef == "" {
		return "", false
	}
	return Key(exerciseID + keySeparator + activityID + keySeparator + taskRef), true
}

// Tracker records seen execution identities.
type Tracker interface {
	// SeenAndRecord atomically checks whether key was seen and records it
	// if not. Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key Key) bool

	// Forget removes a key, allowing a corrected retry of the same
	// execution to increment again. Used only when a pending rollback
	// unwinds an increment.
	Forget(ctx context.Context, key Key)

	Size() int64
}

// inMemoryTracker implements Tracker with a bounded in-memory set.
// When maxSize > 0 the oldest recorded keys are evicted first; forgotten
// keys leave stale order slots that eviction skips over.
type inMemoryTracker struct {
	mu      sync.Mutex
	seen    map[Key]struct{}
	order   []Key // insertion order, may contain forgotten keys
	maxSize int   // 0 or negative means unbounded
	size    atomic.Int64
}

// NewInMemoryTracker creates a tracker with configuration options.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{
		maxSize: defaultMaxSize,
		seen:    make(map[Key]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *inMemoryTracker) SeenAndRecord(_ context.Context, key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.seen[key]; exists {
		return true
	}

	if t.maxSize > 0 {
		for len(t.seen) >= t.maxSize {
			t.evictOldest()
		}
		t.order = append(t.order, key)
	}
	t.seen[key] = struct{}{}
	t.size.Add(1)
	return false
}

func (t *inMemoryTracker) Forget(_ context.Context, key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.seen[key]; !exists {
		return
	}
	// The order slice keeps a stale slot; evictOldest skips it later.
	delete(t.seen, key)
	t.size.Add(-1)
}

// evictOldest drops the oldest still-recorded key. Must be called with
// t.mu held and only in bounded mode.
func (t *inMemoryTracker) evictOldest() {
	for len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		if _, exists := t.seen[oldest]; exists {
			delete(t.seen, oldest)
			t.size.Add(-1)
			return
		}
	}
}

func (t *inMemoryTracker) Size() int64 {
	return t.size.Load()
}
