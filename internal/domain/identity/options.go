package identity

// defaultMaxSize bounds the seen set; one entry per counted execution.
const defaultMaxSize = 50000

// Option applies a configuration option to the in-memory tracker.
type Option func(*inMemoryTracker)

// WithMaxSize sets the maximum number of identities kept in memory.
// maxSize > 0 enables oldest-first eviction; maxSize <= 0 means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(t *inMemoryTracker) {
		t.maxSize = maxSize
	}
}
