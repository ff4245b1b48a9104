package catalog

// MemoryOption applies a configuration option to the MemorySource.
type MemoryOption func(*MemorySource)

// WithFetchFault installs a hook consulted before every fetch; a non-nil
// return fails the call. Used to exercise retry paths in tests.
func WithFetchFault(f func() error) MemoryOption {
	return func(s *MemorySource) {
		s.failFetch = f
	}
}

// WithCreateFault installs a hook consulted before every task creation.
func WithCreateFault(f func() error) MemoryOption {
	return func(s *MemorySource) {
		s.failCreate = f
	}
}

// WithLinkRecords makes CreateTask also write an explicit link record,
// modeling a backend that keeps the link table in step with creation.
func WithLinkRecords(enabled bool) MemoryOption {
	return func(s *MemorySource) {
		s.recordLinks = enabled
	}
}
