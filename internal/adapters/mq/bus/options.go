package bus

// defaultBufferSize bounds each subscription's delivery channel.
const defaultBufferSize = 1024

// Option applies a configuration option to the InMemoryBus.
type Option func(*InMemoryBus)

// WithBufferSize sets the per-subscription channel buffer.
func WithBufferSize(size int) Option {
	return func(b *InMemoryBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}
