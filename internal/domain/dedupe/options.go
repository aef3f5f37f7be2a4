package dedupe

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets how many ids are remembered. When maxSize > 0 the oldest
// id is forgotten first once the limit is reached; maxSize <= 0 keeps every
// id.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
