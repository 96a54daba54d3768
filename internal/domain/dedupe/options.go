package dedupe

// Option applies a configuration option to the in-memory cache.
type Option func(*inMemoryKnown)

// WithMaxSize sets how many ids are kept. Zero or less means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryKnown) {
		d.maxSize = maxSize
	}
}
