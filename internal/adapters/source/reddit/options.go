package reddit

import (
	"net/http"

	"github.com/okian/see1right/pkg/logger"
)

// Option applies a configuration option to the Collector.
type Option func(*Collector)

// WithHTTPClient sets the base client used for both token and listing
// requests. Its Timeout is overridden by the fetch timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(col *Collector) {
		if c != nil {
			col.base = c
		}
	}
}

// WithSource overrides the provenance tag reported by Source.
func WithSource(source string) Option {
	return func(col *Collector) {
		if source != "" {
			col.source = source
		}
	}
}

// WithLogger sets a custom logger for the collector.
func WithLogger(l logger.Logger) Option {
	return func(col *Collector) {
		if l != nil {
			col.logger = l
		}
	}
}
