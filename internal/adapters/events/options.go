package events

type config struct {
	buffer   int64
	blocking bool
}

// Option applies a configuration option to the Bus.
type Option func(*config)

// WithBuffer sets the per-subscriber output buffer.
func WithBuffer(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithBlockingPublish makes Publish wait until every subscriber acked.
func WithBlockingPublish() Option {
	return func(c *config) { c.blocking = true }
}
