package worker

import (
	"time"

	"github.com/okian/festrank/pkg/logger"
)

type poolConfig struct {
	count   int
	timeout time.Duration
	logger  logger.Logger
}

// Option applies a configuration option to the Pool.
type Option func(*poolConfig)

// WithWorkers sets how many workers run concurrently.
func WithWorkers(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.count = n
		}
	}
}

// WithJobTimeout bounds a single job.
func WithJobTimeout(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(c *poolConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
