package api

import "github.com/okian/festrank/pkg/logger"

const (
	defaultRPS   = 20
	defaultBurst = 40
)

type serverConfig struct {
	rps    float64
	burst  int
	logger logger.Logger
}

// Option configures a Server.
type Option func(*serverConfig)

// WithRateLimit sets the per-client request rate and burst. A non-positive
// rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *serverConfig) {
		c.rps = rps
		if burst > 0 {
			c.burst = burst
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
