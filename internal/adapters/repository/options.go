package repository

import (
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm/logger"
)

// TreapOption applies a configuration option to the TreapIndex.
type TreapOption func(*TreapIndex)

// WithSeed fixes the treap priority seed for reproducible layouts.
func WithSeed(seed uint64) TreapOption {
	return func(t *TreapIndex) {
		t.seed = seed
	}
}

// RedisOption applies a configuration option to the RedisIndex.
type RedisOption func(*RedisIndex)

// WithKeyPrefix sets the prefix of every sorted-set key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisIndex) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRedisClient injects an existing client instead of dialing.
func WithRedisClient(c *redis.Client) RedisOption {
	return func(r *RedisIndex) {
		if c != nil {
			r.client = c
		}
	}
}

// GormOption applies a configuration option to the GormStore.
type GormOption func(*gormConfig)

type gormConfig struct {
	logLevel      logger.LogLevel
	slowThreshold time.Duration
	maxOpenConns  int
}

// WithGormLogLevel sets the gorm logger level.
func WithGormLogLevel(level logger.LogLevel) GormOption {
	return func(c *gormConfig) {
		c.logLevel = level
	}
}

// WithSlowQueryThreshold sets when gorm reports a slow query.
func WithSlowQueryThreshold(d time.Duration) GormOption {
	return func(c *gormConfig) {
		if d > 0 {
			c.slowThreshold = d
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) GormOption {
	return func(c *gormConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}
