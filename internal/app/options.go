package service

import (
	"github.com/okian/festrank/internal/adapters/events"
	"github.com/okian/festrank/internal/adapters/verify"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithEngine sets the scoring engine. Defaults to scoring.New().
func WithEngine(e *scoring.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithInstruments sets the instruments a new song is registered on and
// submissions are accepted for.
func WithInstruments(names []string) Option {
	return func(s *Service) {
		if len(names) > 0 {
			s.instruments = append([]string(nil), names...)
		}
	}
}

// WithWorkerCount sets the number of verification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the verification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the submission deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page sizes.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLabelThresholds sets how many songs an instrument needs for a label and
// how many labelled instruments earn an overall label.
func WithLabelThresholds(minSongs, minInstruments int) Option {
	return func(s *Service) {
		if minSongs > 0 {
			s.roleMinSongs = minSongs
		}
		if minInstruments > 0 {
			s.overallMinInstruments = minInstruments
		}
	}
}

// WithExtractor sets the evidence extractor. Defaults to verify.Noop.
func WithExtractor(e verify.Extractor) Option {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithLabelSink sets where derived labels go. Defaults to a logging sink.
func WithLabelSink(sink LabelSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithBus sets the event bus. Defaults to a fresh in-process bus.
func WithBus(b *events.Bus) Option {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
