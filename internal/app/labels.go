package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/festrank/internal/adapters/events"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/pkg/logger"
	"github.com/okian/festrank/pkg/metrics"
)

// Labels are the community labels a player currently qualifies for.
// Instruments holds "<Instrument> - <NamedRank>" entries; Overall stays empty
// until enough instruments are labelled.
type Labels struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Instruments []string `json:"instruments"`
	Overall     string   `json:"overall,omitempty"`
}

// LabelSink applies derived labels somewhere outside the service.
type LabelSink interface {
	Apply(ctx context.Context, l Labels) error
}

// LogSink only logs labels.
type LogSink struct {
	log logger.Logger
}

// NewLogSink returns a sink writing to log.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Apply implements LabelSink.
func (s *LogSink) Apply(ctx context.Context, l Labels) error {
	s.log.Info(ctx, "labels derived",
		logger.String("user_id", l.UserID),
		logger.String("instruments", strings.Join(l.Instruments, ", ")),
		logger.String("overall", l.Overall),
	)
	return nil
}

// DeriveLabels labels every instrument with at least minSongs songs and,
// once minInstruments instruments are labelled, picks the overall label:
// the first entry of priority held on any instrument.
func DeriveLabels(ev model.RanksRecomputed, minSongs, minInstruments int, priority []string) Labels { //nolint:gocritic // hugeParam: event value
	l := Labels{UserID: ev.UserID, Username: ev.Username}
	held := map[string]bool{}
	for _, r := range ev.Instruments {
		if r.Songs < minSongs || r.NamedRank == "" {
			continue
		}
		l.Instruments = append(l.Instruments, fmt.Sprintf("%s - %s", r.Instrument, r.NamedRank))
		held[r.NamedRank] = true
	}
	sort.Strings(l.Instruments)

	if len(l.Instruments) < minInstruments {
		return l
	}
	for _, rank := range priority {
		if held[rank] {
			l.Overall = rank
			break
		}
	}
	return l
}

// labelPriority is the named-rank order, best first.
func (s *Service) labelPriority() []string {
	table := s.engine.NamedTable("")
	out := make([]string, len(table))
	for i, t := range table {
		out[i] = t.Label
	}
	return out
}

func (s *Service) onRanksRecomputed(ctx context.Context, payload []byte) error {
	ev, err := events.Decode[model.RanksRecomputed](payload)
	if err != nil {
		// a malformed payload will never decode; drop it instead of redelivering
		s.logger.Error(ctx, "bad ranks event", logger.Error(err))
		return nil
	}
	l := DeriveLabels(ev, s.roleMinSongs, s.overallMinInstruments, s.labelPriority())
	if err := s.sink.Apply(ctx, l); err != nil {
		metrics.RecordErrorByComponent("labels", "sink")
		return fmt.Errorf("apply labels: %w", err)
	}
	metrics.RecordLabelSync("instrument")
	if l.Overall != "" {
		metrics.RecordLabelSync("overall")
	}
	return nil
}
