package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/okian/festrank/pkg/logger"
)

// logAdapter routes watermill's internal logging into pkg/logger.
type logAdapter struct {
	log    logger.Logger
	fields watermill.LogFields
}

func newLogAdapter(log logger.Logger) watermill.LoggerAdapter {
	return &logAdapter{log: log, fields: watermill.LogFields{}}
}

func (a *logAdapter) convert(extra watermill.LogFields) []logger.Field {
	out := make([]logger.Field, 0, len(a.fields)+len(extra))
	for k, v := range a.fields {
		out = append(out, logger.Any(k, v))
	}
	for k, v := range extra {
		out = append(out, logger.Any(k, v))
	}
	return out
}

func (a *logAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(context.Background(), msg, append(a.convert(fields), logger.Error(err))...)
}

func (a *logAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(context.Background(), msg, a.convert(fields)...)
}

func (a *logAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, a.convert(fields)...)
}

// Trace is folded into debug.
func (a *logAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, a.convert(fields)...)
}

func (a *logAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logAdapter{log: a.log, fields: a.fields.Add(fields)}
}
