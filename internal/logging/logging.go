// Package logging provides the default structured logger for the SDK,
// backed by zerolog. Applications with their own logging stack satisfy the
// healthpoint.Logger interface instead.
package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts zerolog to the SDK's keysAndValues logging interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// New creates a zerolog-backed logger writing to w at the given level.
func New(w io.Writer, level zerolog.Level) *ZerologLogger {
	return &ZerologLogger{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// Debug logs at debug level.
func (l *ZerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.emit(l.logger.Debug(), msg, keysAndValues)
}

// Info logs at info level.
func (l *ZerologLogger) Info(msg string, keysAndValues ...interface{}) {
	l.emit(l.logger.Info(), msg, keysAndValues)
}

// Warn logs at warn level.
func (l *ZerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.emit(l.logger.Warn(), msg, keysAndValues)
}

// Error logs at error level.
func (l *ZerologLogger) Error(msg string, keysAndValues ...interface{}) {
	l.emit(l.logger.Error(), msg, keysAndValues)
}

func (l *ZerologLogger) emit(event *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, keysAndValues[i+1])
	}
	event.Msg(msg)
}
