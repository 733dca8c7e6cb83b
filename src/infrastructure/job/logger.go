package job

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-logr/logr"

	"shelf/src/infrastructure/log"
)

// LoggerAdapter routes watermill logs into the service logger
type LoggerAdapter struct {
	logger logr.Logger
}

func NewLoggerAdapter() *LoggerAdapter {
	return &LoggerAdapter{logger: log.WithName("watermill")}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(err, msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.V(1).Info(msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.logger.V(2).Info(msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.logger.V(3).Info(msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{logger: l.logger.WithValues(keysAndValues(fields)...)}
}

func keysAndValues(fields watermill.LogFields) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
