package events

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes events to the application log. Used in development and when no broker
// is configured.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport returns a transport that logs at info level.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger.Named("events")}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("order event",
		zap.String("key", msg.Key),
		zap.String("type", msg.Attributes["type"]),
		zap.ByteString("payload", msg.Data),
	)
	return nil
}

func (t *LogTransport) Close() error {
	return nil
}
