package notify

import (
	"context"

	"go.uber.org/zap"
)

// NoopSink logs events to zap instead of delivering them. Use when no
// webhook URL is configured.
type NoopSink struct {
	logger *zap.Logger
}

// NewNoopSink creates a NoopSink backed by the given logger.
func NewNoopSink(logger *zap.Logger) *NoopSink {
	return &NoopSink{logger: logger}
}

// Publish logs the event and returns nil.
func (s *NoopSink) Publish(_ context.Context, ev Event) error {
	s.logger.Info("chain event (noop sink, not delivered)",
		zap.String("kind", ev.Kind),
		zap.String("status", ev.Status),
		zap.String("entry_hash", ev.EntryHash),
		zap.Int("chain_length", ev.ChainLength),
		zap.Int("violations", ev.ViolationCount),
	)
	return nil
}
