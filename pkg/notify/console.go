package notify

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. It backs
// development environments and schools without a provider key.
type ConsoleSender struct {
	logger *zap.Logger
}

// NewConsoleSender constructs a ConsoleSender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

// Send implements Sender.
func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification dispatched",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.TextBody)),
	)
	return nil
}
