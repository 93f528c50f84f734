// Package notify delivers rendered alerts to the messaging side.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// AnnounceOptions selects where an announcement goes. Session targets a chat
// session (the current one is "main"); Channel names a messaging channel.
type AnnounceOptions struct {
	Channel string
	Session string
}

// Notifier is the delivery collaborator. Send goes to the current session,
// Announce to a channel or named session.
type Notifier interface {
	Send(ctx context.Context, message string) error
	Announce(ctx context.Context, message string, opts AnnounceOptions) error
}

// LogNotifier writes alerts to the log. It is the delivery path when no
// message broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, message string) error {
	n.logger.Info("Alert delivered", zap.String("target", TargetSend), zap.String("message", message))
	return nil
}

func (n *LogNotifier) Announce(_ context.Context, message string, opts AnnounceOptions) error {
	n.logger.Info("Alert delivered",
		zap.String("target", TargetAnnounce),
		zap.String("channel", opts.Channel),
		zap.String("session", opts.Session),
		zap.String("message", message),
	)
	return nil
}
