package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransfer is emitted when a payment transaction is submitted.
	KindTransfer = "transfer_submitted"
	// KindConsume is emitted when pending notes are consumed into an account.
	KindConsume = "notes_consumed"
)

// Message describes a notification payload.
type Message struct {
	Kind          string
	Destination   string
	TransactionID string
	Body          string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("tx_id", message.TransactionID),
		slog.String("body", message.Body),
	)
	return nil
}
