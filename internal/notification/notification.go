package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransactionPending is sent when the ledger acknowledges a broadcast.
	KindTransactionPending = "transaction.pending"
	// KindTransactionConfirmed is sent when a transaction reaches the confirmation depth.
	KindTransactionConfirmed = "transaction.confirmed"
	// KindTransactionFailed is sent when a transaction is rejected or times out.
	KindTransactionFailed = "transaction.failed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination"`
	Body        string            `json:"body"`
	Attributes  map[string]string `json:"attributes,omitempty"`
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
	attrs := []any{"kind", message.Kind, "destination", message.Destination, "body", message.Body}
	for k, v := range message.Attributes {
		attrs = append(attrs, k, v)
	}
	n.logger.Info("notification", attrs...)
	return nil
}
