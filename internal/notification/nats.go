package notification

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the subset of *nats.Conn used to publish notifications.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications as JSON on <prefix>.<kind>.
type NATSNotifier struct {
	conn   Publisher
	prefix string
}

// NewNATSNotifier builds a notifier publishing under prefix.
func NewNATSNotifier(conn Publisher, prefix string) *NATSNotifier {
	return &NATSNotifier{conn: conn, prefix: prefix}
}

// Subject returns the subject a message of kind is published on.
func (n *NATSNotifier) Subject(kind string) string {
	return n.prefix + "." + kind
}

// Send publishes message. Core NATS publishing is fire-and-forget; an error
// means the connection refused the message.
func (n *NATSNotifier) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.conn.Publish(n.Subject(message.Kind), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
