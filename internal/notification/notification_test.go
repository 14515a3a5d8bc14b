package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNATSNotifier(pub, "phonewallet.tx")

	msg := Message{
		Kind:        KindTransactionConfirmed,
		Destination: "+15550001111",
		Body:        "transaction confirmed",
		Attributes:  map[string]string{"hash": "0x01"},
	}
	require.NoError(t, n.Send(context.Background(), msg))

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "phonewallet.tx.transaction.confirmed", pub.subjects[0])

	var got Message
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, msg, got)
}

func TestNATSNotifierErrors(t *testing.T) {
	n := NewNATSNotifier(&recordingPublisher{err: errors.New("nats: connection closed")}, "p")
	assert.Error(t, n.Send(context.Background(), Message{Kind: KindTransactionFailed}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewNATSNotifier(&recordingPublisher{}, "p").Send(ctx, Message{}), context.Canceled)
}

func TestLoggerNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), Message{Kind: KindTransactionPending, Destination: "+15550001111", Attributes: map[string]string{"hash": "0x02"}}))
	assert.Contains(t, buf.String(), `"kind":"transaction.pending"`)
	assert.Contains(t, buf.String(), `"hash":"0x02"`)

	var nilNotifier *LoggerNotifier
	assert.NoError(t, nilNotifier.Send(context.Background(), Message{}))
}
