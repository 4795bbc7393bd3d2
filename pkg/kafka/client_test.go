package kafka

import (
	"context"
	"encoding/json"
	"querybot-go/internal/config"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishAuditKeysBySession(t *testing.T) {
	w := &recordingWriter{}
	p := &producer{writer: w}

	err := p.PublishAudit(context.Background(), AuditEvent{SessionID: "s1", SQL: "SELECT 1", Allowed: true})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "s1", string(w.msgs[0].Key))

	var got AuditEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "SELECT 1", got.SQL)
	assert.False(t, got.Timestamp.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	p := NewAuditPublisher(config.KafkaConfig{Enabled: false, Brokers: "localhost:9092"})
	assert.NoError(t, p.PublishAudit(context.Background(), AuditEvent{}))
	assert.NoError(t, p.Close())
}
