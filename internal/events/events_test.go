package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/climate-risk-service/internal/circuitbreaker"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []kafkago.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var occurred = time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	e, err := New(TypePredictionCreated, "Seattle", occurred, map[string]any{"risk_score": 65})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "Seattle", e.Key)
	assert.JSONEq(t, `{"risk_score":65}`, string(e.Payload))
}

func TestToMessage(t *testing.T) {
	e, err := New(TypeContactReceived, "jane@example.com", occurred, map[string]string{"name": "Jane"})
	require.NoError(t, err)

	msg, err := toMessage(e)
	require.NoError(t, err)

	assert.Equal(t, []byte("jane@example.com"), msg.Key)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "contact.received", decoded["type"])
	assert.NotContains(t, decoded, "Key")
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("contact.received"), msg.Headers[0].Value)
	assert.Equal(t, []byte(occurred.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestKafkaPublisher_RetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newKafkaPublisher(w, KafkaConfig{Attempts: 3}, nil, nil)

	e, _ := New(TypePredictionCreated, "Austin", occurred, nil)
	require.NoError(t, p.Publish(context.Background(), e))

	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 1)
}

func TestKafkaPublisher_OpensCircuit(t *testing.T) {
	w := &fakeWriter{failures: 100}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		Component:        "kafka",
		Clock:            clockwork.NewFakeClock(),
	})
	p := newKafkaPublisher(w, KafkaConfig{Attempts: 2}, cb, nil)
	e, _ := New(TypePredictionCreated, "Austin", occurred, nil)
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, e))
	assert.Error(t, p.Publish(ctx, e))
	callsBefore := w.calls

	err := p.Publish(ctx, e)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, callsBefore, w.calls, "no write attempted while open")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, KafkaConfig{}, nil, nil)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
