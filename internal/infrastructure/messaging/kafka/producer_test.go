package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FeatureScope/internal/config"
	pkgerrors "github.com/turtacn/FeatureScope/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.written = append(m.written, msgs...)
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	return nil
}

func (m *mockKafkaWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func msg(topic, value string) *ProducerMessage {
	return &ProducerMessage{Topic: topic, Key: []byte("k"), Value: []byte(value), Headers: map[string]string{"h": "v"}}
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(config.KafkaConfig{Brokers: []string{"localhost:9092"}}))
	assert.Error(t, ValidateProducerConfig(config.KafkaConfig{}))
	assert.Error(t, ValidateProducerConfig(config.KafkaConfig{Brokers: []string{"b"}, RequiredAcks: 3}))

	p, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Async: true}, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestPublish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, nil)

	require.NoError(t, p.Publish(context.Background(), msg("events", "hello")))
	require.Len(t, w.written, 1)
	got := w.written[0]
	assert.Equal(t, "events", got.Topic)
	assert.Equal(t, []byte("hello"), got.Value)
	assert.Equal(t, []kafka.Header{{Key: "h", Value: []byte("v")}}, got.Headers)
	assert.False(t, got.Time.IsZero())

	sent, failed, bytes := p.Metrics()
	assert.EqualValues(t, 1, sent)
	assert.EqualValues(t, 0, failed)
	assert.EqualValues(t, 5, bytes)
}

func TestPublish_Validation(t *testing.T) {
	p := NewProducerWithWriter(&mockKafkaWriter{}, nil)
	ctx := context.Background()

	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, msg("", "x")), pkgerrors.ErrCodeValidation))
	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, msg("t", "")), pkgerrors.ErrCodeValidation))
	big := strings.Repeat("x", DefaultMaxMessageBytes+1)
	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, msg("t", big)), pkgerrors.ErrCodeValidation))
}

func TestPublish_WriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewProducerWithWriter(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error { return boom }}, nil)

	err := p.Publish(context.Background(), msg("t", "x"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessagingError))
	assert.ErrorIs(t, err, boom)
	_, failed, _ := p.Metrics()
	assert.EqualValues(t, 1, failed)
}

func TestPublishBatch_PartialFailure(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		return kafka.WriteErrors{nil, errors.New("too big"), nil}
	}}
	p := NewProducerWithWriter(w, nil)

	res, err := p.PublishBatch(context.Background(), []*ProducerMessage{msg("t", "a"), msg("t", "b"), msg("t", "c")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)

	_, err = p.PublishBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestPublishBatch_TotalFailure(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error { return errors.New("down") }}
	res, err := NewProducerWithWriter(w, nil).PublishBatch(context.Background(), []*ProducerMessage{msg("t", "a"), msg("t", "b")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, -1, res.Errors[0].Index)
}

func TestClose_Idempotent(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, nil)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
	assert.Equal(t, ErrProducerClosed, p.Publish(context.Background(), msg("t", "x")))
	_, err := p.PublishBatch(context.Background(), []*ProducerMessage{msg("t", "x")})
	assert.Equal(t, ErrProducerClosed, err)
}
