package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/resilience"
)

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "a", Value: map[string]int{"n": 1}},
		{Key: "b", Value: "text"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Value))
	assert.Equal(t, `"text"`, string(msgs[1].Value))

	_, err = encode([]Event{{Key: "bad", Value: func() {}}})
	assert.ErrorContains(t, err, `"bad"`)
}

func TestPublishBatchEmptyIsNoop(t *testing.T) {
	p := &Producer{topic: "t", logger: slog.Default()}
	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Type string `json:"type"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"type":"search"}`))
	require.NoError(t, err)
	assert.Equal(t, "search", got.Type)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.ErrorContains(t, err, "decoding kafka message")
}

func testConsumer(handler MessageHandler) *Consumer {
	return &Consumer{
		topic:   "events",
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		logger:  slog.Default(),
		handler: handler,
	}
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := testConsumer(func(ctx context.Context, key, value []byte) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.True(t, c.process(context.Background(), kafka.Message{Key: []byte("k")}))
	assert.Equal(t, 2, calls)
}

func TestProcessSkipsPoisonMessage(t *testing.T) {
	calls := 0
	c := testConsumer(func(ctx context.Context, key, value []byte) error {
		calls++
		return errors.New("always")
	})
	assert.False(t, c.process(context.Background(), kafka.Message{Key: []byte("k")}))
	assert.Equal(t, 3, calls)
}
