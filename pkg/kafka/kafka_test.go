package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "events")

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "vec", Value: map[string]int{"returned": 2}, Headers: map[string]string{"type": "search"}},
		{Key: "map", Value: "x"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "vec", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"returned":2}`, string(w.msgs[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "type", Value: []byte("search")}}, w.msgs[0].Headers)

	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Len(t, w.msgs, 2)
}

func TestPublishErrors(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "events")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "bad", Value: make(chan int)}))
	assert.Empty(t, w.msgs)

	w.err = errors.New("leader not available")
	err := p.Publish(context.Background(), Event{Key: "k", Value: 1})
	assert.ErrorIs(t, err, w.err)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	fetchErrs int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker gone")
	}
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerCommitsEveryMessage(t *testing.T) {
	r := &fakeReader{
		fetchErrs: 1,
		msgs: []kafka.Message{
			{Offset: 1, Key: []byte("vec"), Value: []byte(`{"n":1}`)},
			{Offset: 2, Key: []byte("bad"), Value: []byte(`{`)},
			{Offset: 3, Key: []byte("map"), Value: []byte(`{"n":3}`)},
		},
	}
	var mu sync.Mutex
	var seen []int
	c := newConsumer(r, "events", func(_ context.Context, _ []byte, value []byte) error {
		v, err := DecodeJSON[struct{ N int }](value)
		if err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, v.N)
		mu.Unlock()
		return nil
	})
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, r.commits())
	mu.Lock()
	assert.Equal(t, []int{1, 3}, seen)
	mu.Unlock()
	assert.True(t, r.closed)
}
