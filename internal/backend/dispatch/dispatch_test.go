package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "deliveries closed")
		return d
	case <-time.After(time.Second):
		t.Fatal("no delivery")
		return nil
	}
}

func TestInProcess_DispatchAndRequeue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewInProcess(4)
	deliveries, err := d.Deliveries(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(ctx, "job-1"))
	first := receive(t, deliveries)
	assert.Equal(t, "job-1", first.JobID())
	require.NoError(t, first.Nack(true))

	again := receive(t, deliveries)
	assert.Equal(t, "job-1", again.JobID())
	assert.NoError(t, again.Ack())
}

func TestInProcess_Close(t *testing.T) {
	d := NewInProcess(1)
	deliveries, err := d.Deliveries(context.Background())
	require.NoError(t, err)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Dispatch(context.Background(), "job-1"), ErrClosed)

	_, ok := <-deliveries
	assert.False(t, ok)
}

func TestInProcess_DispatchHonorsContext(t *testing.T) {
	d := NewInProcess(1)
	require.NoError(t, d.Dispatch(context.Background(), "fills-buffer"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Dispatch(ctx, "blocked"), context.DeadlineExceeded)
}

type ackRecord struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, ack: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) snapshot() []ackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ackRecord(nil), f.records...)
}

type fakeBroker struct {
	published [][]byte
	incoming  chan amqp.Delivery
	closed    bool
}

func (b *fakeBroker) Publish(_ context.Context, body []byte, _ string) error {
	b.published = append(b.published, body)
	return nil
}

func (b *fakeBroker) Consume(string) (<-chan amqp.Delivery, error) { return b.incoming, nil }

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}

func TestRabbitMQ_Dispatch(t *testing.T) {
	broker := &fakeBroker{}
	d := NewRabbitMQ(broker, "stub", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, d.Dispatch(context.Background(), "0b6d3c44-9d8e-4c55-bb2c-3f1c1a0e8f10"))
	require.Len(t, broker.published, 1)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(broker.published[0], &msg))
	assert.Equal(t, "0b6d3c44-9d8e-4c55-bb2c-3f1c1a0e8f10", msg["job_id"])

	require.NoError(t, d.Close())
	assert.True(t, broker.closed)
}

func TestRabbitMQ_Deliveries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acks := &fakeAcknowledger{}
	broker := &fakeBroker{incoming: make(chan amqp.Delivery, 3)}
	d := NewRabbitMQ(broker, "stub", slog.New(slog.NewTextHandler(io.Discard, nil)))

	valid := uuid.NewString()
	broker.incoming <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte("not json")}
	broker.incoming <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, Body: []byte(`{"job_id":"nope"}`)}
	broker.incoming <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, Body: []byte(`{"job_id":"` + valid + `"}`)}

	deliveries, err := d.Deliveries(ctx)
	require.NoError(t, err)

	got := receive(t, deliveries)
	assert.Equal(t, valid, got.JobID())
	require.NoError(t, got.Ack())

	assert.Equal(t, []ackRecord{
		{tag: 1, requeue: false},
		{tag: 2, requeue: false},
		{tag: 3, ack: true},
	}, acks.snapshot())
}
