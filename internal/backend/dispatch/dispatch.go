// Package dispatch hands submitted job ids to the simulator, either through
// an in-process queue or through RabbitMQ.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when dispatching to a closed dispatcher
var ErrClosed = errors.New("dispatcher closed")

const requeueTimeout = 5 * time.Second

// Delivery is one dispatched job id awaiting acknowledgement
type Delivery interface {
	JobID() string
	Ack() error
	Nack(requeue bool) error
}

// Dispatcher queues job ids for processing
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
	// Deliveries streams queued ids until ctx is done or the dispatcher closes
	Deliveries(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// InProcess is a buffered channel queue for single-process deployments
type InProcess struct {
	mu     sync.RWMutex
	closed bool
	queue  chan string
}

// NewInProcess creates an InProcess dispatcher holding up to buffer ids
func NewInProcess(buffer int) *InProcess {
	return &InProcess{queue: make(chan string, max(buffer, 1))}
}

func (d *InProcess) Dispatch(ctx context.Context, jobID string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *InProcess) Deliveries(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-d.queue:
				if !ok {
					return
				}
				select {
				case out <- &memDelivery{id: id, d: d}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (d *InProcess) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	return nil
}

type memDelivery struct {
	id string
	d  *InProcess
}

func (m *memDelivery) JobID() string { return m.id }

func (m *memDelivery) Ack() error { return nil }

func (m *memDelivery) Nack(requeue bool) error {
	if !requeue {
		return nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
		defer cancel()
		_ = m.d.Dispatch(ctx, m.id)
	}()
	return nil
}
