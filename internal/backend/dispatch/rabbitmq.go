package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the subset of rabbitmq.Client the dispatcher uses
type Broker interface {
	Publish(ctx context.Context, body []byte, contentType string) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Close() error
}

type jobMessage struct {
	JobID string `json:"job_id"`
}

// RabbitMQ publishes job ids as JSON messages and consumes them back
type RabbitMQ struct {
	broker      Broker
	consumerTag string
	logger      *slog.Logger
}

// NewRabbitMQ creates a RabbitMQ dispatcher
func NewRabbitMQ(broker Broker, consumerTag string, logger *slog.Logger) *RabbitMQ {
	return &RabbitMQ{broker: broker, consumerTag: consumerTag, logger: logger}
}

func (d *RabbitMQ) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}
	if err := d.broker.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to dispatch job: %w", err)
	}
	return nil
}

// Deliveries consumes the queue, rejecting malformed messages without
// requeue so they reach the dead-letter exchange if one is configured
func (d *RabbitMQ) Deliveries(ctx context.Context) (<-chan Delivery, error) {
	deliveries, err := d.broker.Consume(d.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return

			case delivery, ok := <-deliveries:
				if !ok {
					d.logger.Warn("RabbitMQ delivery channel closed")
					return
				}

				var msg jobMessage
				if err := json.Unmarshal(delivery.Body, &msg); err != nil {
					d.logger.Error("Failed to parse message JSON",
						slog.String("error", err.Error()),
						slog.String("body", string(delivery.Body)),
					)
					d.reject(delivery)
					continue
				}

				if _, err := uuid.Parse(msg.JobID); err != nil {
					d.logger.Error("Invalid job_id format - not a UUID",
						slog.String("job_id", msg.JobID),
					)
					d.reject(delivery)
					continue
				}

				select {
				case out <- &amqpDelivery{id: msg.JobID, delivery: delivery}:
				case <-ctx.Done():
					if err := delivery.Nack(false, true); err != nil {
						d.logger.Error("Failed to NACK message on shutdown", slog.String("error", err.Error()))
					}
					return
				}
			}
		}
	}()
	return out, nil
}

func (d *RabbitMQ) reject(delivery amqp.Delivery) {
	if err := delivery.Nack(false, false); err != nil {
		d.logger.Error("Failed to NACK malformed message", slog.String("error", err.Error()))
	}
}

func (d *RabbitMQ) Close() error {
	return d.broker.Close()
}

type amqpDelivery struct {
	id       string
	delivery amqp.Delivery
}

func (a *amqpDelivery) JobID() string { return a.id }

func (a *amqpDelivery) Ack() error { return a.delivery.Ack(false) }

func (a *amqpDelivery) Nack(requeue bool) error { return a.delivery.Nack(false, requeue) }
