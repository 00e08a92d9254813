package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when the client has been closed or the broker
// dropped the channel
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	RoutingKey         string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
	PrefetchCount      int
}

// URL renders the AMQP connection URL
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// Client holds one connection and one channel with the exchange and queue
// declared and bound
type Client struct {
	config *Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
}

// NewClient dials the broker, retrying up to RetryAttempts times
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	c := &Client{config: config, logger: logger}
	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	attempts := max(c.config.RetryAttempts, 1)
	amqpConfig := amqp.Config{Heartbeat: c.config.Heartbeat, Locale: "en_US"}

	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err = amqp.DialConfig(c.config.URL(), amqpConfig)
		if err == nil {
			break
		}

		c.logger.Warn("Failed to connect to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
		if attempt < attempts {
			if waitErr := sleep(ctx, c.config.RetryInterval); waitErr != nil {
				return waitErr
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go c.watch(closed)

	c.mu.Lock()
	c.conn, c.channel, c.connected = conn, ch, true
	c.mu.Unlock()

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
	)
	return nil
}

func (c *Client) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	if ok && amqpErr != nil {
		c.logger.Error("RabbitMQ channel closed", slog.String("reason", amqpErr.Reason))
	}
}

func (c *Client) setup(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		c.config.ExchangeName,
		c.config.ExchangeType,
		c.config.ExchangeDurable,
		c.config.ExchangeAutoDelete,
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.config.QueueName,
		c.config.QueueDurable,
		c.config.QueueAutoDelete,
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(c.config.QueueName, c.config.RoutingKey, c.config.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	if c.config.PrefetchCount > 0 {
		if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	return nil
}

func (c *Client) activeChannel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}
	return c.channel, nil
}

// Publish sends a persistent message, retrying with exponential backoff
func (c *Client) Publish(ctx context.Context, body []byte, contentType string) error {
	ch, err := c.activeChannel()
	if err != nil {
		return err
	}

	retries := c.config.PublishRetries
	if retries < 0 {
		retries = 0
	}
	delay := c.config.PublishRetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	mult := c.config.PublishBackoffMult
	if mult < 1 {
		mult = 2
	}

	msg := amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		lastErr = ch.PublishWithContext(ctx, c.config.ExchangeName, c.config.RoutingKey, false, false, msg)
		if lastErr == nil {
			c.logger.Debug("Message published to RabbitMQ",
				slog.Int("attempt", attempt+1),
				slog.Int("body_size", len(body)),
			)
			return nil
		}
		if attempt == retries {
			break
		}

		c.logger.Warn("Failed to publish message to RabbitMQ, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_after", delay),
			slog.Any("error", lastErr),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * mult)
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", retries+1, lastErr)
}

// Consume starts a manual-ack consumer on the configured queue
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := c.activeChannel()
	if err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(c.config.QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
	)
	return deliveries, nil
}

// IsConnected reports whether the channel is usable
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the channel and the connection
func (c *Client) Close() error {
	c.mu.Lock()
	ch, conn := c.channel, c.conn
	c.connected = false
	c.channel, c.conn = nil, nil
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn("Failed to close RabbitMQ channel", slog.Any("error", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}

	c.logger.Info("RabbitMQ connection closed")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
