// Package amqp publishes and consumes metrics reload messages over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"aetherflow/internal/log"
	"aetherflow/internal/resilience"
)

const (
	publishTimeout   = 5 * time.Second
	reconnectRetries = 5
)

// Client wraps one connection and channel bound to a direct exchange.
// Publishing goes through a circuit breaker and reconnects on connection errors.
type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	breaker *resilience.Breaker
	logger  *log.Logger
	backoff func(int) time.Duration
}

// NewClient dials url and declares the exchange, queue and binding.
func NewClient(url, exchangeName, queueName string, breakerCfg resilience.BreakerConfig) (*Client, error) {
	c := newClient(url, exchangeName, queueName, breakerCfg)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(url, exchangeName, queueName string, breakerCfg resilience.BreakerConfig) *Client {
	return &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		breaker:      resilience.NewBreaker("amqp", breakerCfg),
		logger:       log.Default(log.ComponentAMQP),
		backoff:      resilience.ExponentialBackoff,
	}
}

// Breaker exposes the publish circuit breaker.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on a direct exchange
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.closeConn()
	for attempt := 0; attempt < reconnectRetries; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.InfoContext(ctx, "Reconnected to AMQP broker", "attempt", attempt+1)
			return nil
		}
		c.logger.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt+1, log.FieldError, err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}
	return fmt.Errorf("reconnect to AMQP broker: giving up after %d attempts", reconnectRetries)
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// PublishReload publishes a reload request for ownerID.
func (c *Client) PublishReload(ctx context.Context, ownerID, reason string, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := NewMetricsReloadMessage(ownerID, reason, force)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := c.publish(ctx, body)
		if err != nil && resilience.IsConnectionError(err) {
			if rerr := c.reconnect(ctx); rerr != nil {
				return errors.Join(err, rerr)
			}
			err = c.publish(ctx, body)
		}
		return err
	})
	if errors.Is(err, resilience.ErrOpen) {
		return fmt.Errorf("publish reload for %s: %w", ownerID, err)
	}
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published metrics reload message",
		log.FieldOwnerID, ownerID,
		log.FieldReason, reason,
		log.FieldForce, force,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ch := c.currentChannel()
	if ch == nil {
		return errors.New("connection closed")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ReloadHandler processes one decoded message. An error requeues the delivery.
type ReloadHandler func(context.Context, *MetricsReloadMessage) error

// ConsumeReload blocks, feeding deliveries to handler until ctx is done or
// the channel closes.
func (c *Client) ConsumeReload(ctx context.Context, prefetch int, handler ReloadHandler) error {
	ch := c.currentChannel()
	if ch == nil {
		return errors.New("amqp client is closed")
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming metrics reload messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", log.FieldReason, ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			handleDelivery(ctx, c.logger, delivery, handler)
		}
	}
}

// acknowledger is the subset of amqp091.Delivery used for acks.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func handleDelivery(ctx context.Context, logger *log.Logger, d amqp091.Delivery, handler ReloadHandler) {
	process(ctx, logger, d.Body, &d, handler)
}

func process(ctx context.Context, logger *log.Logger, body []byte, ack acknowledger, handler ReloadHandler) {
	msg, err := MetricsReloadMessageFromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err.Error())
		_ = ack.Nack(false, false) // poison message, drop it
		return
	}

	if err := handler(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to handle message",
			log.FieldError, err.Error(),
			log.FieldOwnerID, msg.OwnerID)
		_ = ack.Nack(false, true)
		return
	}

	_ = ack.Ack(false)
	logger.DebugContext(ctx, "Processed metrics reload message",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldReason, msg.Reason)
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.closeConn()
	return nil
}
