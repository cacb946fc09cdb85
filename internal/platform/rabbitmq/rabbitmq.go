// Package rabbitmq is the AMQP 0-9-1 queue driver.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"domainintel/internal/platform/config"
	"domainintel/internal/platform/queue"
)

func declare(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

// Publisher dials the broker for every Publish call.
type Publisher struct {
	cfg    config.RabbitMQ
	policy queue.RetryPolicy
	logger *slog.Logger
}

func NewPublisher(cfg config.RabbitMQ, policy queue.RetryPolicy, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, policy: policy, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, domain string) error {
	var conn *amqp.Connection
	err := queue.Connect(ctx, p.policy, p.logger, "rabbitmq publisher", func(context.Context) error {
		c, err := amqp.Dial(p.cfg.URL)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := declare(ch, p.cfg.Queue)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", p.cfg.Queue, err)
	}

	requestID := queue.RequestID(ctx)
	err = ch.PublishWithContext(ctx,
		"",     // exchange
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			MessageId:    requestID,
			Headers:      amqp.Table{queue.HeaderRequestID: requestID},
			Body:         []byte(domain),
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", domain, err)
	}

	p.logger.InfoContext(ctx, "analysis job enqueued", "domain", domain, "queue", q.Name, "request_id", requestID)
	return nil
}

// Consumer holds one connection and channel at a time and takes one
// unacknowledged delivery at a time. A dropped connection is replaced
// using the connect retry policy.
type Consumer struct {
	cfg    config.RabbitMQ
	policy queue.RetryPolicy
	logger *slog.Logger
	dial   func(url string) (*amqp.Connection, error)

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(ctx context.Context, cfg config.RabbitMQ, policy queue.RetryPolicy, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{cfg: cfg, policy: policy, logger: logger, dial: amqp.Dial}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "rabbitmq consumer subscribed", "queue", cfg.Queue)
	return c, nil
}

// connect dials with retry and prepares a channel, replacing any previous
// connection.
func (c *Consumer) connect(ctx context.Context) error {
	var conn *amqp.Connection
	var ch *amqp.Channel
	err := queue.Connect(ctx, c.policy, c.logger, "rabbitmq consumer", func(context.Context) error {
		cn, err := c.dial(c.cfg.URL)
		if err != nil {
			return err
		}
		chn, err := setup(cn, c.cfg.Queue)
		if err != nil {
			cn.Close()
			return err
		}
		conn, ch = cn, chn
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.conn
	c.conn, c.ch = conn, ch
	c.mu.Unlock()
	if old != nil && !old.IsClosed() {
		old.Close()
	}
	return nil
}

func setup(conn *amqp.Connection, name string) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declare(ch, name); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return ch, nil
}

func (c *Consumer) channel() *amqp.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch
}

// Consume acknowledges each delivery after the handler returns. When the
// delivery stream breaks it reconnects and resubscribes; it returns an
// error only when reconnecting exhausts the retry policy.
func (c *Consumer) Consume(ctx context.Context, handler queue.Handler) error {
	for {
		err := c.consume(ctx, c.channel(), handler)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WarnContext(ctx, "rabbitmq delivery stream interrupted, reconnecting",
			"queue", c.cfg.Queue,
			"error", err,
		)
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

var errNotConnected = errors.New("rabbitmq consumer not connected")

func (c *Consumer) consume(ctx context.Context, ch *amqp.Channel, handler queue.Handler) error {
	if ch == nil {
		return errNotConnected
	}
	deliveries, err := ch.ConsumeWithContext(ctx,
		c.cfg.Queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", c.cfg.Queue)
			}
			msg := toMessage(c.cfg.Queue, d)
			if err := handler(ctx, msg); err != nil {
				c.logger.ErrorContext(ctx, "message handler failed",
					"queue", c.cfg.Queue,
					"request_id", msg.Headers[queue.HeaderRequestID],
					"error", err,
				)
			}
			if err := d.Ack(false); err != nil {
				return fmt.Errorf("ack delivery %d: %w", d.DeliveryTag, err)
			}
		}
	}
}

func toMessage(name string, d amqp.Delivery) *queue.Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	if _, ok := headers[queue.HeaderRequestID]; !ok && d.MessageId != "" {
		headers[queue.HeaderRequestID] = d.MessageId
	}
	return &queue.Message{Topic: name, Value: d.Body, Headers: headers}
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		c.conn.Close()
		return err
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
