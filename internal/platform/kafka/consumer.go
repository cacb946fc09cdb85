package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"domainintel/internal/platform/config"
	"domainintel/internal/platform/queue"
)

// Consumer is a consumer-group member that hands records to a handler one
// at a time and commits each record after the handler returns.
type Consumer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewConsumer connects once, retrying per policy. When cfg.CreateTopic is
// set the topic is created if missing.
func NewConsumer(ctx context.Context, cfg config.Kafka, policy queue.RetryPolicy, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := baseOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)

	var client *kgo.Client
	err = queue.Connect(ctx, policy, logger, "kafka consumer", func(ctx context.Context) error {
		c, err := kgo.NewClient(opts...)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		if cfg.CreateTopic {
			if err := ensureTopic(ctx, c, cfg); err != nil {
				c.Close()
				return err
			}
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "kafka consumer subscribed", "topic", cfg.Topic, "group", cfg.GroupID)
	return &Consumer{client: client, topic: cfg.Topic, logger: logger}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, cfg config.Kafka) error {
	partitions := cfg.Partitions
	if partitions < 1 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication < 1 {
		replication = 1
	}

	resp, err := kadm.NewClient(client).CreateTopics(ctx, partitions, replication, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Consume polls until ctx is cancelled or the client is closed. A failed
// commit is logged; the record is redelivered after the next rebalance.
func (c *Consumer) Consume(ctx context.Context, handler queue.Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			c.handle(ctx, handler, r)
		})
	}
}

func (c *Consumer) handle(ctx context.Context, handler queue.Handler, r *kgo.Record) {
	msg := toMessage(r)
	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "message handler failed",
			"topic", r.Topic,
			"offset", r.Offset,
			"request_id", msg.Headers[queue.HeaderRequestID],
			"error", err,
		)
	}
	if err := c.client.CommitRecords(ctx, r); err != nil && ctx.Err() == nil {
		c.logger.WarnContext(ctx, "kafka commit failed",
			"topic", r.Topic,
			"partition", r.Partition,
			"offset", r.Offset,
			"error", err,
		)
	}
}

func toMessage(r *kgo.Record) *queue.Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &queue.Message{Topic: r.Topic, Value: r.Value, Headers: headers}
}

func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
