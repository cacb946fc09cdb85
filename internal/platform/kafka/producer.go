package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"domainintel/internal/platform/config"
	"domainintel/internal/platform/queue"
)

// Publisher opens a client per Publish call: connect, send, disconnect.
type Publisher struct {
	cfg    config.Kafka
	policy queue.RetryPolicy
	logger *slog.Logger
}

func NewPublisher(cfg config.Kafka, policy queue.RetryPolicy, logger *slog.Logger) (*Publisher, error) {
	if _, err := baseOptions(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, policy: policy, logger: logger}, nil
}

// Publish produces domain to the configured topic and waits for the broker
// acknowledgement.
func (p *Publisher) Publish(ctx context.Context, domain string) error {
	opts, err := baseOptions(p.cfg)
	if err != nil {
		return err
	}

	var client *kgo.Client
	err = queue.Connect(ctx, p.policy, p.logger, "kafka producer", func(ctx context.Context) error {
		c, err := kgo.NewClient(opts...)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return err
	}
	defer client.Close()

	requestID := queue.RequestID(ctx)
	record := &kgo.Record{
		Topic: p.cfg.Topic,
		Value: []byte(domain),
		Headers: []kgo.RecordHeader{
			{Key: queue.HeaderRequestID, Value: []byte(requestID)},
		},
	}
	if err := client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", domain, err)
	}

	p.logger.InfoContext(ctx, "analysis job enqueued",
		"domain", domain,
		"topic", p.cfg.Topic,
		"request_id", requestID,
	)
	return nil
}
