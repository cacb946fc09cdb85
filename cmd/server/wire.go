package main

import (
	"context"
	"fmt"
	"log/slog"

	"domainintel/internal/analysis/handler"
	"domainintel/internal/analysis/metrics"
	"domainintel/internal/analysis/ports"
	"domainintel/internal/analysis/providers"
	"domainintel/internal/analysis/providers/fixture"
	"domainintel/internal/analysis/providers/virustotal"
	"domainintel/internal/analysis/providers/whoisxml"
	"domainintel/internal/analysis/store"
	"domainintel/internal/platform/config"
	"domainintel/internal/platform/kafka"
	"domainintel/internal/platform/postgres"
	"domainintel/internal/platform/queue"
	"domainintel/internal/platform/rabbitmq"
	"domainintel/internal/platform/redis"
	"domainintel/internal/platform/sqlite"
	"domainintel/pkg/platform/circuit"
)

type storeDeps struct {
	store  ports.Store
	checks map[string]handler.HealthCheck
	close  func()
}

func openStore(ctx context.Context, cfg config.Config) (*storeDeps, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := postgres.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		st := store.NewPostgres(db.SQL)
		return &storeDeps{store: st, checks: map[string]handler.HealthCheck{"store": st.Ping}, close: db.Close}, nil

	case config.StoreRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		st := store.NewRedis(client.Client, cfg.Redis.KeyPrefix)
		return &storeDeps{
			store:  st,
			checks: map[string]handler.HealthCheck{"store": st.Ping, "redis": client.Health},
			close:  func() { _ = client.Close() },
		}, nil

	case config.StoreMemory:
		st := store.NewInMemory()
		return &storeDeps{store: st, checks: map[string]handler.HealthCheck{"store": st.Ping}, close: func() {}}, nil

	default:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		st := store.NewSQLite(db)
		return &storeDeps{store: st, checks: map[string]handler.HealthCheck{"store": st.Ping}, close: func() { _ = db.Close() }}, nil
	}
}

type queueDeps struct {
	publisher ports.Publisher
	consumer  queue.Consumer
}

// openQueue connects the consumer up front; a ConnectError here is fatal.
func openQueue(ctx context.Context, cfg config.Queue, log *slog.Logger) (*queueDeps, error) {
	policy := queue.RetryPolicyFromConfig(cfg.Retry)

	switch cfg.Driver {
	case config.QueueRabbitMQ:
		consumer, err := rabbitmq.NewConsumer(ctx, cfg.RabbitMQ, policy, log)
		if err != nil {
			return nil, err
		}
		return &queueDeps{publisher: rabbitmq.NewPublisher(cfg.RabbitMQ, policy, log), consumer: consumer}, nil

	case config.QueueMemory:
		q := queue.NewMemory(cfg.Kafka.Topic, cfg.MemoryBuffer, log)
		return &queueDeps{publisher: q, consumer: q}, nil

	default:
		publisher, err := kafka.NewPublisher(cfg.Kafka, policy, log)
		if err != nil {
			return nil, err
		}
		consumer, err := kafka.NewConsumer(ctx, cfg.Kafka, policy, log)
		if err != nil {
			return nil, err
		}
		return &queueDeps{publisher: publisher, consumer: consumer}, nil
	}
}

// buildGateway picks live clients or fixtures once, then wraps each with a
// breaker, rate limit, and fetch metrics.
func buildGateway(cfg config.Providers, m *metrics.Metrics, log *slog.Logger) (*providers.Gateway, error) {
	var reputation, registration ports.Fetcher
	if cfg.UseMock {
		log.Warn("using fixture provider responses")
		reputation, registration = fixture.Reputation{}, fixture.Registration{}
	} else {
		reputation = virustotal.New(cfg.VirusTotalURL, cfg.VirusTotalAPIKey, cfg.Timeout)
		registration = whoisxml.New(cfg.WhoisURL, cfg.WhoisAPIKey, cfg.Timeout)
	}

	guard := func(f ports.Fetcher, perMinute int) ports.Fetcher {
		breaker := circuit.New(f.Name(),
			circuit.WithFailureThreshold(cfg.BreakerFailures),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)
		return providers.Guard(f,
			providers.WithBreaker(breaker),
			providers.WithRateLimit(perMinute),
			providers.WithObserver(m),
			providers.WithLogger(log),
		)
	}

	return providers.NewGateway(
		guard(reputation, cfg.VirusTotalPerMinute),
		guard(registration, cfg.WhoisPerMinute),
	)
}
