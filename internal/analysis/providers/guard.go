package providers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"domainintel/internal/analysis/ports"
	"domainintel/pkg/platform/circuit"
)

// Observer receives the outcome of every guarded fetch. result is
// "success" or the error category.
type Observer interface {
	ObserveFetch(provider, result string, d time.Duration)
}

// Guarded wraps a Fetcher with a circuit breaker, an outbound rate limit,
// and a tracing span.
type Guarded struct {
	next     ports.Fetcher
	breaker  *circuit.Breaker
	limiter  *rate.Limiter
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

type GuardOption func(*Guarded)

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guarded) { g.breaker = b }
}

// WithRateLimit caps calls per minute. Zero or negative means unlimited.
func WithRateLimit(perMinute int) GuardOption {
	return func(g *Guarded) {
		if perMinute > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
		}
	}
}

func WithObserver(o Observer) GuardOption {
	return func(g *Guarded) { g.observer = o }
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func Guard(next ports.Fetcher, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:   next,
		logger: slog.Default(),
		tracer: otel.Tracer("domainintel/providers"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *Guarded) Name() string { return g.next.Name() }

func (g *Guarded) Fetch(ctx context.Context, domain string) (json.RawMessage, error) {
	name := g.next.Name()
	ctx, span := g.tracer.Start(ctx, "provider.fetch", trace.WithAttributes(
		attribute.String("provider", name),
		attribute.String("domain", domain),
	))
	defer span.End()

	start := time.Now()
	raw, err := g.fetch(ctx, name, domain)

	result := "success"
	if err != nil {
		result = string(GetCategory(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	if g.observer != nil {
		g.observer.ObserveFetch(name, result, time.Since(start))
	}
	return raw, err
}

func (g *Guarded) fetch(ctx context.Context, name, domain string) (json.RawMessage, error) {
	if g.breaker != nil && !g.breaker.Allow() {
		return nil, NewProviderError(ErrorProviderOutage, name, "circuit open", nil)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, NewProviderError(ErrorRateLimited, name, "outbound rate limit", err)
		}
	}

	raw, err := g.next.Fetch(ctx, domain)
	if g.breaker == nil {
		return raw, err
	}

	switch {
	case err == nil:
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "provider circuit closed", "provider", name)
		}
	case IsRetryable(err):
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "provider circuit opened", "provider", name, "error", err)
		}
	}
	return raw, err
}
