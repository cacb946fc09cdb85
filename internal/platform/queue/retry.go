package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"domainintel/internal/platform/config"
)

const (
	StrategyConstant    = "constant"
	StrategyExponential = "exponential"
)

// RetryPolicy bounds connect attempts. Attempts counts the first try.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	Strategy string
}

// DefaultRetryPolicy is three attempts three seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 3 * time.Second, MaxDelay: 30 * time.Second, Strategy: StrategyConstant}
}

func RetryPolicyFromConfig(cfg config.Retry) RetryPolicy {
	return RetryPolicy{
		Attempts: cfg.Attempts,
		Delay:    cfg.Delay,
		MaxDelay: cfg.MaxDelay,
		Strategy: cfg.Strategy,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	var b backoff.BackOff
	switch p.Strategy {
	case StrategyExponential:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		eb.RandomizationFactor = 0
		eb.Multiplier = 2
		eb.MaxInterval = max(p.MaxDelay, p.Delay)
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	default:
		b = backoff.NewConstantBackOff(p.Delay)
	}

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

// Connect runs fn until it succeeds or the policy is exhausted, in which
// case it returns a *ConnectError naming target.
func Connect(ctx context.Context, policy RetryPolicy, logger *slog.Logger, target string, fn func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	op := func() error {
		attempt++
		return fn(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "queue connect failed, retrying",
			"target", target,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy.backOff(), ctx), notify); err != nil {
		return &ConnectError{Target: target, Attempts: attempt, Err: err}
	}
	return nil
}
