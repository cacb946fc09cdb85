package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"domainintel/internal/analysis/models"
	"domainintel/internal/platform/queue"
)

// Runner is the part of Analyzer the worker and scheduler depend on.
type Runner interface {
	Analyze(ctx context.Context, domain string, source models.Source) (models.Status, error)
}

// Worker consumes analysis jobs one at a time.
type Worker struct {
	runner   Runner
	consumer queue.Consumer
	options

	restartBackOff func() backoff.BackOff
}

// A consumer that stays up this long before failing restarts without delay
// accumulated from earlier failures.
const stableConsumeWindow = time.Minute

func defaultRestartBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func NewWorker(runner Runner, consumer queue.Consumer, opts ...Option) (*Worker, error) {
	if runner == nil {
		return nil, errors.New("analyzer is required")
	}
	if consumer == nil {
		return nil, errors.New("consumer is required")
	}
	return &Worker{
		runner:         runner,
		consumer:       consumer,
		options:        newOptions(opts),
		restartBackOff: defaultRestartBackOff,
	}, nil
}

// Run blocks until ctx is cancelled or the consumer is closed. A consumer
// error after startup is logged and consumption resumes after a backoff
// delay.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "analysis worker started")
	defer w.logger.InfoContext(ctx, "analysis worker stopped")

	b := backoff.WithContext(w.restartBackOff(), ctx)
	for {
		started := w.now()
		err := w.consumer.Consume(ctx, w.Handle)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if w.now().Sub(started) >= stableConsumeWindow {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		w.logger.ErrorContext(ctx, "analysis consumer stopped, restarting",
			"error", err,
			"retry_in", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Handle processes one job. A failure or panic is logged and returned; it
// never stops the consumer.
func (w *Worker) Handle(ctx context.Context, msg *queue.Message) (err error) {
	domain := strings.ToLower(strings.TrimSpace(string(msg.Value)))
	requestID := msg.Headers[queue.HeaderRequestID]
	if domain == "" {
		w.logger.WarnContext(ctx, "skipping empty analysis job", "request_id", requestID)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis of %s panicked: %v", domain, r)
			w.logger.ErrorContext(ctx, "analysis job panicked",
				"domain", domain,
				"request_id", requestID,
				"panic", r,
			)
		}
	}()

	w.logger.InfoContext(ctx, "analysis job received", "domain", domain, "request_id", requestID)

	status, err := w.runner.Analyze(ctx, domain, models.SourceQueue)
	if err != nil {
		w.logger.ErrorContext(ctx, "analysis job failed",
			"domain", domain,
			"request_id", requestID,
			"error", err,
		)
		return err
	}

	w.logger.InfoContext(ctx, "analysis job completed",
		"domain", domain,
		"request_id", requestID,
		"status", status,
	)
	return nil
}
