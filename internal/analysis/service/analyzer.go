package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/ports"
	"domainintel/internal/analysis/providers"
)

// PayloadFetcher retrieves both provider payloads for a domain.
type PayloadFetcher interface {
	Fetch(ctx context.Context, domain string) (providers.Payloads, error)
}

// Analyzer runs one analysis of a domain and writes the outcome to the
// store. The queue worker and the scheduler share it.
type Analyzer struct {
	fetcher PayloadFetcher
	store   ports.Store
	options
}

func NewAnalyzer(fetcher PayloadFetcher, store ports.Store, opts ...Option) (*Analyzer, error) {
	if fetcher == nil {
		return nil, errors.New("payload fetcher is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Analyzer{fetcher: fetcher, store: store, options: newOptions(opts)}, nil
}

// Analyze fetches both payloads and stores either the raw bodies as
// completed or error placeholders as error. Fetch failures and panics end
// up in the stored status; only a failed store write is returned.
//
// The run is detached from ctx cancellation so a shutdown never leaves a
// half-written cycle; provider timeouts still bound it.
func (a *Analyzer) Analyze(ctx context.Context, domain string, source models.Source) (models.Status, error) {
	ctx = context.WithoutCancel(ctx)
	start := a.now()

	ctx, span := a.tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("source", string(source)),
	))
	defer span.End()

	result := a.run(ctx, domain)
	span.SetAttributes(attribute.String("status", string(result.Status)))

	if err := a.store.SaveResult(ctx, domain, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save result")
		a.metrics.ObserveAnalysis(string(source), "store_failed", time.Since(start))
		return "", fmt.Errorf("save result for %s: %w", domain, err)
	}

	a.metrics.ObserveAnalysis(string(source), string(result.Status), time.Since(start))
	a.logger.InfoContext(ctx, "analysis finished",
		"domain", domain,
		"source", source,
		"status", result.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result.Status, nil
}

func (a *Analyzer) run(ctx context.Context, domain string) models.AnalysisResult {
	payloads, err := a.fetch(ctx, domain)
	scannedAt := a.now()
	if err != nil {
		category := providers.GetCategory(err)
		a.logger.WarnContext(ctx, "analysis failed",
			"domain", domain,
			"category", category,
			"error", err,
		)
		trace.SpanFromContext(ctx).RecordError(err)
		trace.SpanFromContext(ctx).SetStatus(codes.Error, string(category))

		placeholder := models.ErrorPayload(string(category))
		return models.AnalysisResult{
			Status:          models.StatusError,
			ReputationRaw:   placeholder,
			RegistrationRaw: placeholder,
			ScannedAt:       scannedAt,
		}
	}
	return models.AnalysisResult{
		Status:          models.StatusCompleted,
		ReputationRaw:   payloads.Reputation,
		RegistrationRaw: payloads.Registration,
		ScannedAt:       scannedAt,
	}
}

func (a *Analyzer) fetch(ctx context.Context, domain string) (p providers.Payloads, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider fetch panicked: %v", r)
		}
	}()
	return a.fetcher.Fetch(ctx, domain)
}
