package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Store,Publisher,Fetcher

import (
	"context"
	"encoding/json"
	"time"

	"domainintel/internal/analysis/models"
)

// Store is the durable domain → DomainRecord mapping.
//
// Every method is a single atomic operation on one record; callers must not
// assume consistency across records.
type Store interface {
	// Create inserts a pending record if none exists for domain. It reports
	// whether this call inserted it.
	Create(ctx context.Context, domain string, now time.Time) (bool, error)

	// Get returns sentinel.ErrNotFound when no record exists.
	Get(ctx context.Context, domain string) (*models.DomainRecord, error)

	// List returns every record, most recently created first.
	List(ctx context.Context) ([]*models.DomainRecord, error)

	// Reopen moves an error record back to pending and clears its payloads.
	// It reports false when the record was not in error.
	Reopen(ctx context.Context, domain string, now time.Time) (bool, error)

	// SaveResult writes the outcome of an analysis run. Returns
	// sentinel.ErrNotFound when no record exists.
	SaveResult(ctx context.Context, domain string, result models.AnalysisResult) error

	// Abandon moves a pending record to error with placeholder payloads
	// without touching LastScanAt. It reports false when the record was not
	// pending.
	Abandon(ctx context.Context, domain string, placeholder json.RawMessage, now time.Time) (bool, error)

	Ping(ctx context.Context) error
}

// Publisher enqueues one analysis job.
type Publisher interface {
	Publish(ctx context.Context, domain string) error
}

// Fetcher retrieves the raw provider payload for a domain.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, domain string) (json.RawMessage, error)
}
