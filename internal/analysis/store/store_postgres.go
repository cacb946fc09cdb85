package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"domainintel/internal/analysis/models"
	"domainintel/pkg/platform/sentinel"
)

// PostgresStore persists domain records in PostgreSQL through the pgx
// database/sql driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, domain string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (domain, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (domain) DO NOTHING
	`, domain, string(models.StatusPending), now)
	if err != nil {
		return false, fmt.Errorf("create domain record: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) Get(ctx context.Context, domain string) (*models.DomainRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM domains WHERE domain = $1`, domain))
	if err != nil {
		return nil, fmt.Errorf("get domain record: %w", notFound(err))
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.DomainRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM domains ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list domain records: %w", err)
	}
	return scanRows(rows)
}

func (s *PostgresStore) Reopen(ctx context.Context, domain string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains
		SET status = $2, whois_data = NULL, virustotal_data = NULL, updated_at = $3
		WHERE domain = $1 AND status = $4
	`, domain, string(models.StatusPending), now, string(models.StatusError))
	if err != nil {
		return false, fmt.Errorf("reopen domain record: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) SaveResult(ctx context.Context, domain string, result models.AnalysisResult) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains
		SET status = $2, whois_data = $3, virustotal_data = $4, updated_at = $5, last_scan_date = $5
		WHERE domain = $1
	`, domain, string(result.Status), nullableRaw(result.RegistrationRaw), nullableRaw(result.ReputationRaw), result.ScannedAt)
	if err != nil {
		return fmt.Errorf("save analysis result: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Abandon(ctx context.Context, domain string, placeholder json.RawMessage, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains
		SET status = $2, whois_data = $3, virustotal_data = $3, updated_at = $4
		WHERE domain = $1 AND status = $5
	`, domain, string(models.StatusError), nullableRaw(placeholder), now, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("abandon domain record: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
