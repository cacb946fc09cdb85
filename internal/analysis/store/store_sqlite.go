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

// SQLiteStore persists domain records in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, domain string, now time.Time) (bool, error) {
	now = now.UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (domain, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (domain) DO NOTHING
	`, domain, string(models.StatusPending), now, now)
	if err != nil {
		return false, fmt.Errorf("create domain record: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) Get(ctx context.Context, domain string) (*models.DomainRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM domains WHERE domain = ?`, domain))
	if err != nil {
		return nil, fmt.Errorf("get domain record: %w", notFound(err))
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*models.DomainRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM domains ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list domain records: %w", err)
	}
	return scanRows(rows)
}

func (s *SQLiteStore) Reopen(ctx context.Context, domain string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains
		SET status = ?, whois_data = NULL, virustotal_data = NULL, updated_at = ?
		WHERE domain = ? AND status = ?
	`, string(models.StatusPending), now.UTC(), domain, string(models.StatusError))
	if err != nil {
		return false, fmt.Errorf("reopen domain record: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) SaveResult(ctx context.Context, domain string, result models.AnalysisResult) error {
	scanned := result.ScannedAt.UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains
		SET status = ?, whois_data = ?, virustotal_data = ?, updated_at = ?, last_scan_date = ?
		WHERE domain = ?
	`, string(result.Status), nullableRaw(result.RegistrationRaw), nullableRaw(result.ReputationRaw), scanned, scanned, domain)
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

func (s *SQLiteStore) Abandon(ctx context.Context, domain string, placeholder json.RawMessage, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains
		SET status = ?, whois_data = ?, virustotal_data = ?, updated_at = ?
		WHERE domain = ? AND status = ?
	`, string(models.StatusError), nullableRaw(placeholder), nullableRaw(placeholder), now.UTC(), domain, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("abandon domain record: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
