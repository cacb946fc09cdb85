package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"domainintel/internal/analysis/models"
	"domainintel/pkg/platform/sentinel"
)

const selectColumns = `domain, status, whois_data, virustotal_data, created_at, updated_at, last_scan_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.DomainRecord, error) {
	var (
		rec          models.DomainRecord
		status       string
		whois, vt    sql.NullString
		lastScanDate sql.NullTime
	)
	if err := row.Scan(&rec.Domain, &status, &whois, &vt, &rec.CreatedAt, &rec.UpdatedAt, &lastScanDate); err != nil {
		return nil, err
	}
	rec.Status = models.Status(status)
	if whois.Valid {
		rec.RegistrationRaw = json.RawMessage(whois.String)
	}
	if vt.Valid {
		rec.ReputationRaw = json.RawMessage(vt.String)
	}
	if lastScanDate.Valid {
		t := lastScanDate.Time
		rec.LastScanAt = &t
	}
	return &rec, nil
}

func scanRows(rows *sql.Rows) ([]*models.DomainRecord, error) {
	defer rows.Close()

	var out []*models.DomainRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return err
}

func nullableRaw(raw json.RawMessage) sql.NullString {
	if raw == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
