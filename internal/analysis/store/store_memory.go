package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"domainintel/internal/analysis/models"
	"domainintel/pkg/platform/sentinel"
)

// InMemory is a process-local Store for development and tests.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	seq     int64
}

type memoryRecord struct {
	seq    int64
	record models.DomainRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*memoryRecord)}
}

func (s *InMemory) Create(_ context.Context, domain string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[domain]; ok {
		return false, nil
	}
	s.seq++
	s.records[domain] = &memoryRecord{
		seq: s.seq,
		record: models.DomainRecord{
			Domain:    domain,
			Status:    models.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	return true, nil
}

func (s *InMemory) Get(_ context.Context, domain string) (*models.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[domain]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r.record), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*memoryRecord, 0, len(s.records))
	for _, r := range s.records {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	out := make([]*models.DomainRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, clone(r.record))
	}
	return out, nil
}

func (s *InMemory) Reopen(_ context.Context, domain string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[domain]
	if !ok || r.record.Status != models.StatusError {
		return false, nil
	}
	r.record.Status = models.StatusPending
	r.record.ReputationRaw = nil
	r.record.RegistrationRaw = nil
	r.record.UpdatedAt = now
	return true, nil
}

func (s *InMemory) SaveResult(_ context.Context, domain string, result models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[domain]
	if !ok {
		return sentinel.ErrNotFound
	}
	scanned := result.ScannedAt
	r.record.Status = result.Status
	r.record.ReputationRaw = copyRaw(result.ReputationRaw)
	r.record.RegistrationRaw = copyRaw(result.RegistrationRaw)
	r.record.UpdatedAt = scanned
	r.record.LastScanAt = &scanned
	return nil
}

func (s *InMemory) Abandon(_ context.Context, domain string, placeholder json.RawMessage, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[domain]
	if !ok || r.record.Status != models.StatusPending {
		return false, nil
	}
	r.record.Status = models.StatusError
	r.record.ReputationRaw = copyRaw(placeholder)
	r.record.RegistrationRaw = copyRaw(placeholder)
	r.record.UpdatedAt = now
	return true, nil
}

func (s *InMemory) Ping(context.Context) error { return nil }

// Put stores a record as-is, replacing any existing one. Used to seed
// fixtures in tests.
func (s *InMemory) Put(record models.DomainRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.records[record.Domain] = &memoryRecord{seq: s.seq, record: *clone(record)}
}

func clone(r models.DomainRecord) *models.DomainRecord {
	out := r
	out.ReputationRaw = copyRaw(r.ReputationRaw)
	out.RegistrationRaw = copyRaw(r.RegistrationRaw)
	if r.LastScanAt != nil {
		t := *r.LastScanAt
		out.LastScanAt = &t
	}
	return &out
}

func copyRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
